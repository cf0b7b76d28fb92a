package exchange

import "fmt"

// Reason classifies a protocol-level rejection of an inbound document.
type Reason int

const (
	ReasonInvalidMessage Reason = iota
	ReasonDuplicateIdentifier
	ReasonExpired
	ReasonBarredSender
	ReasonUnknownConversation
)

// Token returns the machine-readable reason token carried in the
// rejection response.
func (r Reason) Token() string {
	switch r {
	case ReasonInvalidMessage:
		return "InvalidMessage"
	case ReasonDuplicateIdentifier:
		return "DuplicateIdentifier"
	case ReasonExpired:
		return "Expired"
	case ReasonBarredSender:
		return "BarredSender"
	case ReasonUnknownConversation:
		return "UnknownConversation"
	default:
		return "Unknown"
	}
}

// Rejection is a business error: expected, protocol-meaningful, and
// reported back to the counterpart as a rejection response. It carries
// the reason kind and structured arguments; the human-readable message
// is rendered only at the logging and response boundary.
type Rejection struct {
	Reason Reason
	Args   []any
}

// Reject builds a Rejection for the given reason.
func Reject(reason Reason, args ...any) *Rejection {
	return &Rejection{Reason: reason, Args: args}
}

// Error satisfies the error interface with the bare reason token.
// Presentation-layer formatting belongs to Describe.
func (r *Rejection) Error() string { return "rejected: " + r.Reason.Token() }

// Describe renders the rejection with its arguments for logs.
func (r *Rejection) Describe() string {
	if len(r.Args) == 0 {
		return r.Reason.Token()
	}
	return fmt.Sprintf("%s %v", r.Reason.Token(), r.Args)
}

package model

import "time"

// Precedence is the delivery-reliability class of an outbound envelope.
type Precedence int

const (
	PrecedenceRoutine Precedence = iota
	PrecedenceTransactional
	PrecedenceCritical
)

func (p Precedence) String() string {
	switch p {
	case PrecedenceRoutine:
		return "Routine"
	case PrecedenceTransactional:
		return "Transactional"
	case PrecedenceCritical:
		return "Critical"
	default:
		return "unknown"
	}
}

// Tracked reports whether envelopes of this precedence arm a pending
// acknowledgement. Routine traffic is fire-and-forget.
func (p Precedence) Tracked() bool { return p != PrecedenceRoutine }

// ParsePrecedence resolves a wire name back to a Precedence.
func ParsePrecedence(s string) (Precedence, bool) {
	switch s {
	case "Routine":
		return PrecedenceRoutine, true
	case "Transactional":
		return PrecedenceTransactional, true
	case "Critical":
		return PrecedenceCritical, true
	}
	return 0, false
}

// Direction marks which side of the exchange an envelope belongs to.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Envelope is the signed wire form of a document. It is immutable after
// creation except for the final Disposition set by the delivery engine.
type Envelope struct {
	MessageID      string
	ConversationID string
	Sender         Participant
	Recipient      Participant
	Precedence     Precedence
	DocumentType   DocumentType
	SequenceNumber int64
	CreatedAt      time.Time
	Expiration     time.Time
	// ContentHash is set on every envelope once built; an empty slice is
	// a valid hash value, nil is not.
	ContentHash []byte
	Signature   []byte
	Body        []byte
	// Response marks the envelope as the correlated answer to an earlier
	// request in the same conversation.
	Response    bool
	Direction   Direction
	Disposition Disposition
}

// Expired reports whether the envelope carries an expiration in the past.
func (e Envelope) Expired(now time.Time) bool {
	return !e.Expiration.IsZero() && now.After(e.Expiration)
}

// Disposition is the terminal outcome recorded on an envelope.
type Disposition int

const (
	DispositionNone Disposition = iota
	DispositionDelivered
	DispositionAcknowledged
	DispositionEscalated
	DispositionRejected
)

func (d Disposition) String() string {
	switch d {
	case DispositionNone:
		return "none"
	case DispositionDelivered:
		return "delivered"
	case DispositionAcknowledged:
		return "acknowledged"
	case DispositionEscalated:
		return "escalated"
	case DispositionRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Package events defines the typed events exchanged on the node's bus.
//
// Available event types:
//   - PhaseEvent: a PTU lifecycle trigger fired
//   - DeliveryFailedEvent: a tracked envelope escalated without response
//   - RecreateEvent: the periodic sweep requeued a document
package events

import (
	"time"

	"github.com/kilianp07/usef/core/model"
)

// PhaseEvent is published when a lifecycle trigger moves PTUs of a day
// into a new phase. For move-to-operate, Index carries the PTU index;
// day-wide transitions leave it zero.
type PhaseEvent struct {
	Phase  model.Phase
	Period time.Time
	Index  int
}

// DeliveryFailedEvent is published when a TRANSACTIONAL or CRITICAL
// envelope's acknowledgement deadline expired and the payload was moved
// to the not-sent queue.
type DeliveryFailedEvent struct {
	Envelope model.Envelope
}

// RecreateEvent is published when the sweep finds a document marked
// TO_BE_RECREATED.
type RecreateEvent struct {
	SequenceNumber int64
	SenderDomain   string
	Type           model.DocumentType
}

// Package planboard defines the persistence contracts the protocol core
// reads and writes through. Business entities themselves live behind
// these interfaces; the core never touches a database directly.
package planboard

import (
	"time"

	"github.com/kilianp07/usef/core/model"
)

// PtuStore gives the lifecycle scheduler access to PTU state. States are
// created lazily the first time a period is touched and only ever move
// to later phases.
type PtuStore interface {
	// ConnectionGroups lists the groups tracked by this node.
	ConnectionGroups() ([]model.ConnectionGroup, error)

	// Phase returns the current phase of one (group, PTU) pair. The bool
	// is false when the pair has never been touched.
	Phase(group string, ptu model.Ptu) (model.Phase, bool, error)

	// AdvancePhase moves the pair to phase, creating the state if absent.
	// Writes to an equal or later phase are ignored.
	AdvancePhase(group string, ptu model.Ptu, phase model.Phase) error
}

// DocumentStore records exchanged protocol documents. Documents are
// keyed (sequenceNumber, senderDomain); archived rows are retained.
type DocumentStore interface {
	SaveDocument(doc model.Document) error
	UpdateStatus(seq int64, senderDomain string, status model.DocumentStatus) error
	// ToBeRecreated lists documents flagged for the periodic re-creation
	// sweep.
	ToBeRecreated() ([]model.Document, error)
	// DocumentsByDay lists the documents of the given period, archived
	// rows included.
	DocumentsByDay(period time.Time) ([]model.Document, error)
	// CleanupDay archives documents of the given period.
	CleanupDay(period time.Time) error
}

// MessageLog tracks which inbound message IDs were already successfully
// processed, backing the duplicate-identifier rejection.
type MessageLog interface {
	// Processed reports whether the ID was already successfully handled.
	Processed(messageID string) (bool, error)
	// MarkProcessed records the ID and reports whether this was the first
	// time it was seen.
	MarkProcessed(messageID string) (bool, error)
}

package model

import "time"

// DocumentType names a protocol document family on the wire.
type DocumentType string

const (
	DocPrognosis             DocumentType = "Prognosis"
	DocFlexRequest           DocumentType = "FlexRequest"
	DocFlexOffer             DocumentType = "FlexOffer"
	DocFlexOrder             DocumentType = "FlexOrder"
	DocFlexSettlement        DocumentType = "FlexSettlement"
	DocCommonReferenceUpdate DocumentType = "CommonReferenceUpdate"
	DocCommonReferenceQuery  DocumentType = "CommonReferenceQuery"
	DocMeterDataSet          DocumentType = "MeterDataSet"
	DocTestMessage           DocumentType = "TestMessage"
	DocMessageResponse       DocumentType = "MessageResponse"
)

// DocumentStatus tracks a protocol document through its local lifecycle.
type DocumentStatus string

const (
	StatusSent          DocumentStatus = "SENT"
	StatusReceived      DocumentStatus = "RECEIVED"
	StatusAccepted      DocumentStatus = "ACCEPTED"
	StatusRejected      DocumentStatus = "REJECTED"
	StatusProcessed     DocumentStatus = "PROCESSED"
	StatusArchived      DocumentStatus = "ARCHIVED"
	StatusToBeRecreated DocumentStatus = "TO_BE_RECREATED"
)

// Document is one protocol document exchanged between two participants.
// Body carries the role-specific XML payload; the delivery engine treats
// it as opaque bytes.
type Document struct {
	Type            DocumentType
	SequenceNumber  int64 // monotonic per sender
	Period          time.Time
	ConnectionGroup string
	Sender          Participant
	Recipient       Participant
	Status          DocumentStatus
	Expiration      time.Time // zero means no expiration
	Body            []byte
}

// Expired reports whether the document carries an expiration in the past.
func (d Document) Expired(now time.Time) bool {
	return !d.Expiration.IsZero() && now.After(d.Expiration)
}

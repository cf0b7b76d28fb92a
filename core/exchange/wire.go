package exchange

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/usef/core/model"
)

// wireEnvelope is the serialized form of an envelope. The signature is
// computed over the JSON encoding with the signature field left empty;
// field order is fixed by the struct, so both sides rebuild identical
// signing bytes.
type wireEnvelope struct {
	MessageID       string     `json:"message_id"`
	ConversationID  string     `json:"conversation_id"`
	SenderDomain    string     `json:"sender_domain"`
	SenderRole      string     `json:"sender_role"`
	RecipientDomain string     `json:"recipient_domain"`
	RecipientRole   string     `json:"recipient_role"`
	Precedence      string     `json:"precedence"`
	DocumentType    string     `json:"document_type"`
	SequenceNumber  int64      `json:"sequence_number"`
	CreatedAt       time.Time  `json:"created_at"`
	Expiration      *time.Time `json:"expiration,omitempty"`
	Response        bool       `json:"response,omitempty"`
	ContentHash     []byte     `json:"content_hash"`
	Body            []byte     `json:"body"`
	Signature       []byte     `json:"signature,omitempty"`
}

func toWire(env model.Envelope) wireEnvelope {
	w := wireEnvelope{
		MessageID:       env.MessageID,
		ConversationID:  env.ConversationID,
		SenderDomain:    env.Sender.Domain,
		SenderRole:      env.Sender.Role.String(),
		RecipientDomain: env.Recipient.Domain,
		RecipientRole:   env.Recipient.Role.String(),
		Precedence:      env.Precedence.String(),
		DocumentType:    string(env.DocumentType),
		SequenceNumber:  env.SequenceNumber,
		CreatedAt:       env.CreatedAt,
		Response:        env.Response,
		ContentHash:     env.ContentHash,
		Body:            env.Body,
		Signature:       env.Signature,
	}
	if !env.Expiration.IsZero() {
		exp := env.Expiration
		w.Expiration = &exp
	}
	return w
}

func fromWire(w wireEnvelope) (model.Envelope, error) {
	senderRole, ok := model.ParseRole(w.SenderRole)
	if !ok {
		return model.Envelope{}, fmt.Errorf("unknown sender role %q", w.SenderRole)
	}
	recipientRole, ok := model.ParseRole(w.RecipientRole)
	if !ok {
		return model.Envelope{}, fmt.Errorf("unknown recipient role %q", w.RecipientRole)
	}
	precedence, ok := model.ParsePrecedence(w.Precedence)
	if !ok {
		return model.Envelope{}, fmt.Errorf("unknown precedence %q", w.Precedence)
	}
	env := model.Envelope{
		MessageID:      w.MessageID,
		ConversationID: w.ConversationID,
		Sender:         model.Participant{Role: senderRole, Domain: w.SenderDomain},
		Recipient:      model.Participant{Role: recipientRole, Domain: w.RecipientDomain},
		Precedence:     precedence,
		DocumentType:   model.DocumentType(w.DocumentType),
		SequenceNumber: w.SequenceNumber,
		CreatedAt:      w.CreatedAt,
		ContentHash:    w.ContentHash,
		Body:           w.Body,
		Response:       w.Response,
		Signature:      w.Signature,
	}
	if w.Expiration != nil {
		env.Expiration = *w.Expiration
	}
	return env, nil
}

// signingBytes returns the canonical bytes covered by the signature.
func signingBytes(w wireEnvelope) ([]byte, error) {
	w.Signature = nil
	return json.Marshal(w)
}

// contentHash hashes the document body. An empty body hashes to the
// digest of no bytes, so the hash is always set, never nil.
func contentHash(body []byte) []byte {
	sum := sha256.Sum256(body)
	return sum[:]
}

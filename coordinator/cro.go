package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/router"
	"github.com/kilianp07/usef/core/sign"
)

// ReferenceEntry is one participant record in the common reference.
type ReferenceEntry struct {
	Role       string `json:"role"`
	Domain     string `json:"domain"`
	Endpoint   string `json:"endpoint"`
	PublicBlob string `json:"public_key"`
}

// referenceQuery asks for one participant record.
type referenceQuery struct {
	Role   string `json:"role"`
	Domain string `json:"domain"`
}

// CommonReference carries the CRO obligations: it keeps the shared
// participant register current and answers queries against it.
type CommonReference struct {
	deps Deps

	mu      sync.Mutex
	entries map[model.Participant]ReferenceEntry
}

// NewCommonReference creates the CRO coordinator.
func NewCommonReference(deps Deps) *CommonReference {
	deps.setDefaults()
	return &CommonReference{deps: deps, entries: make(map[model.Participant]ReferenceEntry)}
}

// Register installs the CRO document handlers.
func (c *CommonReference) Register(rt *router.Router) {
	rt.Register(docHandler{docType: model.DocCommonReferenceUpdate, fn: c.onUpdate})
	rt.Register(docHandler{docType: model.DocCommonReferenceQuery, fn: c.onQuery})
	registerTestMessage(rt, c.deps.Engine)
}

// Run blocks until the context ends. The CRO has no lifecycle stake;
// its work is entirely inbound-driven.
func (c *CommonReference) Run(ctx context.Context) {
	<-ctx.Done()
}

// onUpdate upserts a participant record. Only the participant itself
// may update its own record; the sender domain must match.
func (c *CommonReference) onUpdate(_ context.Context, env model.Envelope) error {
	var e ReferenceEntry
	if err := json.Unmarshal(env.Body, &e); err != nil {
		return exchange.Reject(exchange.ReasonInvalidMessage, err.Error())
	}
	role, ok := model.ParseRole(e.Role)
	if !ok {
		return exchange.Reject(exchange.ReasonInvalidMessage, fmt.Sprintf("unknown role %q", e.Role))
	}
	if e.Domain != env.Sender.Domain {
		return exchange.Reject(exchange.ReasonBarredSender, env.Sender.String(), "update for foreign domain")
	}
	if e.PublicBlob != "" {
		if _, err := sign.DecodePublicBlob(e.PublicBlob); err != nil {
			return exchange.Reject(exchange.ReasonInvalidMessage, err.Error())
		}
	}
	p := model.Participant{Role: role, Domain: e.Domain}
	c.mu.Lock()
	c.entries[p] = e
	c.mu.Unlock()
	if err := storeInbound(c.deps.Docs, env, model.StatusProcessed); err != nil {
		return fmt.Errorf("store reference update %d: %w", env.SequenceNumber, err)
	}
	c.deps.Log.Infof("common reference updated for %s", p)
	return acknowledge(c.deps.Engine, env)
}

// onQuery answers with the requested record in the response body.
func (c *CommonReference) onQuery(_ context.Context, env model.Envelope) error {
	var q referenceQuery
	if err := json.Unmarshal(env.Body, &q); err != nil {
		return exchange.Reject(exchange.ReasonInvalidMessage, err.Error())
	}
	role, ok := model.ParseRole(q.Role)
	if !ok {
		return exchange.Reject(exchange.ReasonInvalidMessage, fmt.Sprintf("unknown role %q", q.Role))
	}
	c.mu.Lock()
	e, found := c.entries[model.Participant{Role: role, Domain: q.Domain}]
	c.mu.Unlock()

	result := "Accepted"
	var raw []byte
	var err error
	if found {
		raw, err = json.Marshal(struct {
			Result string         `json:"result"`
			Entry  ReferenceEntry `json:"entry"`
		}{Result: result, Entry: e})
	} else {
		raw, err = json.Marshal(struct {
			Result string `json:"result"`
		}{Result: "NotFound"})
	}
	if err != nil {
		return fmt.Errorf("serialize reference response: %w", err)
	}
	doc := model.Document{
		Type:      model.DocMessageResponse,
		Recipient: env.Sender,
		Period:    env.CreatedAt,
		Body:      raw,
	}
	if _, err := c.deps.Engine.Respond(doc, model.PrecedenceRoutine, env.ConversationID); err != nil {
		return fmt.Errorf("answer reference query: %w", err)
	}
	return nil
}

// Lookup returns the stored record of a participant.
func (c *CommonReference) Lookup(p model.Participant) (ReferenceEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[p]
	return e, ok
}

// Package coordinator hosts the thin per-role consumers of the protocol
// core. Each coordinator registers its document handlers with the
// router, reacts to lifecycle triggers and keeps the planboard current.
// Business planning itself (portfolio optimization, offer pricing) is
// out of scope; the coordinators carry the protocol obligations of
// their role.
package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/router"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/internal/eventbus"
)

// Deps bundles what every coordinator needs.
type Deps struct {
	Me     model.Participant
	Engine *exchange.Engine
	Docs   planboard.DocumentStore
	Ptus   planboard.PtuStore
	Phases *eventbus.Bus[events.PhaseEvent]
	Log    logger.Logger
}

func (d *Deps) setDefaults() {
	if d.Log == nil {
		d.Log = logger.NopLogger{}
	}
	if d.Phases == nil {
		d.Phases = eventbus.New[events.PhaseEvent]()
	}
}

// PrecedenceFor returns the delivery-reliability class a document type
// is sent with. Orders are the only critical traffic; negotiation and
// settlement documents are transactional, the rest routine.
func PrecedenceFor(t model.DocumentType) model.Precedence {
	switch t {
	case model.DocFlexOrder:
		return model.PrecedenceCritical
	case model.DocFlexRequest, model.DocFlexOffer, model.DocFlexSettlement:
		return model.PrecedenceTransactional
	default:
		return model.PrecedenceRoutine
	}
}

// docHandler adapts a function to the router.Handler contract.
type docHandler struct {
	docType model.DocumentType
	fn      func(ctx context.Context, env model.Envelope) error
}

func (h docHandler) DocumentType() model.DocumentType { return h.docType }

func (h docHandler) Handle(ctx context.Context, env model.Envelope) error { return h.fn(ctx, env) }

// recoveryFunc adapts a function to the router.RecoveryHandler contract.
type recoveryFunc struct {
	docType model.DocumentType
	fn      func(ctx context.Context, env model.Envelope) error
}

func (h recoveryFunc) DocumentType() model.DocumentType { return h.docType }

func (h recoveryFunc) HandleDeliveryFailure(ctx context.Context, env model.Envelope) error {
	return h.fn(ctx, env)
}

// ackBody is the payload of a positive MessageResponse.
type ackBody struct {
	Result    string   `json:"result"`
	MessageID string   `json:"message_id"`
	Disputed  []int    `json:"disputed_ptus,omitempty"`
	Values    []string `json:"delivered_w,omitempty"`
}

// acknowledge answers a tracked inbound envelope so the sender's
// pending acknowledgement resolves. Routine traffic is fire-and-forget
// and receives no answer.
func acknowledge(engine *exchange.Engine, env model.Envelope) error {
	if !env.Precedence.Tracked() {
		return nil
	}
	return respond(engine, env, ackBody{Result: "Accepted", MessageID: env.MessageID})
}

func respond(engine *exchange.Engine, env model.Envelope, body ackBody) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	doc := model.Document{
		Type:      model.DocMessageResponse,
		Recipient: env.Sender,
		Period:    env.CreatedAt,
		Body:      raw,
	}
	_, err = engine.Respond(doc, model.PrecedenceRoutine, env.ConversationID)
	return err
}

// storeInbound records a verified inbound document on the planboard.
func storeInbound(docs planboard.DocumentStore, env model.Envelope, status model.DocumentStatus) error {
	if docs == nil {
		return nil
	}
	return docs.SaveDocument(model.Document{
		Type:           env.DocumentType,
		SequenceNumber: env.SequenceNumber,
		Period:         env.CreatedAt,
		Sender:         env.Sender,
		Recipient:      env.Recipient,
		Status:         status,
		Expiration:     env.Expiration,
		Body:           env.Body,
	})
}

// registerTestMessage installs the handler every role carries: echo a
// positive response to connectivity probes.
func registerTestMessage(rt *router.Router, engine *exchange.Engine) {
	rt.Register(docHandler{docType: model.DocTestMessage, fn: func(_ context.Context, env model.Envelope) error {
		return respond(engine, env, ackBody{Result: "Accepted", MessageID: env.MessageID})
	}})
}

// runPhases consumes lifecycle events until the context ends.
func runPhases(ctx context.Context, bus *eventbus.Bus[events.PhaseEvent], fn func(events.PhaseEvent)) {
	ch := bus.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				bus.Unsubscribe(ch)
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				fn(ev)
			}
		}
	}()
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

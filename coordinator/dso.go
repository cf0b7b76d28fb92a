package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/router"
)

// GridOperator carries the DSO protocol obligations: it collects
// D-prognoses and flex offers, and recovers from failed order delivery.
type GridOperator struct {
	deps Deps

	mu sync.Mutex
	// prognoses counts received D-prognoses per connection group and day.
	prognoses map[string]int
}

// NewGridOperator creates the DSO coordinator.
func NewGridOperator(deps Deps) *GridOperator {
	deps.setDefaults()
	return &GridOperator{deps: deps, prognoses: make(map[string]int)}
}

// Register installs the DSO document handlers and the flex-order
// delivery-failure handler.
func (g *GridOperator) Register(rt *router.Router) {
	rt.Register(docHandler{docType: model.DocPrognosis, fn: g.onPrognosis})
	rt.Register(docHandler{docType: model.DocFlexOffer, fn: g.onFlexOffer})
	rt.RegisterRecovery(recoveryFunc{docType: model.DocFlexOrder, fn: g.onOrderDeliveryFailed})
	registerTestMessage(rt, g.deps.Engine)
}

// Run reacts to lifecycle triggers until the context ends.
func (g *GridOperator) Run(ctx context.Context) {
	runPhases(ctx, g.deps.Phases, func(ev events.PhaseEvent) {
		switch ev.Phase {
		case model.PhaseIntradayClosed:
			g.deps.Log.Debugf("intraday gate closed for PTU %d of %s", ev.Index, ev.Period.Format("2006-01-02"))
		case model.PhasePendingSettlement:
			g.deps.Log.Infof("PTU %d of %s pending settlement", ev.Index, ev.Period.Format("2006-01-02"))
		}
	})
}

func (g *GridOperator) onPrognosis(_ context.Context, env model.Envelope) error {
	body, rej := parseFlexBody(env.Body)
	if rej != nil {
		return rej
	}
	if err := storeInbound(g.deps.Docs, env, model.StatusReceived); err != nil {
		return fmt.Errorf("store prognosis %d: %w", env.SequenceNumber, err)
	}
	g.mu.Lock()
	g.prognoses[body.ConnectionGroup+"|"+body.Period]++
	g.mu.Unlock()
	g.deps.Log.Debugf("prognosis %d for group %s received from %s", env.SequenceNumber, body.ConnectionGroup, env.Sender)
	return acknowledge(g.deps.Engine, env)
}

func (g *GridOperator) onFlexOffer(_ context.Context, env model.Envelope) error {
	if _, rej := parseFlexBody(env.Body); rej != nil {
		return rej
	}
	if err := storeInbound(g.deps.Docs, env, model.StatusReceived); err != nil {
		return fmt.Errorf("store flex offer %d: %w", env.SequenceNumber, err)
	}
	g.deps.Log.Infof("flex offer %d from %s received", env.SequenceNumber, env.Sender)
	return acknowledge(g.deps.Engine, env)
}

// onOrderDeliveryFailed runs after the delivery engine escalated an
// unanswered flex order. The engine already flagged the document for
// re-creation; the operator records the operational consequence.
func (g *GridOperator) onOrderDeliveryFailed(_ context.Context, env model.Envelope) error {
	g.deps.Log.Warnf("flex order %d to %s undelivered, awaiting re-creation sweep", env.SequenceNumber, env.Recipient)
	return nil
}

// PrognosisCount returns the number of D-prognoses received for a
// connection group on a period.
func (g *GridOperator) PrognosisCount(group, period string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prognoses[group+"|"+period]
}

// SendFlexRequest asks an aggregator for flexibility on the given PTUs.
func (g *GridOperator) SendFlexRequest(agr model.Participant, body FlexBody) (model.Envelope, error) {
	raw, err := marshalFlexBody(body)
	if err != nil {
		return model.Envelope{}, err
	}
	doc := model.Document{
		Type:            model.DocFlexRequest,
		Recipient:       agr,
		ConnectionGroup: body.ConnectionGroup,
		Body:            raw,
	}
	return g.deps.Engine.Send(doc, PrecedenceFor(model.DocFlexRequest))
}

// SendFlexOrder commits an offered flexibility volume.
func (g *GridOperator) SendFlexOrder(agr model.Participant, body FlexBody) (model.Envelope, error) {
	raw, err := marshalFlexBody(body)
	if err != nil {
		return model.Envelope{}, err
	}
	doc := model.Document{
		Type:            model.DocFlexOrder,
		Recipient:       agr,
		ConnectionGroup: body.ConnectionGroup,
		Body:            raw,
	}
	return g.deps.Engine.Send(doc, PrecedenceFor(model.DocFlexOrder))
}

func marshalFlexBody(body FlexBody) ([]byte, error) {
	if body.ConnectionGroup == "" || len(body.Ptus) == 0 {
		return nil, fmt.Errorf("flex document needs a connection group and PTUs")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("serialize flex document: %w", err)
	}
	return raw, nil
}

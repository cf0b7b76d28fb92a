package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/router"
)

// BalanceParty carries the BRP protocol obligations: it collects
// A-plans and flex offers from aggregators and issues settlements.
type BalanceParty struct {
	deps Deps

	mu sync.Mutex
	// plans holds the latest A-plan sequence per connection group and day.
	plans map[string]int64
}

// NewBalanceParty creates the BRP coordinator.
func NewBalanceParty(deps Deps) *BalanceParty {
	deps.setDefaults()
	return &BalanceParty{deps: deps, plans: make(map[string]int64)}
}

// Register installs the BRP document handlers.
func (b *BalanceParty) Register(rt *router.Router) {
	rt.Register(docHandler{docType: model.DocPrognosis, fn: b.onPrognosis})
	rt.Register(docHandler{docType: model.DocFlexOffer, fn: b.onFlexOffer})
	rt.Register(docHandler{docType: model.DocMeterDataSet, fn: b.onMeterData})
	rt.RegisterRecovery(recoveryFunc{docType: model.DocFlexSettlement, fn: b.onSettlementDeliveryFailed})
	registerTestMessage(rt, b.deps.Engine)
}

// Run reacts to lifecycle triggers until the context ends.
func (b *BalanceParty) Run(ctx context.Context) {
	runPhases(ctx, b.deps.Phases, func(ev events.PhaseEvent) {
		if ev.Phase == model.PhaseDayAheadClosed {
			b.deps.Log.Infof("day-ahead gate closed for %s, A-plans final", ev.Period.Format("2006-01-02"))
		}
	})
}

// onPrognosis accepts an A-plan. A later sequence number for the same
// group and day supersedes the stored one; a stale one is dropped
// without rejection, re-sent plans are expected during negotiation.
func (b *BalanceParty) onPrognosis(_ context.Context, env model.Envelope) error {
	body, rej := parseFlexBody(env.Body)
	if rej != nil {
		return rej
	}
	key := body.ConnectionGroup + "|" + body.Period
	b.mu.Lock()
	stale := env.SequenceNumber < b.plans[key]
	if !stale {
		b.plans[key] = env.SequenceNumber
	}
	b.mu.Unlock()
	if stale {
		b.deps.Log.Debugf("stale A-plan %d for group %s dropped", env.SequenceNumber, body.ConnectionGroup)
		return acknowledge(b.deps.Engine, env)
	}
	if err := storeInbound(b.deps.Docs, env, model.StatusAccepted); err != nil {
		return fmt.Errorf("store A-plan %d: %w", env.SequenceNumber, err)
	}
	b.deps.Log.Infof("A-plan %d for group %s accepted from %s", env.SequenceNumber, body.ConnectionGroup, env.Sender)
	return acknowledge(b.deps.Engine, env)
}

func (b *BalanceParty) onFlexOffer(_ context.Context, env model.Envelope) error {
	if _, rej := parseFlexBody(env.Body); rej != nil {
		return rej
	}
	if err := storeInbound(b.deps.Docs, env, model.StatusReceived); err != nil {
		return fmt.Errorf("store flex offer %d: %w", env.SequenceNumber, err)
	}
	return acknowledge(b.deps.Engine, env)
}

func (b *BalanceParty) onMeterData(_ context.Context, env model.Envelope) error {
	if len(env.Body) == 0 {
		return exchange.Reject(exchange.ReasonInvalidMessage, "empty meter data set")
	}
	if err := storeInbound(b.deps.Docs, env, model.StatusReceived); err != nil {
		return fmt.Errorf("store meter data %d: %w", env.SequenceNumber, err)
	}
	return acknowledge(b.deps.Engine, env)
}

func (b *BalanceParty) onSettlementDeliveryFailed(_ context.Context, env model.Envelope) error {
	b.deps.Log.Warnf("settlement %d to %s undelivered, awaiting re-creation sweep", env.SequenceNumber, env.Recipient)
	return nil
}

// SendSettlement issues the per-PTU settlement claim for one group and
// period to its aggregator.
func (b *BalanceParty) SendSettlement(agr model.Participant, body SettlementBody) (model.Envelope, error) {
	if body.ConnectionGroup == "" || len(body.Items) == 0 {
		return model.Envelope{}, fmt.Errorf("settlement needs a connection group and items")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("serialize settlement: %w", err)
	}
	doc := model.Document{
		Type:            model.DocFlexSettlement,
		Recipient:       agr,
		ConnectionGroup: body.ConnectionGroup,
		Body:            raw,
	}
	return b.deps.Engine.Send(doc, PrecedenceFor(model.DocFlexSettlement))
}

// PlanSequence returns the accepted A-plan sequence for a group and day.
func (b *BalanceParty) PlanSequence(group, period string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.plans[group+"|"+period]
}

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/router"
	"github.com/kilianp07/usef/core/settlement"
)

// Aggregator carries the AGR protocol obligations: it receives flex
// requests and orders, and validates settlements against its own
// delivered-power reconciliation.
type Aggregator struct {
	deps Deps

	mu sync.Mutex
	// orders tracks accepted flex orders per (group, day, ptu index).
	orders map[string]model.Envelope
}

// NewAggregator creates the AGR coordinator.
func NewAggregator(deps Deps) *Aggregator {
	deps.setDefaults()
	return &Aggregator{deps: deps, orders: make(map[string]model.Envelope)}
}

// Register installs the AGR document handlers.
func (a *Aggregator) Register(rt *router.Router) {
	rt.Register(docHandler{docType: model.DocFlexRequest, fn: a.onFlexRequest})
	rt.Register(docHandler{docType: model.DocFlexOrder, fn: a.onFlexOrder})
	rt.Register(docHandler{docType: model.DocFlexSettlement, fn: a.onFlexSettlement})
	rt.Register(docHandler{docType: model.DocMeterDataSet, fn: a.onMeterData})
	registerTestMessage(rt, a.deps.Engine)
}

// Run reacts to lifecycle triggers until the context ends.
func (a *Aggregator) Run(ctx context.Context) {
	runPhases(ctx, a.deps.Phases, func(ev events.PhaseEvent) {
		switch ev.Phase {
		case model.PhaseDayAheadClosed:
			a.deps.Log.Infof("day-ahead gate closed for %s, plans frozen", ev.Period.Format("2006-01-02"))
		case model.PhaseOperate:
			a.deps.Log.Debugf("PTU %d of %s operating", ev.Index, ev.Period.Format("2006-01-02"))
		}
	})
}

// FlexBody is the shared payload shape of requests, offers and orders:
// per-PTU requested or committed power in watts, decimal-encoded to
// keep values exact.
type FlexBody struct {
	Period          string    `json:"period"`
	ConnectionGroup string    `json:"connection_group"`
	Ptus            []FlexPtu `json:"ptus"`
}

type FlexPtu struct {
	Index  int    `json:"index"`
	PowerW string `json:"power_w"`
}

func parseFlexBody(raw []byte) (FlexBody, *exchange.Rejection) {
	var b FlexBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return FlexBody{}, exchange.Reject(exchange.ReasonInvalidMessage, err.Error())
	}
	if b.ConnectionGroup == "" || len(b.Ptus) == 0 {
		return FlexBody{}, exchange.Reject(exchange.ReasonInvalidMessage, "flex document without connection group or PTUs")
	}
	for _, p := range b.Ptus {
		if _, ok := new(big.Int).SetString(p.PowerW, 10); !ok {
			return FlexBody{}, exchange.Reject(exchange.ReasonInvalidMessage, fmt.Sprintf("PTU %d power %q is not a decimal integer", p.Index, p.PowerW))
		}
	}
	return b, nil
}

func (a *Aggregator) onFlexRequest(_ context.Context, env model.Envelope) error {
	if _, rej := parseFlexBody(env.Body); rej != nil {
		return rej
	}
	if err := storeInbound(a.deps.Docs, env, model.StatusReceived); err != nil {
		return fmt.Errorf("store flex request %d: %w", env.SequenceNumber, err)
	}
	a.deps.Log.Infof("flex request %d from %s received", env.SequenceNumber, env.Sender)
	return acknowledge(a.deps.Engine, env)
}

func (a *Aggregator) onFlexOrder(_ context.Context, env model.Envelope) error {
	body, rej := parseFlexBody(env.Body)
	if rej != nil {
		return rej
	}
	if err := storeInbound(a.deps.Docs, env, model.StatusAccepted); err != nil {
		return fmt.Errorf("store flex order %d: %w", env.SequenceNumber, err)
	}
	a.mu.Lock()
	for _, p := range body.Ptus {
		a.orders[orderKey(body.ConnectionGroup, body.Period, p.Index)] = env
	}
	a.mu.Unlock()
	a.deps.Log.Infof("flex order %d from %s accepted for group %s", env.SequenceNumber, env.Sender, body.ConnectionGroup)
	return acknowledge(a.deps.Engine, env)
}

// SettlementBody carries the counterpart's per-PTU settlement claim.
type SettlementBody struct {
	Period          string           `json:"period"`
	ConnectionGroup string           `json:"connection_group"`
	Items           []SettlementItem `json:"items"`
}

type SettlementItem struct {
	Index      int    `json:"index"`
	OrderedW   string `json:"ordered_w"`
	PrognosisW string `json:"prognosis_w"`
	AllocatedW string `json:"allocated_w"`
	DeliveredW string `json:"delivered_w"`
}

// onFlexSettlement recomputes each claimed delivered-power value and
// disputes mismatches in the response instead of rejecting the document.
func (a *Aggregator) onFlexSettlement(_ context.Context, env model.Envelope) error {
	var body SettlementBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return exchange.Reject(exchange.ReasonInvalidMessage, err.Error())
	}
	var disputed []int
	var values []string
	for _, it := range body.Items {
		ordered, ok1 := new(big.Int).SetString(it.OrderedW, 10)
		prognosis, ok2 := new(big.Int).SetString(it.PrognosisW, 10)
		allocated, ok3 := new(big.Int).SetString(it.AllocatedW, 10)
		claimed, ok4 := new(big.Int).SetString(it.DeliveredW, 10)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return exchange.Reject(exchange.ReasonInvalidMessage, fmt.Sprintf("settlement item %d carries a non-decimal value", it.Index))
		}
		delivered := settlement.DeliveredFlexPower(ordered, prognosis, allocated)
		if delivered.Cmp(claimed) != 0 {
			disputed = append(disputed, it.Index)
			values = append(values, delivered.String())
		}
	}
	if err := storeInbound(a.deps.Docs, env, model.StatusProcessed); err != nil {
		return fmt.Errorf("store settlement %d: %w", env.SequenceNumber, err)
	}
	if len(disputed) > 0 {
		a.deps.Log.Warnf("settlement %d from %s disputed on %d PTUs", env.SequenceNumber, env.Sender, len(disputed))
		return respond(a.deps.Engine, env, ackBody{Result: "Disputed", MessageID: env.MessageID, Disputed: disputed, Values: values})
	}
	a.deps.Log.Infof("settlement %d from %s accepted", env.SequenceNumber, env.Sender)
	return acknowledge(a.deps.Engine, env)
}

func (a *Aggregator) onMeterData(_ context.Context, env model.Envelope) error {
	if len(env.Body) == 0 {
		return exchange.Reject(exchange.ReasonInvalidMessage, "empty meter data set")
	}
	if err := storeInbound(a.deps.Docs, env, model.StatusReceived); err != nil {
		return fmt.Errorf("store meter data %d: %w", env.SequenceNumber, err)
	}
	return acknowledge(a.deps.Engine, env)
}

// OrderedPower returns the committed power for one PTU, zero when no
// order covers it.
func (a *Aggregator) OrderedPower(group string, period string, index int) (*big.Int, bool) {
	a.mu.Lock()
	env, ok := a.orders[orderKey(group, period, index)]
	a.mu.Unlock()
	if !ok {
		return new(big.Int), false
	}
	var body FlexBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return new(big.Int), false
	}
	for _, p := range body.Ptus {
		if p.Index == index {
			v, _ := new(big.Int).SetString(p.PowerW, 10)
			return v, true
		}
	}
	return new(big.Int), false
}

func orderKey(group, period string, index int) string {
	return fmt.Sprintf("%s|%s|%d", group, period, index)
}

package scenarios

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/usef/coordinator"
	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/exchange"
	coremetrics "github.com/kilianp07/usef/core/metrics"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/router"
	"github.com/kilianp07/usef/core/scheduler"
	"github.com/kilianp07/usef/core/sign"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/infra/metrics"
	"github.com/kilianp07/usef/internal/eventbus"
)

// partyKeys holds every participant's key pair and doubles as key store
// and directory for the loopback nodes.
type partyKeys struct {
	priv map[string]string
	pub  map[string]string
}

func newPartyKeys(participants ...model.Participant) (*partyKeys, error) {
	k := &partyKeys{priv: map[string]string{}, pub: map[string]string{}}
	for _, p := range participants {
		priv, blob, err := sign.GenerateKeyPair([]byte(p.String()))
		if err != nil {
			return nil, err
		}
		k.priv[p.String()] = priv
		k.pub[p.String()] = blob
	}
	return k, nil
}

func (k *partyKeys) PrivateKey(p model.Participant) (string, error) {
	if s, ok := k.priv[p.String()]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no private key for %s", p)
}

func (k *partyKeys) PublicBlob(p model.Participant) (string, error) {
	if s, ok := k.pub[p.String()]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no public key for %s", p)
}

func (k *partyKeys) Endpoint(p model.Participant) (string, error) {
	return "loopback://" + p.Domain, nil
}

// party is one loopback node in the scenario.
type party struct {
	me     model.Participant
	engine *exchange.Engine
	store  *planboard.MemoryStore
}

// RunScenario plays the scenario against a fresh AGR/DSO/BRP triplet
// wired over a synchronous loopback.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	agrP := model.Participant{Role: model.RoleAGR, Domain: "agr.test"}
	dsoP := model.Participant{Role: model.RoleDSO, Domain: "dso.test"}
	brpP := model.Participant{Role: model.RoleBRP, Domain: "brp.test"}

	keys, err := newPartyKeys(agrP, dsoP, brpP)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	signer, err := sign.New(keys, "1.0.0")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	sink, err := metrics.NewPromSinkWithRegistry(coremetrics.Config{}, prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}

	sched := scheduler.NewWallClock(logger.NopLogger{})
	t.Cleanup(sched.Stop)
	cfg := exchange.Config{PtuDurationMinutes: 15, TransactionalFactor: 1, CriticalFactor: 0.25}

	parties := map[string]*party{}
	hub := map[string]*party{}
	ctx := context.Background()

	newParty := func(me model.Participant) (*party, *router.Router) {
		provider := exchange.NewMemoryProvider()
		store := planboard.NewMemoryStore()
		rt := router.New()
		engine, err := exchange.New(me, cfg, signer, keys, sched,
			provider.Queue("outgoing"), provider.Queue("not-sent"), rt,
			store, store, sink, nil, logger.NopLogger{})
		if err != nil {
			t.Fatalf("engine for %s: %v", me, err)
		}
		p := &party{me: me, engine: engine, store: store}
		if err := provider.Subscribe("outgoing", func(payload []byte) {
			var head struct {
				RecipientDomain string `json:"recipient_domain"`
			}
			if err := json.Unmarshal(payload, &head); err != nil {
				t.Errorf("undecodable outbound payload from %s: %v", me, err)
				return
			}
			target, ok := hub[head.RecipientDomain]
			if !ok {
				t.Errorf("outbound payload for unknown domain %s", head.RecipientDomain)
				return
			}
			// Rejections are scenario outcomes, observed via the stores.
			_ = target.engine.OnInbound(ctx, payload)
		}); err != nil {
			t.Fatalf("subscribe outgoing for %s: %v", me, err)
		}
		return p, rt
	}

	phases := eventbus.New[events.PhaseEvent]()
	t.Cleanup(phases.Close)

	agr, agrRt := newParty(agrP)
	dso, dsoRt := newParty(dsoP)
	brp, brpRt := newParty(brpP)
	hub[agrP.Domain], hub[dsoP.Domain], hub[brpP.Domain] = agr, dso, brp
	parties["AGR"], parties["DSO"], parties["BRP"] = agr, dso, brp

	aggregator := coordinator.NewAggregator(coordinator.Deps{Me: agrP, Engine: agr.engine, Docs: agr.store, Ptus: agr.store, Phases: phases})
	aggregator.Register(agrRt)
	gridOp := coordinator.NewGridOperator(coordinator.Deps{Me: dsoP, Engine: dso.engine, Docs: dso.store, Ptus: dso.store, Phases: phases})
	gridOp.Register(dsoRt)
	balanceParty := coordinator.NewBalanceParty(coordinator.Deps{Me: brpP, Engine: brp.engine, Docs: brp.store, Ptus: brp.store, Phases: phases})
	balanceParty.Register(brpRt)

	for i, step := range sc.Steps {
		if err := runStep(gridOp, balanceParty, agrP, step); err != nil {
			t.Fatalf("step %d (%s from %s): %v", i, step.Send, step.From, err)
		}
	}

	for role, want := range sc.Expected.Pending {
		p, ok := parties[role]
		if !ok {
			t.Fatalf("expected.pending names unknown role %s", role)
		}
		if got := p.engine.PendingCount(); got != want {
			t.Errorf("%s pending acknowledgements: got %d, want %d", role, got, want)
		}
	}
	today := time.Now().UTC()
	for _, exp := range sc.Expected.Documents {
		p, ok := parties[exp.Node]
		if !ok {
			t.Fatalf("expected.documents names unknown node %s", exp.Node)
		}
		docs, err := p.store.DocumentsByDay(today)
		if err != nil {
			t.Fatalf("documents of %s: %v", exp.Node, err)
		}
		if !hasDocument(docs, exp) {
			t.Errorf("%s: no %s document with status %s (have %v)", exp.Node, exp.Type, exp.Status, docs)
		}
	}
	for _, exp := range sc.Expected.Ordered {
		got, ok := aggregator.OrderedPower(exp.Group, exp.Period, exp.Index)
		if !ok {
			t.Errorf("no order recorded for %s PTU %d", exp.Group, exp.Index)
			continue
		}
		if got.String() != exp.PowerW {
			t.Errorf("ordered power for PTU %d: got %s, want %s", exp.Index, got, exp.PowerW)
		}
	}
}

func runStep(gridOp *coordinator.GridOperator, balanceParty *coordinator.BalanceParty, agr model.Participant, step Step) error {
	switch step.Send {
	case "FlexRequest":
		_, err := gridOp.SendFlexRequest(agr, flexBody(step))
		return err
	case "FlexOrder":
		_, err := gridOp.SendFlexOrder(agr, flexBody(step))
		return err
	case "FlexSettlement":
		body := coordinator.SettlementBody{Period: step.Period, ConnectionGroup: step.Group}
		for _, it := range step.Items {
			body.Items = append(body.Items, coordinator.SettlementItem{
				Index:      it.Index,
				OrderedW:   it.OrderedW,
				PrognosisW: it.PrognosisW,
				AllocatedW: it.AllocatedW,
				DeliveredW: it.DeliveredW,
			})
		}
		_, err := balanceParty.SendSettlement(agr, body)
		return err
	default:
		return fmt.Errorf("unknown step document %q", step.Send)
	}
}

func flexBody(step Step) coordinator.FlexBody {
	body := coordinator.FlexBody{Period: step.Period, ConnectionGroup: step.Group}
	for _, p := range step.Ptus {
		body.Ptus = append(body.Ptus, coordinator.FlexPtu{Index: p.Index, PowerW: p.PowerW})
	}
	return body
}

func hasDocument(docs []model.Document, exp DocExpect) bool {
	for _, d := range docs {
		if string(d.Type) == exp.Type && string(d.Status) == exp.Status {
			return true
		}
	}
	return false
}

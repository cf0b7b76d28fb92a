package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/kilianp07/usef/coordinator"
	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/router"
	"github.com/kilianp07/usef/core/scheduler"
	"github.com/kilianp07/usef/core/settlement"
	"github.com/kilianp07/usef/core/sign"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/internal/eventbus"
)

// market is the in-process triplet the simulation runs against: an
// aggregator facing a grid operator and a balance party, wired over a
// lossy loopback.
type market struct {
	rng     *rand.Rand
	cfg     Config
	sched   *scheduler.WallClock
	phases  *eventbus.Bus[events.PhaseEvent]
	engines map[string]*exchange.Engine

	aggregator   *coordinator.Aggregator
	gridOp       *coordinator.GridOperator
	balanceParty *coordinator.BalanceParty

	agr, dso, brp model.Participant

	// Counters of the run.
	sent, acked, escalated, disputed int
}

type simKeys struct {
	priv map[string]string
	pub  map[string]string
}

func (k *simKeys) PrivateKey(p model.Participant) (string, error) {
	if s, ok := k.priv[p.String()]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no private key for %s", p)
}

func (k *simKeys) PublicBlob(p model.Participant) (string, error) {
	if s, ok := k.pub[p.String()]; ok {
		return s, nil
	}
	return "", fmt.Errorf("no public key for %s", p)
}

func (k *simKeys) Endpoint(p model.Participant) (string, error) {
	return "loopback://" + p.Domain, nil
}

func newMarket(cfg Config) (*market, error) {
	m := &market{
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		cfg:     cfg,
		phases:  eventbus.New[events.PhaseEvent](),
		engines: map[string]*exchange.Engine{},
		agr:     model.Participant{Role: model.RoleAGR, Domain: "agr.sim"},
		dso:     model.Participant{Role: model.RoleDSO, Domain: "dso.sim"},
		brp:     model.Participant{Role: model.RoleBRP, Domain: "brp.sim"},
	}

	keys := &simKeys{priv: map[string]string{}, pub: map[string]string{}}
	for _, p := range []model.Participant{m.agr, m.dso, m.brp} {
		priv, blob, err := sign.GenerateKeyPair([]byte(p.String()))
		if err != nil {
			return nil, err
		}
		keys.priv[p.String()] = priv
		keys.pub[p.String()] = blob
	}
	signer, err := sign.New(keys, "1.0.0")
	if err != nil {
		return nil, err
	}

	m.sched = scheduler.NewWallClock(logger.NopLogger{})
	engineCfg := exchange.Config{PtuDurationMinutes: 15, TransactionalFactor: 1, CriticalFactor: 0.25}
	ctx := context.Background()

	newNode := func(me model.Participant) (*exchange.Engine, *router.Router, error) {
		provider := exchange.NewMemoryProvider()
		store := planboard.NewMemoryStore()
		rt := router.New()
		engine, err := exchange.New(me, engineCfg, signer, keys, m.sched,
			provider.Queue("outgoing"), provider.Queue("not-sent"), rt,
			store, store, nil, nil, logger.NopLogger{})
		if err != nil {
			return nil, nil, err
		}
		m.engines[me.Domain] = engine
		subErr := provider.Subscribe("outgoing", func(payload []byte) {
			if m.rng.Float64() < m.cfg.DropRate {
				return // lost in transit
			}
			var head struct {
				RecipientDomain string `json:"recipient_domain"`
			}
			if err := json.Unmarshal(payload, &head); err != nil {
				return
			}
			if target, ok := m.engines[head.RecipientDomain]; ok {
				_ = target.OnInbound(ctx, payload)
			}
		})
		return engine, rt, subErr
	}

	agrEngine, agrRt, err := newNode(m.agr)
	if err != nil {
		return nil, err
	}
	_, dsoRt, err := newNode(m.dso)
	if err != nil {
		return nil, err
	}
	_, brpRt, err := newNode(m.brp)
	if err != nil {
		return nil, err
	}

	agrStore := planboard.NewMemoryStore()
	m.aggregator = coordinator.NewAggregator(coordinator.Deps{Me: m.agr, Engine: agrEngine, Docs: agrStore, Ptus: agrStore, Phases: m.phases})
	m.aggregator.Register(agrRt)
	dsoStore := planboard.NewMemoryStore()
	m.gridOp = coordinator.NewGridOperator(coordinator.Deps{Me: m.dso, Engine: m.engines[m.dso.Domain], Docs: dsoStore, Ptus: dsoStore, Phases: m.phases})
	m.gridOp.Register(dsoRt)
	brpStore := planboard.NewMemoryStore()
	m.balanceParty = coordinator.NewBalanceParty(coordinator.Deps{Me: m.brp, Engine: m.engines[m.brp.Domain], Docs: brpStore, Ptus: brpStore, Phases: m.phases})
	m.balanceParty.Register(brpRt)
	return m, nil
}

func (m *market) close() {
	m.sched.Stop()
	m.phases.Close()
}

// playDay runs the configured conversations: for every group a series
// of request/order pairs, then one settlement claim per group, some of
// them deliberately wrong.
func (m *market) playDay(report func(format string, args ...any)) error {
	const period = "2026-03-14"
	for g := 0; g < m.cfg.Groups; g++ {
		group := fmt.Sprintf("ea1.cg.sim%03d", g+1)
		var items []coordinator.SettlementItem
		for c := 0; c < m.cfg.Conversations; c++ {
			index := m.rng.Intn(96)
			power := int64(m.rng.Intn(400_000) - 200_000)
			body := coordinator.FlexBody{
				Period:          period,
				ConnectionGroup: group,
				Ptus:            []coordinator.FlexPtu{{Index: index, PowerW: fmt.Sprintf("%d", power)}},
			}
			if _, err := m.gridOp.SendFlexRequest(m.agr, body); err != nil {
				return fmt.Errorf("flex request: %w", err)
			}
			m.sent++
			if _, err := m.gridOp.SendFlexOrder(m.agr, body); err != nil {
				return fmt.Errorf("flex order: %w", err)
			}
			m.sent++
			report("group %s PTU %d: ordered %d W", group, index, power)

			items = append(items, m.settlementItem(index, power))
		}
		claim := coordinator.SettlementBody{Period: period, ConnectionGroup: group, Items: items}
		if _, err := m.balanceParty.SendSettlement(m.agr, claim); err != nil {
			return fmt.Errorf("settlement: %w", err)
		}
		m.sent++
	}

	for domain, engine := range m.engines {
		open := engine.PendingCount()
		if open > 0 {
			report("%s still waits on %d acknowledgements", domain, open)
		}
		m.escalated += open
	}
	m.acked = m.sent - m.escalated
	return nil
}

// settlementItem builds one claim line; a DisputeRate fraction carries
// an inflated delivered value the aggregator must dispute.
func (m *market) settlementItem(index int, ordered int64) coordinator.SettlementItem {
	prognosis := int64(m.rng.Intn(100_000))
	allocated := prognosis + ordered/2
	delivered := settlement.DeliveredFlexPower(
		big.NewInt(ordered), big.NewInt(prognosis), big.NewInt(allocated))
	if m.rng.Float64() < m.cfg.DisputeRate {
		delivered = new(big.Int).Add(delivered, big.NewInt(1000))
		m.disputed++
	}
	return coordinator.SettlementItem{
		Index:      index,
		OrderedW:   fmt.Sprintf("%d", ordered),
		PrognosisW: fmt.Sprintf("%d", prognosis),
		AllocatedW: fmt.Sprintf("%d", allocated),
		DeliveredW: delivered.String(),
	}
}

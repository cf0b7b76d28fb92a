package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/router"
)

// ReadingSource provides allocated power measurements per connection
// group and PTU. The production implementation wraps the metering
// backend; tests inject a fixed source.
type ReadingSource interface {
	AllocatedPower(group string, ptu model.Ptu) (*big.Int, error)
}

// zeroSource reports zero allocation for every PTU.
type zeroSource struct{}

func (zeroSource) AllocatedPower(string, model.Ptu) (*big.Int, error) { return new(big.Int), nil }

// MeterDataCompany carries the MDC obligations: once a PTU moves to
// pending settlement it distributes the metered allocation to the
// configured recipients. The MDC takes no part in the PTU lifecycle
// itself.
type MeterDataCompany struct {
	deps       Deps
	source     ReadingSource
	recipients []model.Participant
}

// NewMeterDataCompany creates the MDC coordinator. A nil source reports
// zero allocation.
func NewMeterDataCompany(deps Deps, source ReadingSource, recipients []model.Participant) *MeterDataCompany {
	deps.setDefaults()
	if source == nil {
		source = zeroSource{}
	}
	return &MeterDataCompany{deps: deps, source: source, recipients: recipients}
}

// Register installs the MDC handlers. The MDC only answers
// connectivity probes; meter data flows outward.
func (m *MeterDataCompany) Register(rt *router.Router) {
	registerTestMessage(rt, m.deps.Engine)
}

// Run distributes meter data when PTUs move to pending settlement.
func (m *MeterDataCompany) Run(ctx context.Context) {
	runPhases(ctx, m.deps.Phases, func(ev events.PhaseEvent) {
		if ev.Phase != model.PhasePendingSettlement {
			return
		}
		if err := m.distribute(ev); err != nil {
			m.deps.Log.Errorf("distribute meter data for PTU %d of %s: %v", ev.Index, ev.Period.Format("2006-01-02"), err)
		}
	})
}

// meterDataBody is the payload of a MeterDataSet.
type meterDataBody struct {
	Period          string         `json:"period"`
	ConnectionGroup string         `json:"connection_group"`
	Readings        []meterReading `json:"readings"`
}

type meterReading struct {
	Index      int    `json:"index"`
	AllocatedW string `json:"allocated_w"`
}

func (m *MeterDataCompany) distribute(ev events.PhaseEvent) error {
	if m.deps.Ptus == nil {
		return nil
	}
	groups, err := m.deps.Ptus.ConnectionGroups()
	if err != nil {
		return fmt.Errorf("list connection groups: %w", err)
	}
	ptu := model.Ptu{Period: ev.Period, Index: ev.Index}
	for _, g := range groups {
		allocated, err := m.source.AllocatedPower(g.ID, ptu)
		if err != nil {
			return fmt.Errorf("read allocation of group %s: %w", g.ID, err)
		}
		body := meterDataBody{
			Period:          day(ev.Period).Format("2006-01-02"),
			ConnectionGroup: g.ID,
			Readings:        []meterReading{{Index: ev.Index, AllocatedW: allocated.String()}},
		}
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("serialize meter data: %w", err)
		}
		for _, r := range m.recipients {
			doc := model.Document{
				Type:            model.DocMeterDataSet,
				Recipient:       r,
				Period:          ev.Period,
				ConnectionGroup: g.ID,
				Body:            raw,
			}
			if _, err := m.deps.Engine.Send(doc, PrecedenceFor(model.DocMeterDataSet)); err != nil {
				return fmt.Errorf("send meter data for group %s to %s: %w", g.ID, r, err)
			}
		}
	}
	return nil
}

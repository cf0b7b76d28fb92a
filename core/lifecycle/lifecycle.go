package lifecycle

import (
	"time"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/scheduler"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/internal/eventbus"
)

// Engine advances the lifecycle phase of every tracked (connection
// group, PTU) pair on a wall-clock schedule. It owns no per-PTU timers:
// three recurring triggers derive the affected PTU or day from the
// current time and the configured gate-closure offsets.
type Engine struct {
	cfg   Config
	role  model.Role
	store planboard.PtuStore
	bus   *eventbus.Bus[events.PhaseEvent]
	sched scheduler.Scheduler
	log   logger.Logger

	now func() time.Time
}

// New creates an Engine. The bus may be shared with other components;
// events are published after the planboard writes succeed.
func New(cfg Config, role model.Role, store planboard.PtuStore, bus *eventbus.Bus[events.PhaseEvent], sched scheduler.Scheduler, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Engine{
		cfg:   cfg,
		role:  role,
		store: store,
		bus:   bus,
		sched: sched,
		log:   log,
		now:   time.Now,
	}
}

// Register installs the three recurring triggers. A pure meter-data role
// takes no part in gate closures; registration is skipped entirely.
func (e *Engine) Register() {
	if e.role == model.RoleMDC {
		e.log.Infof("meter-data role: lifecycle triggers not registered")
		return
	}
	now := e.now()
	d := e.cfg.PtuDuration()

	e.sched.RegisterRecurring("day-ahead-closure",
		e.untilDayAheadTrigger(now), 24*time.Hour, e.fireDayAheadClosure)
	e.sched.RegisterRecurring("intraday-closure",
		NextBoundary(now, e.cfg.PtuDurationMinutes).Sub(now), d, e.fireIntradayClosure)
	e.sched.RegisterRecurring("move-to-operate",
		NextBoundary(now, e.cfg.PtuDurationMinutes).Sub(now), d, e.fireMoveToOperate)
}

// untilDayAheadTrigger returns the delay until the next run of the
// day-ahead trigger: gate closure minus the configured PTU offset.
func (e *Engine) untilDayAheadTrigger(now time.Time) time.Duration {
	hour, minute, _ := e.cfg.gateClosure()
	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).
		Add(-time.Duration(e.cfg.DayAheadClosurePtus) * e.cfg.PtuDuration())
	if !at.After(now) {
		at = at.Add(24 * time.Hour)
	}
	return at.Sub(now)
}

// dayAheadDay selects the day affected by a day-ahead closure firing at
// now. The trigger fires offset PTUs ahead of the configured closure
// time-of-day, so the comparison index comes from that configured
// instant, not from the fire time: when the offset reaches back across
// midnight the closure belongs to the day after tomorrow.
func (e *Engine) dayAheadDay(now time.Time) time.Time {
	hour, minute, _ := e.cfg.gateClosure()
	closure := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if e.cfg.DayAheadClosurePtus >= PtuIndex(closure, e.cfg.PtuDurationMinutes) {
		return day(now).AddDate(0, 0, 2)
	}
	return day(now).AddDate(0, 0, 1)
}

func (e *Engine) fireDayAheadClosure() {
	now := e.now()
	period := e.dayAheadDay(now)
	groups, err := e.store.ConnectionGroups()
	if err != nil {
		e.log.Errorf("day-ahead closure: list connection groups: %v", err)
		return
	}
	perDay := model.PtusPerDay(e.cfg.PtuDurationMinutes)
	for _, g := range groups {
		for idx := 1; idx <= perDay; idx++ {
			ptu := model.Ptu{Period: period, Index: idx}
			if err := e.store.AdvancePhase(g.ID, ptu, model.PhaseDayAheadClosed); err != nil {
				e.log.Errorf("day-ahead closure: advance %s %s/%d: %v", g.ID, period.Format("2006-01-02"), idx, err)
			}
		}
	}
	e.log.Infof("day-ahead gate closed for %s", period.Format("2006-01-02"))
	e.bus.Publish(events.PhaseEvent{Phase: model.PhaseDayAheadClosed, Period: period})
}

func (e *Engine) fireIntradayClosure() {
	target := e.now().Add(time.Duration(e.cfg.IntradayClosurePtus) * e.cfg.PtuDuration())
	e.advancePtu(target, model.PhaseIntradayClosed, "intraday closure")
}

func (e *Engine) fireMoveToOperate() {
	// A small jitter guard: the trigger fires on the boundary, the PTU
	// that starts there is derived a few seconds into it.
	target := e.now().Add(30 * time.Second)
	e.advancePtu(target, model.PhaseOperate, "move to operate")
}

// advancePtu moves the PTU containing target to phase for every tracked
// connection group, then publishes the corresponding event.
func (e *Engine) advancePtu(target time.Time, phase model.Phase, what string) {
	ptu := model.Ptu{Period: day(target), Index: PtuIndex(target, e.cfg.PtuDurationMinutes)}
	groups, err := e.store.ConnectionGroups()
	if err != nil {
		e.log.Errorf("%s: list connection groups: %v", what, err)
		return
	}
	for _, g := range groups {
		if err := e.store.AdvancePhase(g.ID, ptu, phase); err != nil {
			e.log.Errorf("%s: advance %s %s/%d: %v", what, g.ID, ptu.Period.Format("2006-01-02"), ptu.Index, err)
		}
	}
	e.log.Debugw(what, map[string]any{
		"period": ptu.Period.Format("2006-01-02"), "ptu_index": ptu.Index, "phase": phase.String(),
	})
	e.bus.Publish(events.PhaseEvent{Phase: phase, Period: ptu.Period, Index: ptu.Index})
}

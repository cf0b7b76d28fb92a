package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/internal/eventbus"
)

func TestNextBoundary(t *testing.T) {
	loc := time.UTC
	for _, d := range []int{5, 15, 30, 60} {
		for minOfDay := 0; minOfDay < 24*60; minOfDay += 7 {
			at := time.Date(2026, 3, 10, 0, 0, 13, 0, loc).Add(time.Duration(minOfDay) * time.Minute)
			b := NextBoundary(at, d)
			if b.Before(at) {
				t.Fatalf("d=%d t=%v: boundary %v before t", d, at, b)
			}
			if m := b.Hour()*60 + b.Minute(); m%d != 0 || b.Second() != 0 {
				t.Fatalf("d=%d t=%v: %v is not a boundary", d, at, b)
			}
			if b.Sub(at) >= time.Duration(d)*time.Minute {
				t.Fatalf("d=%d t=%v: %v is not the smallest boundary", d, at, b)
			}
		}
	}
}

func TestNextBoundaryExactAndMidnight(t *testing.T) {
	on := time.Date(2026, 3, 10, 10, 15, 0, 0, time.UTC)
	require.Equal(t, on, NextBoundary(on, 15))

	late := time.Date(2026, 3, 10, 23, 55, 1, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), NextBoundary(late, 15))
}

func TestPtuIndex(t *testing.T) {
	cases := []struct {
		hour, minute, duration, want int
	}{
		{0, 0, 15, 1},
		{0, 10, 15, 1},
		{0, 15, 15, 2},
		{23, 59, 15, 96},
		{12, 0, 60, 13},
	}
	for _, c := range cases {
		at := time.Date(2026, 3, 10, c.hour, c.minute, 0, 0, time.UTC)
		if got := PtuIndex(at, c.duration); got != c.want {
			t.Fatalf("index(%02d:%02d, %d) = %d, want %d", c.hour, c.minute, c.duration, got, c.want)
		}
	}
}

func newEngine(t *testing.T, cfg Config, role model.Role, now time.Time) (*Engine, *planboard.MemoryStore, <-chan events.PhaseEvent) {
	t.Helper()
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	store := planboard.NewMemoryStore(
		model.ConnectionGroup{ID: "ea1.cg.balance-a"},
		model.ConnectionGroup{ID: "ea1.cg.congestion-b"},
	)
	bus := eventbus.New[events.PhaseEvent]()
	e := New(cfg, role, store, bus, nil, logger.NopLogger{})
	e.now = func() time.Time { return now }
	return e, store, bus.Subscribe()
}

func TestDayAheadDaySelection(t *testing.T) {
	// The affected day is evaluated at the instant the trigger actually
	// fires (closure minus the offset window), never at the closure
	// instant itself.
	cases := []struct {
		name    string
		closure string
		offset  int
		want    time.Time
	}{
		// Closure 00:10, offset 2: the trigger fires 23:40 the evening
		// before, and the day after tomorrow is affected.
		{"offset straddles midnight", "00:10", 2, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		// Offset equal to the closure's PTU index still reaches across
		// midnight.
		{"boundary tie", "00:15", 2, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		// Trigger at midnight sharp of the closure day: the window stays
		// within the day.
		{"offset below closure index", "00:15", 1, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		// An evening closure keeps trigger and closure well within the
		// same day.
		{"evening closure", "18:00", 2, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{PtuDurationMinutes: 15, DayAheadGateClosure: tc.closure, DayAheadClosurePtus: tc.offset}
			e, _, _ := newEngine(t, cfg, model.RoleDSO, time.Time{})

			now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
			fire := now.Add(e.untilDayAheadTrigger(now))
			require.Equal(t, tc.want, e.dayAheadDay(fire))
		})
	}
}

func TestFireDayAheadClosure(t *testing.T) {
	cfg := Config{PtuDurationMinutes: 60, DayAheadGateClosure: "18:00", DayAheadClosurePtus: 2}
	now := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	e, store, sub := newEngine(t, cfg, model.RoleBRP, now)

	e.fireDayAheadClosure()

	period := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	for idx := 1; idx <= 24; idx++ {
		phase, ok, err := store.Phase("ea1.cg.balance-a", model.Ptu{Period: period, Index: idx})
		require.NoError(t, err)
		require.True(t, ok, "ptu %d not created", idx)
		require.Equal(t, model.PhaseDayAheadClosed, phase)
	}
	ev := <-sub
	require.Equal(t, model.PhaseDayAheadClosed, ev.Phase)
	require.Equal(t, period, ev.Period)
}

func TestFireIntradayClosure(t *testing.T) {
	cfg := Config{PtuDurationMinutes: 15, IntradayClosurePtus: 4}
	now := time.Date(2026, 3, 10, 10, 2, 0, 0, time.UTC)
	e, store, sub := newEngine(t, cfg, model.RoleAGR, now)

	e.fireIntradayClosure()

	// 10:02 + 4 PTUs = 11:02 -> index 45.
	ptu := model.Ptu{Period: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Index: 45}
	phase, ok, err := store.Phase("ea1.cg.congestion-b", ptu)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.PhaseIntradayClosed, phase)
	ev := <-sub
	require.Equal(t, model.PhaseIntradayClosed, ev.Phase)
	require.Equal(t, 45, ev.Index)
}

func TestFireMoveToOperateWrapsMidnight(t *testing.T) {
	cfg := Config{PtuDurationMinutes: 15}
	now := time.Date(2026, 3, 10, 23, 59, 45, 0, time.UTC)
	e, store, sub := newEngine(t, cfg, model.RoleAGR, now)

	e.fireMoveToOperate()

	// 23:59:45 + 30s lands in the first PTU of the next day.
	ptu := model.Ptu{Period: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), Index: 1}
	phase, ok, err := store.Phase("ea1.cg.balance-a", ptu)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.PhaseOperate, phase)
	ev := <-sub
	require.Equal(t, 1, ev.Index)
	require.Equal(t, ptu.Period, ev.Period)
}

func TestPhaseNeverMovesBackwards(t *testing.T) {
	cfg := Config{PtuDurationMinutes: 15, IntradayClosurePtus: 4}
	now := time.Date(2026, 3, 10, 10, 2, 0, 0, time.UTC)
	e, store, _ := newEngine(t, cfg, model.RoleAGR, now)

	ptu := model.Ptu{Period: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), Index: 45}
	require.NoError(t, store.AdvancePhase("ea1.cg.balance-a", ptu, model.PhaseOperate))

	e.fireIntradayClosure() // targets index 45, already operating

	phase, _, err := store.Phase("ea1.cg.balance-a", ptu)
	require.NoError(t, err)
	require.Equal(t, model.PhaseOperate, phase)
}

type recordingScheduler struct {
	names []string
}

func (r *recordingScheduler) RegisterRecurring(name string, _, _ time.Duration, _ func()) {
	r.names = append(r.names, name)
}
func (r *recordingScheduler) ScheduleOnce(string, time.Duration, func()) func() bool {
	return func() bool { return false }
}
func (r *recordingScheduler) Stop() {}

func TestRegisterSkippedForMeterDataRole(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	sched := &recordingScheduler{}
	e := New(cfg, model.RoleMDC, planboard.NewMemoryStore(), eventbus.New[events.PhaseEvent](), sched, logger.NopLogger{})
	e.Register()
	require.Empty(t, sched.names)

	e = New(cfg, model.RoleBRP, planboard.NewMemoryStore(), eventbus.New[events.PhaseEvent](), sched, logger.NopLogger{})
	e.Register()
	require.Equal(t, []string{"day-ahead-closure", "intraday-closure", "move-to-operate"}, sched.names)
}

func TestUntilDayAheadTrigger(t *testing.T) {
	cfg := Config{PtuDurationMinutes: 15, DayAheadGateClosure: "18:00", DayAheadClosurePtus: 8}
	e, _, _ := newEngine(t, cfg, model.RoleBRP, time.Time{})

	// Trigger time is 16:00 (18:00 minus 8 x 15m).
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.Equal(t, 4*time.Hour, e.untilDayAheadTrigger(now))

	// Past today's trigger time: wait for tomorrow's run.
	now = time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	require.Equal(t, 23*time.Hour, e.untilDayAheadTrigger(now))
}

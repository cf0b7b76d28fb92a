package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/kilianp07/usef/infra/logger"
)

func TestRecurringFiresRepeatedly(t *testing.T) {
	c := NewWallClock(logger.NopLogger{})
	defer c.Stop()
	var n atomic.Int32
	c.RegisterRecurring("test", 0, 10*time.Millisecond, func() { n.Add(1) })
	deadline := time.After(2 * time.Second)
	for n.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 firings, got %d", n.Load())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestRecurringSurvivesPanic(t *testing.T) {
	c := NewWallClock(logger.NopLogger{})
	defer c.Stop()
	var n atomic.Int32
	c.RegisterRecurring("flaky", 0, 10*time.Millisecond, func() {
		if n.Add(1) == 1 {
			panic("first firing fails")
		}
	})
	deadline := time.After(2 * time.Second)
	for n.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("trigger did not survive a panicking firing")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestScheduleOnceCancel(t *testing.T) {
	c := NewWallClock(logger.NopLogger{})
	defer c.Stop()
	var fired atomic.Bool
	cancel := c.ScheduleOnce("deadline", 50*time.Millisecond, func() { fired.Store(true) })
	if !cancel() {
		t.Fatal("cancel should win against a distant deadline")
	}
	time.Sleep(80 * time.Millisecond)
	if fired.Load() {
		t.Fatal("cancelled timer still fired")
	}
}

func TestScheduleOnceFires(t *testing.T) {
	c := NewWallClock(logger.NopLogger{})
	defer c.Stop()
	done := make(chan struct{})
	c.ScheduleOnce("deadline", time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("one-shot timer never fired")
	}
}

func TestStopHaltsTriggers(t *testing.T) {
	c := NewWallClock(logger.NopLogger{})
	var n atomic.Int32
	c.RegisterRecurring("test", 0, 5*time.Millisecond, func() { n.Add(1) })
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	seen := n.Load()
	time.Sleep(30 * time.Millisecond)
	if n.Load() != seen {
		t.Fatal("trigger fired after Stop")
	}
}

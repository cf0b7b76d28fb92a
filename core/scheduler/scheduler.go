package scheduler

import (
	"sync"
	"time"

	"github.com/kilianp07/usef/infra/logger"
)

// Scheduler registers named recurring callbacks and one-shot timers.
type Scheduler interface {
	// RegisterRecurring fires fn after initialDelay and then every period
	// until the scheduler is stopped. A panic inside fn is logged and does
	// not unregister the trigger.
	RegisterRecurring(name string, initialDelay, period time.Duration, fn func())

	// ScheduleOnce fires fn once after delay. The returned cancel function
	// reports true if it prevented the firing.
	ScheduleOnce(name string, delay time.Duration, fn func()) (cancel func() bool)

	// Stop cancels all recurring triggers and waits for in-flight firings.
	Stop()
}

// WallClock is the production Scheduler backed by the runtime timers.
type WallClock struct {
	log  logger.Logger
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewWallClock creates a Scheduler logging through the given logger.
func NewWallClock(log logger.Logger) *WallClock {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &WallClock{log: log, stop: make(chan struct{})}
}

func (c *WallClock) RegisterRecurring(name string, initialDelay, period time.Duration, fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		initial := time.NewTimer(initialDelay)
		defer initial.Stop()
		select {
		case <-initial.C:
		case <-c.stop:
			return
		}
		c.fire(name, fn)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.fire(name, fn)
			case <-c.stop:
				return
			}
		}
	}()
	c.log.Debugw("trigger registered", map[string]any{
		"trigger": name, "initial_delay": initialDelay.String(), "period": period.String(),
	})
}

// fire runs one trigger invocation. Failures are contained so the next
// scheduled firing still occurs.
func (c *WallClock) fire(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("trigger %s panicked: %v", name, r)
		}
	}()
	fn()
}

func (c *WallClock) ScheduleOnce(name string, delay time.Duration, fn func()) func() bool {
	timer := time.AfterFunc(delay, func() {
		c.fire(name, fn)
	})
	return timer.Stop
}

func (c *WallClock) Stop() {
	c.once.Do(func() { close(c.stop) })
	c.wg.Wait()
}

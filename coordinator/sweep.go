package coordinator

import (
	"time"

	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/scheduler"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/internal/eventbus"
)

// Sweeper periodically re-sends documents whose delivery escalated.
// The delivery engine flags them TO_BE_RECREATED; the sweep picks them
// up, re-sends under a fresh conversation and publishes a RecreateEvent
// per document.
type Sweeper struct {
	docs     planboard.DocumentStore
	engine   *exchange.Engine
	sched    scheduler.Scheduler
	bus      *eventbus.Bus[events.RecreateEvent]
	log      logger.Logger
	interval time.Duration
}

// NewSweeper creates a sweep running at the given interval. A zero
// interval defaults to one minute.
func NewSweeper(docs planboard.DocumentStore, engine *exchange.Engine, sched scheduler.Scheduler, bus *eventbus.Bus[events.RecreateEvent], interval time.Duration, log logger.Logger) *Sweeper {
	if interval == 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if bus == nil {
		bus = eventbus.New[events.RecreateEvent]()
	}
	return &Sweeper{docs: docs, engine: engine, sched: sched, bus: bus, log: log, interval: interval}
}

// Register schedules the recurring sweep.
func (s *Sweeper) Register() {
	s.sched.RegisterRecurring("recreate-sweep", s.interval, s.interval, s.Sweep)
}

// Sweep re-sends every flagged document once.
func (s *Sweeper) Sweep() {
	docs, err := s.docs.ToBeRecreated()
	if err != nil {
		s.log.Errorf("list documents to recreate: %v", err)
		return
	}
	for _, doc := range docs {
		// Re-sending keeps the sequence number; the engine resets the
		// status to SENT, clearing the flag.
		if _, err := s.engine.Send(doc, PrecedenceFor(doc.Type)); err != nil {
			s.log.Errorf("recreate document %d: %v", doc.SequenceNumber, err)
			continue
		}
		s.log.Infof("document %d (%s) recreated", doc.SequenceNumber, doc.Type)
		s.bus.Publish(events.RecreateEvent{
			SequenceNumber: doc.SequenceNumber,
			SenderDomain:   doc.Sender.Domain,
			Type:           doc.Type,
		})
	}
}

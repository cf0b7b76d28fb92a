// Package archive ages plan-board documents out of the working set. Past
// days beyond the retention window are archived in place; archived rows
// stay queryable for exports.
package archive

import (
	"time"

	"github.com/kilianp07/usef/core/planboard"
	"github.com/kilianp07/usef/core/scheduler"
	"github.com/kilianp07/usef/infra/logger"
)

// Job archives one expired day per daily run.
type Job struct {
	docs          planboard.DocumentStore
	sched         scheduler.Scheduler
	retentionDays int
	log           logger.Logger
	now           func() time.Time
}

// New creates the retention job. Days older than retentionDays are
// archived.
func New(docs planboard.DocumentStore, sched scheduler.Scheduler, retentionDays int, log logger.Logger) *Job {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Job{docs: docs, sched: sched, retentionDays: retentionDays, log: log, now: time.Now}
}

// Register schedules the job to run daily.
func (j *Job) Register() {
	j.sched.RegisterRecurring("document-archive", time.Minute, 24*time.Hour, j.RunOnce)
}

// RunOnce archives the day that just left the retention window.
func (j *Job) RunOnce() {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retentionDays)
	if err := j.docs.CleanupDay(cutoff); err != nil {
		j.log.Errorf("archive documents of %s: %v", cutoff.Format("2006-01-02"), err)
		return
	}
	j.log.Infof("archived documents of %s", cutoff.Format("2006-01-02"))
}

// Backfill archives every day from from to to inclusive. It covers nodes
// that were offline past their retention window.
func Backfill(docs planboard.DocumentStore, from, to time.Time) error {
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if err := docs.CleanupDay(d); err != nil {
			return err
		}
	}
	return nil
}

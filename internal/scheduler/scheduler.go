// Package scheduler fires the orchestration task at four fixed daily
// UTC instants: same gocron wiring as the periodic weather-fetch job
// this pipeline is descended from, with a cron expression in place of
// a fixed interval. Each fire calls Task.RunWithRetry directly; the
// per-attempt deadline lives on the Task itself (internal/orchestrator),
// not here, since it bounds a single attempt rather than the whole
// fire-to-completion retry sequence.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/evaonline/matopiba-pipeline/internal/orchestrator"
)

// DefaultCron fires at 00:00, 06:00, 12:00, and 18:00 UTC — the four
// run labels the rest of the pipeline is built around.
const DefaultCron = "0 0,6,12,18 * * *"

// Scheduler wraps a gocron.Scheduler that fires the orchestration task
// on a cron schedule.
type Scheduler struct {
	scheduler *gocron.Scheduler
	task      *orchestrator.Task
	cronExpr  string
}

// New builds a Scheduler. cronExpr follows standard 5-field cron
// syntax; pass "" to use DefaultCron.
func New(task *orchestrator.Task, cronExpr string) *Scheduler {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		task:      task,
		cronExpr:  cronExpr,
	}
}

// Start registers the cron job and begins firing it asynchronously.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Cron(s.cronExpr).Do(s.runOnce)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runOnce() {
	triggerHour := time.Now().UTC().Hour()
	log.Printf("scheduler: firing orchestration task for hour %02dh UTC", triggerHour)

	report, err := s.task.RunWithRetry(context.Background(), triggerHour)
	if err != nil {
		if err == orchestrator.ErrRunInProgress {
			log.Printf("scheduler: skipped fire for hour %02dh UTC; a run is already in progress", triggerHour)
			return
		}
		log.Printf("scheduler: run for hour %02dh UTC failed: %v", triggerHour, err)
		return
	}

	log.Printf("scheduler: run for hour %02dh UTC complete: %d/%d cities succeeded, %d city-level failures",
		triggerHour, report.Snapshot.Metadata.NCitiesSucceeded, report.Snapshot.Metadata.NCitiesAttempted, len(report.CityFailures))
}


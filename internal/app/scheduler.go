/**
 * @description
 * Cron scheduler setup for the periodic jobs. Every job runs on a fixed interval
 * and is skipped while its previous run is still in progress.
 */
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/transfa/economy-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger

	autosaveEntry cron.EntryID
	sweepEntries  []cron.EntryID
	started       bool
	stopped       bool
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
	}
}

// Start registers the jobs and starts the cron scheduler. Calling it twice, or after
// Stop, does nothing.
func (s *Scheduler) Start(cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}

	s.scheduleAutosaveLocked(cfg.AutosaveInterval())
	s.scheduleSweepsLocked(cfg.SweepInterval())

	s.cron.Start()
	s.started = true
}

// Reschedule applies new intervals from a reloaded configuration.
func (s *Scheduler) Reschedule(cfg config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.scheduleAutosaveLocked(cfg.AutosaveInterval())
	s.scheduleSweepsLocked(cfg.SweepInterval())
}

func (s *Scheduler) scheduleAutosaveLocked(interval time.Duration) {
	if s.autosaveEntry != 0 {
		s.cron.Remove(s.autosaveEntry)
		s.autosaveEntry = 0
	}
	if interval <= 0 {
		s.logger.Info("autosave disabled")
		return
	}
	s.autosaveEntry = s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.jobs.Autosave))
	s.logger.Info("scheduled autosave job", "interval", interval.String())
}

func (s *Scheduler) scheduleSweepsLocked(interval time.Duration) {
	for _, id := range s.sweepEntries {
		s.cron.Remove(id)
	}
	s.sweepEntries = s.sweepEntries[:0]
	if interval <= 0 {
		interval = time.Second
	}
	s.sweepEntries = append(s.sweepEntries,
		s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.jobs.ExpireChargeRequests)),
		s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.jobs.ExpirePaySessions)),
	)
	s.logger.Info("scheduled expiry sweep jobs", "interval", interval.String())
}

// Stop cancels all timers and waits for running jobs until ctx expires. Jobs still
// running at that point are abandoned with a warning. Stopping a scheduler that was
// never started, or stopping twice, is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out; abandoning in-flight jobs", "error", ctx.Err())
		return ctx.Err()
	}
}

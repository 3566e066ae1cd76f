package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"easyform/internal/log"
	"easyform/internal/services"
)

// Scheduler runs the periodic request cleanup job. Requests older than the
// configured age are deleted along with their progress logs and actions.
type Scheduler struct {
	cron       *cron.Cron
	requests   *services.RequestService
	cleanupAge time.Duration
	logger     *slog.Logger
}

// New creates a scheduler that reaps requests older than cleanupAge.
func New(requests *services.RequestService, cleanupAge time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		requests:   requests,
		cleanupAge: cleanupAge,
		logger:     log.WithModule("scheduler"),
	}
}

// Start registers the cleanup job and starts the cron loop. The job runs at
// the same cadence as the age threshold.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.cleanupAge)
	if _, err := s.cron.AddFunc(spec, s.runCleanup); err != nil {
		return fmt.Errorf("failed to schedule cleanup job: %w", err)
	}
	s.cron.Start()
	s.logger.Info("cleanup job scheduled", "interval", s.cleanupAge)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := s.requests.CleanupOlderThan(ctx, s.cleanupAge)
	if err != nil {
		s.logger.Error("request cleanup failed", "error", err)
		return
	}
	s.logger.Info("request cleanup finished", "deleted", deleted)
}

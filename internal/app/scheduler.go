package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cutline/booking-service/internal/domain"
	"github.com/robfig/cron/v3"
)

const pollTimeout = 2 * time.Minute

// Reconciler is the part of Service the scheduler drives.
type Reconciler interface {
	ReconcileRecent(ctx context.Context, window time.Duration, match *domain.IntentMatch) (*ReconcileResult, error)
}

// Scheduler runs the polling reconciler on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	schedule   string
	window     time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(reconciler Reconciler, schedule string, window time.Duration, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		schedule:   schedule,
		window:     window,
		logger:     logger,
	}
}

// Start registers the poll job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunReconcilePoll); err != nil {
		s.logger.Error("failed to schedule reconcile poll", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("scheduled reconcile poll", "schedule", s.schedule, "window", s.window.String())
	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunReconcilePoll runs one sweep.
func (s *Scheduler) RunReconcilePoll() {
	ctx, cancel := context.WithTimeout(context.Background(), pollTimeout)
	defer cancel()

	s.logger.Info("running reconcile poll")
	result, err := s.reconciler.ReconcileRecent(ctx, s.window, nil)
	if err != nil {
		s.logger.Error("reconcile poll failed", "error", err)
		return
	}
	s.logger.Info("reconcile poll finished",
		"scanned", result.Scanned,
		"created", result.Created,
		"updated", result.Updated,
		"duplicate", result.Duplicate,
		"failed", result.Failed,
	)
}

package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"subbox_backend/internal/subscription"
)

// Jobs is implemented by *subscription.Manager.
type Jobs interface {
	Sweep(ctx context.Context) (subscription.SweepResult, error)
	SendRenewalReminders(ctx context.Context, lead, window time.Duration) (int, error)
}

type Config struct {
	ReconcileSpec    string
	RemindersSpec    string
	ReminderLeadTime time.Duration
	ReminderWindow   time.Duration
	// JobTimeout bounds a single run. Zero means no limit.
	JobTimeout time.Duration
}

// Scheduler runs the periodic reconciliation sweep and renewal reminders.
// Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	cfg    Config
	logger *slog.Logger
}

func NewScheduler(jobs Jobs, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		)),
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
	}

	if cfg.ReconcileSpec != "" {
		if _, err := s.cron.AddFunc(cfg.ReconcileSpec, func() { s.RunSweep(context.Background()) }); err != nil {
			return nil, fmt.Errorf("schedule reconcile sweep %q: %w", cfg.ReconcileSpec, err)
		}
	}
	if cfg.RemindersSpec != "" {
		if _, err := s.cron.AddFunc(cfg.RemindersSpec, func() { s.RunReminders(context.Background()) }); err != nil {
			return nil, fmt.Errorf("schedule renewal reminders %q: %w", cfg.RemindersSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) RunSweep(ctx context.Context) {
	ctx, cancel := s.jobContext(ctx)
	defer cancel()

	started := time.Now()
	res, err := s.jobs.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "reconcile sweep failed", "error", err, "result", res)
		return
	}
	s.logger.InfoContext(ctx, "reconcile sweep finished",
		"tasks_resolved", res.TasksResolved,
		"tasks_pending", res.TasksPending,
		"refreshed", res.Refreshed,
		"failed", res.Failed,
		"duration", time.Since(started),
	)
}

func (s *Scheduler) RunReminders(ctx context.Context) {
	ctx, cancel := s.jobContext(ctx)
	defer cancel()

	sent, err := s.jobs.SendRenewalReminders(ctx, s.cfg.ReminderLeadTime, s.cfg.ReminderWindow)
	if err != nil {
		s.logger.ErrorContext(ctx, "renewal reminders failed", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "renewal reminders sent", "count", sent)
}

func (s *Scheduler) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.JobTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.JobTimeout)
	}
	return context.WithCancel(ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// Package scheduler triggers periodic pipeline runs and the daily session
// re-probe.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/session"
)

// Default cron specs.
const (
	DefaultRunSpec     = "@every 60m"
	DefaultReprobeSpec = "@daily"
)

// Runner starts a pipeline run.
type Runner interface {
	StartRun(ctx context.Context) (string, error)
}

// SessionMonitor is the part of session.Monitor the scheduler drives.
type SessionMonitor interface {
	ValidateForJob(ctx context.Context) (bool, session.Health)
	CheckHealth(ctx context.Context, force bool) session.Health
}

// Config wires a Scheduler. Monitor may be nil when no source needs a session.
type Config struct {
	Runner      Runner
	Monitor     SessionMonitor
	RunSpec     string
	ReprobeSpec string
	Logger      *zap.Logger
}

// Scheduler wraps robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	monitor SessionMonitor
	logger  *zap.Logger
	specs   [2]string
}

// New validates the cron specs and builds a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("scheduler runner is required")
	}
	if cfg.RunSpec == "" {
		cfg.RunSpec = DefaultRunSpec
	}
	if cfg.ReprobeSpec == "" {
		cfg.ReprobeSpec = DefaultReprobeSpec
	}
	logger := logging.OrNop(cfg.Logger).With(zap.String("component", "scheduler"))
	cronLogger := cronLog{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		runner:  cfg.Runner,
		monitor: cfg.Monitor,
		logger:  logger,
		specs:   [2]string{cfg.RunSpec, cfg.ReprobeSpec},
	}
	return s, nil
}

// Start registers the jobs against ctx and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.specs[0], func() { s.TriggerRun(ctx) }); err != nil {
		return fmt.Errorf("schedule run %q: %w", s.specs[0], err)
	}
	if s.monitor != nil {
		if _, err := s.cron.AddFunc(s.specs[1], func() { s.Reprobe(ctx) }); err != nil {
			return fmt.Errorf("schedule reprobe %q: %w", s.specs[1], err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("run_spec", s.specs[0]), zap.String("reprobe_spec", s.specs[1]))
	return nil
}

// Stop halts scheduling. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	s.logger.Info("scheduler stopped")
	return ctx
}

// TriggerRun performs the session preflight and starts a run. A refused
// session only degrades the session-gated source.
func (s *Scheduler) TriggerRun(ctx context.Context) {
	if s.monitor != nil {
		ok, health := s.monitor.ValidateForJob(ctx)
		if !ok {
			s.logger.Warn("session not usable, authenticated source will scrape anonymously",
				zap.String("state", string(health.State)),
				zap.String("message", health.Message),
			)
		}
	}
	id, err := s.runner.StartRun(ctx)
	if err != nil {
		s.logger.Error("scheduled run not started", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run started", zap.String("task_id", id))
}

// Reprobe forces a fresh session probe.
func (s *Scheduler) Reprobe(ctx context.Context) {
	if s.monitor == nil {
		return
	}
	health := s.monitor.CheckHealth(ctx, true)
	s.logger.Info("session reprobed", zap.String("state", string(health.State)))
}

// cronLog adapts zap to cron.Logger.
type cronLog struct {
	logger *zap.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLog) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}

// Package runner starts pipeline runs in the background and tracks them as
// search tasks that callers poll.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/clock/system"
	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/pipeline"
	"github.com/JakeFAU/jobscout/internal/posting"
	"github.com/JakeFAU/jobscout/internal/progress"
	"github.com/JakeFAU/jobscout/internal/task"
)

const (
	progressInitializing = 10
	defaultConcurrency   = 1
	runCompletedEvent    = "run_completed"
)

// ErrNoSources is returned by StartRun when no source is enabled.
var ErrNoSources = errors.New("no job sources are enabled")

// Pipeline executes one run.
type Pipeline interface {
	Run(ctx context.Context, progress pipeline.ProgressFunc) (pipeline.Result, error)
	Sources() []string
}

// IDGenerator mints task ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Publisher announces finished runs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// RunEvent is the payload published when a run completes.
type RunEvent struct {
	Event       string          `json:"event"`
	TaskID      string          `json:"task_id"`
	NewPostings int             `json:"new_postings"`
	BySource    map[string]int  `json:"by_source"`
	Matches     []posting.Match `json:"matches"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// Config wires a Service. Pipeline, Tasks and IDs are required.
type Config struct {
	Pipeline Pipeline
	Tasks    task.Store
	IDs      IDGenerator
	Clock    Clock
	// Events receives progress; when nil progress is written to Tasks directly.
	Events        progress.Emitter
	Publisher     Publisher
	Topic         string
	MaxConcurrent int
	Logger        *zap.Logger
}

// Service owns background runs.
type Service struct {
	cfg    Config
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New validates cfg and builds a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Pipeline == nil:
		return nil, errors.New("runner pipeline is required")
	case cfg.Tasks == nil:
		return nil, errors.New("runner task store is required")
	case cfg.IDs == nil:
		return nil, errors.New("runner id generator is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultConcurrency
	}
	return &Service{
		cfg:    cfg,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		logger: logging.OrNop(cfg.Logger).With(zap.String("component", "runner")),
	}, nil
}

// StartRun records a pending task and schedules the run. It returns as soon
// as the task exists; the run itself is detached from ctx.
func (s *Service) StartRun(ctx context.Context) (string, error) {
	if len(s.cfg.Pipeline.Sources()) == 0 {
		return "", ErrNoSources
	}
	id, err := s.cfg.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	now := s.cfg.Clock.Now()
	err = s.cfg.Tasks.Create(ctx, task.Task{
		ID:        id,
		Status:    task.StatusPending,
		Progress:  0,
		Message:   "Search queued",
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sem <- struct{}{}
		defer func() { <-s.sem }()
		s.execute(context.WithoutCancel(ctx), id)
	}()
	s.logger.Info("run queued", zap.String("task_id", id))
	return id, nil
}

// GetStatus returns the task for id, or task.ErrNotFound.
func (s *Service) GetStatus(ctx context.Context, id string) (task.Task, error) {
	t, err := s.cfg.Tasks.Get(ctx, id)
	if err != nil {
		return task.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// Wait blocks until every queued run has finished or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for runs: %w", ctx.Err())
	}
}

func (s *Service) execute(ctx context.Context, id string) {
	logger := s.logger.With(zap.String("task_id", id))
	start := s.cfg.Clock.Now()
	s.emit(progress.Event{TaskID: id, TS: start, Stage: progress.StageRunStart})
	if _, err := s.cfg.Tasks.Update(ctx, id, task.Progressed(progressInitializing, "Initializing search...")); err != nil {
		logger.Warn("mark task running failed", zap.Error(err))
	}

	result, err := s.runPipeline(ctx, id)
	dur := s.cfg.Clock.Now().Sub(start)
	if err != nil {
		logger.Error("run failed", zap.Error(err), zap.Duration("dur", dur))
		metrics.ObserveRun("failed", dur)
		s.emit(progress.Event{TaskID: id, TS: s.cfg.Clock.Now(), Stage: progress.StageRunError, Message: err.Error(), Dur: dur})
		if _, uerr := s.cfg.Tasks.Update(ctx, id, task.Failed(err.Error())); uerr != nil {
			logger.Error("mark task failed", zap.Error(uerr))
		}
		return
	}

	count := len(result.Matches)
	msg := fmt.Sprintf("Found %d matching jobs", count)
	metrics.ObserveRun("completed", dur)
	s.emit(progress.Event{TaskID: id, TS: s.cfg.Clock.Now(), Stage: progress.StageRunDone, Message: msg, Count: count, Dur: dur})
	if _, err := s.cfg.Tasks.Update(ctx, id, task.Completed(msg, count)); err != nil {
		logger.Error("mark task completed", zap.Error(err))
	}
	logger.Info("run completed",
		zap.Int("new_postings", result.NewPostings),
		zap.Int("matches", count),
		zap.Duration("dur", dur),
	)
	s.publish(ctx, logger, id, result)
}

func (s *Service) runPipeline(ctx context.Context, id string) (result pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return s.cfg.Pipeline.Run(ctx, func(pct int, msg string) {
		s.report(ctx, id, pct, msg)
	})
}

func (s *Service) report(ctx context.Context, id string, pct int, msg string) {
	if s.cfg.Events != nil {
		s.emit(progress.Event{TaskID: id, TS: s.cfg.Clock.Now(), Stage: progress.StageProgress, Percent: pct, Message: msg})
		return
	}
	if _, err := s.cfg.Tasks.Update(ctx, id, task.Progressed(pct, msg)); err != nil {
		s.logger.Warn("progress update failed", zap.String("task_id", id), zap.Error(err))
	}
}

func (s *Service) emit(evt progress.Event) {
	if s.cfg.Events != nil {
		s.cfg.Events.Emit(evt)
	}
}

func (s *Service) publish(ctx context.Context, logger *zap.Logger, id string, result pipeline.Result) {
	if s.cfg.Publisher == nil {
		return
	}
	msgID, err := s.cfg.Publisher.Publish(ctx, s.cfg.Topic, RunEvent{
		Event:       runCompletedEvent,
		TaskID:      id,
		NewPostings: result.NewPostings,
		BySource:    result.BySource,
		Matches:     result.Matches,
		FinishedAt:  s.cfg.Clock.Now(),
	})
	if err != nil {
		logger.Warn("publish run event failed", zap.Error(err))
		return
	}
	logger.Debug("run event published", zap.String("message_id", msgID))
}

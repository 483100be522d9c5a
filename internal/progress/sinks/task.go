package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/progress"
	"github.com/JakeFAU/jobscout/internal/task"
)

// TaskSink writes progress into a task.Store so pollers see it. Within a
// batch only the highest progress per task is written.
type TaskSink struct {
	store  task.Store
	logger *zap.Logger
}

// NewTaskSink wraps store.
func NewTaskSink(store task.Store, logger *zap.Logger) *TaskSink {
	return &TaskSink{store: store, logger: logging.OrNop(logger)}
}

// Consume implements progress.Sink. Terminal events are skipped: the
// runner writes final states directly.
func (s *TaskSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	latest := make(map[string]progress.Event)
	order := make([]string, 0)
	for _, evt := range batch {
		if evt.Stage != progress.StageProgress {
			continue
		}
		prev, seen := latest[evt.TaskID]
		if !seen {
			order = append(order, evt.TaskID)
		}
		if !seen || evt.Percent >= prev.Percent {
			latest[evt.TaskID] = evt
		}
	}
	var errs []error
	for _, id := range order {
		evt := latest[id]
		if _, err := s.store.Update(ctx, id, task.Progressed(evt.Percent, evt.Message)); err != nil {
			errs = append(errs, fmt.Errorf("update task %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements progress.Sink.
func (s *TaskSink) Close(context.Context) error {
	return nil
}

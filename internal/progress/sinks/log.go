package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/progress"
)

// LogSink logs every event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logging.OrNop(logger).With(zap.String("component", "progress"))}
}

// Consume implements progress.Sink.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("task_id", evt.TaskID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("percent", evt.Percent),
			zap.String("message", evt.Message),
		}
		if evt.Terminal() {
			fields = append(fields, zap.Int("count", evt.Count), zap.Duration("dur", evt.Dur))
		}
		s.logger.Info("run progress", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}

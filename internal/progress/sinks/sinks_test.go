package sinks

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/progress"
	"github.com/JakeFAU/jobscout/internal/task"
)

func evt(id string, stage progress.Stage, pct int) progress.Event {
	return progress.Event{TaskID: id, TS: time.Now(), Stage: stage, Percent: pct, Message: "step"}
}

func TestTaskSinkWritesHighestProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := task.NewFileStore(filepath.Join(t.TempDir(), "tasks.json"))
	require.NoError(t, store.Create(ctx, task.Task{ID: "a", Status: task.StatusPending}))

	sink := NewTaskSink(store, zap.NewNop())
	require.NoError(t, sink.Consume(ctx, []progress.Event{
		evt("a", progress.StageRunStart, 0),
		evt("a", progress.StageProgress, 20),
		evt("a", progress.StageProgress, 45),
		evt("a", progress.StageProgress, 30),
		evt("a", progress.StageRunDone, 0),
	}))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, task.StatusRunning, got.Status)
	require.Equal(t, 45, got.Progress)
}

func TestTaskSinkReportsMissingTasks(t *testing.T) {
	t.Parallel()

	store := task.NewFileStore(filepath.Join(t.TempDir(), "tasks.json"))
	sink := NewTaskSink(store, nil)
	err := sink.Consume(context.Background(), []progress.Event{evt("ghost", progress.StageProgress, 10)})
	require.True(t, errors.Is(err, task.ErrNotFound))
	require.NoError(t, sink.Close(context.Background()))
}

func TestPrometheusSinkTracksRuns(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		evt("a", progress.StageRunStart, 0),
		evt("a", progress.StageRunStart, 0),
		evt("b", progress.StageRunStart, 0),
		evt("a", progress.StageProgress, 60),
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 60.0, testutil.ToFloat64(sink.runProgress.WithLabelValues("a")))

	done := evt("a", progress.StageRunDone, 100)
	done.Count = 3
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, evt("b", progress.StageRunError, 0)}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1, testutil.CollectAndCount(sink.matches))

	_, err = NewPrometheusSink(reg)
	require.Error(t, err, "duplicate registration fails")
}

func TestLogSinkAcceptsEveryStage(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		evt("a", progress.StageRunStart, 0),
		evt("a", progress.StageRunError, 0),
	}))
	require.NoError(t, sink.Close(context.Background()))
}

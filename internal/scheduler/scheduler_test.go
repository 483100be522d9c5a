package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/session"
)

type fakeRunner struct {
	calls atomic.Int32
	err   error
}

func (r *fakeRunner) StartRun(context.Context) (string, error) {
	r.calls.Add(1)
	return "task-1", r.err
}

type fakeMonitor struct {
	usable bool
	checks atomic.Int32
	forced atomic.Int32
}

func (m *fakeMonitor) ValidateForJob(context.Context) (bool, session.Health) {
	m.checks.Add(1)
	if m.usable {
		return true, session.Health{State: session.StateHealthy}
	}
	return false, session.Health{State: session.StateMissing, NeedsRefresh: true}
}

func (m *fakeMonitor) CheckHealth(_ context.Context, force bool) session.Health {
	if force {
		m.forced.Add(1)
	}
	return session.Health{State: session.StateHealthy}
}

func TestTriggerRunProceedsWhenSessionRefused(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	monitor := &fakeMonitor{}
	s, err := New(Config{Runner: runner, Monitor: monitor, Logger: zap.NewNop()})
	require.NoError(t, err)

	s.TriggerRun(context.Background())
	require.Equal(t, int32(1), monitor.checks.Load())
	require.Equal(t, int32(1), runner.calls.Load())
}

func TestTriggerRunLogsStartFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("no sources")}
	s, err := New(Config{Runner: runner})
	require.NoError(t, err)
	s.TriggerRun(context.Background())
	require.Equal(t, int32(1), runner.calls.Load())
}

func TestReprobeForcesProbe(t *testing.T) {
	t.Parallel()

	monitor := &fakeMonitor{usable: true}
	s, err := New(Config{Runner: &fakeRunner{}, Monitor: monitor})
	require.NoError(t, err)
	s.Reprobe(context.Background())
	require.Equal(t, int32(1), monitor.forced.Load())

	noMonitor, err := New(Config{Runner: &fakeRunner{}})
	require.NoError(t, err)
	noMonitor.Reprobe(context.Background())
}

func TestStartRunsScheduledJobs(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	monitor := &fakeMonitor{usable: true}
	s, err := New(Config{Runner: runner, Monitor: monitor, RunSpec: "@every 1s", ReprobeSpec: "@every 1s"})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer func() { <-s.Stop().Done() }()

	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 1 && monitor.forced.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s, err := New(Config{Runner: &fakeRunner{}, RunSpec: "every tuesday"})
	require.NoError(t, err)
	require.Error(t, s.Start(context.Background()))

	_, err = New(Config{})
	require.Error(t, err)
}

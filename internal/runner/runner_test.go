package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/pipeline"
	"github.com/JakeFAU/jobscout/internal/posting"
	"github.com/JakeFAU/jobscout/internal/progress"
	"github.com/JakeFAU/jobscout/internal/progress/sinks"
	"github.com/JakeFAU/jobscout/internal/publisher/memory"
	"github.com/JakeFAU/jobscout/internal/task"
)

type fakePipeline struct {
	sources []string
	steps   []int
	result  pipeline.Result
	err     error
	panic   bool
	release chan struct{}
}

func (p *fakePipeline) Sources() []string { return p.sources }

func (p *fakePipeline) Run(_ context.Context, report pipeline.ProgressFunc) (pipeline.Result, error) {
	if p.release != nil {
		<-p.release
	}
	if p.panic {
		panic("orchestrator bug")
	}
	for _, pct := range p.steps {
		report(pct, "working")
	}
	return p.result, p.err
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "task-" + string(rune('0'+s.n)), nil
}

// recordingStore captures every progress value a poller could observe.
type recordingStore struct {
	task.Store
	mu       sync.Mutex
	observed []int
}

func (r *recordingStore) Update(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	t, err := r.Store.Update(ctx, id, p)
	if err == nil {
		r.mu.Lock()
		r.observed = append(r.observed, t.Progress)
		r.mu.Unlock()
	}
	return t, err
}

func (r *recordingStore) progress() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.observed...)
}

func newService(t *testing.T, p Pipeline, store task.Store, cfg Config) *Service {
	t.Helper()
	cfg.Pipeline = p
	cfg.Tasks = store
	cfg.IDs = &seqIDs{}
	cfg.Logger = zap.NewNop()
	svc, err := New(cfg)
	require.NoError(t, err)
	return svc
}

func fileStore(t *testing.T) task.Store {
	t.Helper()
	return task.NewFileStore(filepath.Join(t.TempDir(), "tasks.json"))
}

func TestStartRunCompletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &recordingStore{Store: fileStore(t)}
	pub := memory.New("")
	release := make(chan struct{})
	p := &fakePipeline{
		sources: []string{"seek"},
		steps:   []int{20, 40, 40, 60, 80, 95},
		release: release,
		result: pipeline.Result{
			NewPostings: 3,
			BySource:    map[string]int{"seek": 3},
			Matches:     []posting.Match{{Title: "Go dev", URL: "https://s/job/1", Score: 8.2}},
		},
	}
	svc := newService(t, p, store, Config{Publisher: pub, Topic: "runs"})

	id, err := svc.StartRun(ctx)
	require.NoError(t, err)

	pending, err := svc.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, pending.Status)
	require.Equal(t, "Search queued", pending.Message)

	close(release)
	require.NoError(t, svc.Wait(ctx))

	done, err := svc.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, done.Status)
	require.Equal(t, 100, done.Progress)
	require.Equal(t, "Found 1 matching jobs", done.Message)
	require.Equal(t, 1, *done.ResultCount)

	observed := store.progress()
	require.Equal(t, progressInitializing, observed[0])
	for i := 1; i < len(observed); i++ {
		require.GreaterOrEqual(t, observed[i], observed[i-1])
	}

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)
	event, ok := msgs[0].Payload.(RunEvent)
	require.True(t, ok)
	require.Equal(t, id, event.TaskID)
	require.Equal(t, 3, event.NewPostings)
}

func TestStartRunFailures(t *testing.T) {
	t.Parallel()

	cases := map[string]*fakePipeline{
		"error": {sources: []string{"a"}, steps: []int{20}, err: errors.New("load profile: missing")},
		"panic": {sources: []string{"a"}, panic: true},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			svc := newService(t, p, fileStore(t), Config{})

			id, err := svc.StartRun(ctx)
			require.NoError(t, err)
			require.NoError(t, svc.Wait(ctx))

			got, err := svc.GetStatus(ctx, id)
			require.NoError(t, err)
			require.Equal(t, task.StatusFailed, got.Status)
			require.NotEmpty(t, got.Message)
		})
	}
}

func TestStartRunRequiresSources(t *testing.T) {
	t.Parallel()

	svc := newService(t, &fakePipeline{}, fileStore(t), Config{})
	_, err := svc.StartRun(context.Background())
	require.ErrorIs(t, err, ErrNoSources)

	_, err = svc.GetStatus(context.Background(), "nope")
	require.ErrorIs(t, err, task.ErrNotFound)
}

func TestRunSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	store := fileStore(t)
	release := make(chan struct{})
	svc := newService(t, &fakePipeline{sources: []string{"a"}, release: release}, store, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	id, err := svc.StartRun(ctx)
	require.NoError(t, err)
	cancel()
	close(release)
	require.NoError(t, svc.Wait(context.Background()))

	got, err := svc.GetStatus(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, got.Status)
}

func TestRunsAreSerializedByDefault(t *testing.T) {
	t.Parallel()

	store := fileStore(t)
	release := make(chan struct{})
	svc := newService(t, &fakePipeline{sources: []string{"a"}, release: release}, store, Config{})
	ctx := context.Background()

	first, err := svc.StartRun(ctx)
	require.NoError(t, err)
	second, err := svc.StartRun(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a, _ := svc.GetStatus(ctx, first)
		b, _ := svc.GetStatus(ctx, second)
		return (a.Status == task.StatusRunning) != (b.Status == task.StatusRunning)
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, svc.Wait(ctx))
	for _, id := range []string{first, second} {
		got, err := svc.GetStatus(ctx, id)
		require.NoError(t, err)
		require.Equal(t, task.StatusCompleted, got.Status)
	}
}

func TestProgressFlowsThroughHub(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := fileStore(t)
	hub := progress.NewHub(progress.Config{MaxBatchWait: 5 * time.Millisecond}, sinks.NewTaskSink(store, nil))
	release := make(chan struct{})
	p := &fakePipeline{sources: []string{"a"}, steps: []int{20, 60}, release: release}
	svc := newService(t, p, store, Config{Events: hub})

	id, err := svc.StartRun(ctx)
	require.NoError(t, err)
	close(release)
	require.NoError(t, svc.Wait(ctx))
	require.NoError(t, hub.Close(ctx))

	got, err := svc.GetStatus(ctx, id)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
}

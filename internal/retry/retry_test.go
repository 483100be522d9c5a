package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShouldRetryClassification(t *testing.T) {
	t.Parallel()

	p := NewExponential(3, time.Millisecond, 10*time.Millisecond)
	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil", err: nil, attempt: 1, want: false},
		{name: "budget exhausted", err: errors.New("boom"), attempt: 3, want: false},
		{name: "plain transient", err: errors.New("connection reset"), attempt: 1, want: true},
		{name: "canceled", err: context.Canceled, attempt: 1, want: false},
		{name: "attempt deadline", err: context.DeadlineExceeded, attempt: 1, want: true},
		{name: "permanent", err: Permanent(errors.New("bad json")), attempt: 1, want: false},
		{name: "429", err: &HTTPError{StatusCode: 429}, attempt: 1, want: true},
		{name: "503", err: &HTTPError{StatusCode: 503}, attempt: 2, want: true},
		{name: "404", err: &HTTPError{StatusCode: 404}, attempt: 1, want: false},
		{name: "401", err: &HTTPError{StatusCode: 401}, attempt: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestBackoffBoundsAndRetryAfter(t *testing.T) {
	t.Parallel()

	p := NewExponential(5, 100*time.Millisecond, 400*time.Millisecond)
	for attempt := 1; attempt <= 5; attempt++ {
		d := p.Backoff(attempt, errors.New("x"))
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.LessOrEqual(t, d, 400*time.Millisecond)
	}
	require.Equal(t, 3*time.Second, p.Backoff(1, &HTTPError{StatusCode: 429, RetryAfter: 3 * time.Second}))
	require.Equal(t, maxRetryAfter, p.Backoff(1, &HTTPError{StatusCode: 429, RetryAfter: time.Hour}))
}

func TestBudgetCoversEveryAttempt(t *testing.T) {
	t.Parallel()

	p := NewExponential(3, 100*time.Millisecond, 150*time.Millisecond)
	require.Equal(t, 3*time.Second+250*time.Millisecond, p.Budget(time.Second))
	require.Equal(t, time.Second, NewExponential(1, time.Millisecond, time.Millisecond).Budget(time.Second))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Duration(0), ParseRetryAfter("", now))
	require.Equal(t, 7*time.Second, ParseRetryAfter("7", now))
	require.Equal(t, time.Duration(0), ParseRetryAfter("-1", now))
	require.Equal(t, time.Duration(0), ParseRetryAfter("soon", now))
	require.Equal(t, 30*time.Second, ParseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
}

func TestPolicyDoStopsOnContext(t *testing.T) {
	t.Parallel()

	p := NewExponential(5, time.Second, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	err := p.Do(ctx, zap.NewNop(), "op", func(context.Context) error {
		calls.Add(1)
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(1), calls.Load())
}

func TestPolicyDoStopsOnParentDeadline(t *testing.T) {
	t.Parallel()

	p := NewExponential(5, time.Millisecond, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var calls atomic.Int32
	err := p.Do(ctx, zap.NewNop(), "op", func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, int32(1), calls.Load())
}

func TestClientRetriesRequestTimeouts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-release:
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(ClientConfig{Timeout: 100 * time.Millisecond}, NewExponential(3, time.Millisecond, 5*time.Millisecond), nil, zap.NewNop())
	body, err := client.Do(context.Background(), "test", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.Equal(t, int32(2), hits.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{Timeout: time.Second}, NewExponential(3, time.Millisecond, 5*time.Millisecond), nil, zap.NewNop())
	body, err := client.Do(context.Background(), "test", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.Equal(t, int32(3), hits.Load())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{}, NewExponential(3, time.Millisecond, 5*time.Millisecond), nil, nil)
	_, err := client.Do(context.Background(), "test", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
	require.Equal(t, int32(1), hits.Load())
}

type countingWaiter struct{ calls atomic.Int32 }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.calls.Add(1)
	return nil
}

func TestClientConsultsLimiter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "jobscout-test", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	waiter := &countingWaiter{}
	client := NewClient(ClientConfig{UserAgent: "jobscout-test"}, nil, waiter, nil)
	_, err := client.Do(context.Background(), "test", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	})
	require.NoError(t, err)
	require.Equal(t, int32(1), waiter.calls.Load())
}

// Package retry bounds calls to external collaborators with jittered
// exponential backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// maxRetryAfter caps how long a server-supplied Retry-After may stall a call.
const maxRetryAfter = time.Minute

// HTTPError carries a non-2xx status so the policy can classify it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Policy implements capped exponential backoff with jitter.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponential builds a policy allowing maxAttempts total attempts.
func NewExponential(maxAttempts int, baseDelay, maxDelay time.Duration) *Policy {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// NewDefault returns the policy used when nothing is configured.
func NewDefault() *Policy {
	return NewExponential(3, 500*time.Millisecond, 10*time.Second)
}

// MaxAttempts reports the attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// Budget is the longest Do can take when every attempt runs for perAttempt
// and each wait hits its cap. Retry-After hints are not included.
func (p *Policy) Budget(perAttempt time.Duration) time.Duration {
	total := time.Duration(p.maxAttempts) * perAttempt
	delay := p.baseDelay
	for i := 1; i < p.maxAttempts; i++ {
		total += min(delay, p.maxDelay)
		delay *= 2
	}
	return total
}

// ShouldRetry decides whether another attempt follows the attempt-th failure.
// Cancellation, permanent errors and 4xx other than 429 are never retried.
// Timeouts are: an attempt that ran out of time is retried for as long as
// the caller's context is alive, which Do checks separately.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}

// Backoff returns the wait before attempt+1. A Retry-After on err wins.
func (p *Policy) Backoff(attempt int, err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return min(httpErr.RetryAfter, maxRetryAfter)
	}
	exp := attempt - 1
	if exp < 0 {
		exp = 0
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(exp))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Do runs fn until it succeeds, the policy gives up, or ctx ends.
func (p *Policy) Do(ctx context.Context, logger *zap.Logger, op string, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s stopped after attempt %d: %w: %w", op, attempt, ctx.Err(), err)
		}
		if !p.ShouldRetry(err, attempt) {
			return err
		}
		delay := p.Backoff(attempt, err)
		logger.Warn("retrying after transient error",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s retry canceled: %w", op, ctx.Err())
		case <-timer.C:
		}
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

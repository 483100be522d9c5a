package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/browser"
	"github.com/JakeFAU/jobscout/internal/metrics"
)

// DefaultCacheTTL is how long a probe result is trusted.
const DefaultCacheTTL = 24 * time.Hour

// Alerter delivers operator alerts.
type Alerter interface {
	Notify(ctx context.Context, message string)
}

// MonitorConfig wires a Monitor.
type MonitorConfig struct {
	Store      Store
	HealthPath string
	CacheTTL   time.Duration
	Prober     Prober
	Alerter    Alerter
	Now        func() time.Time
	Logger     *zap.Logger
}

// Monitor answers whether the stored session is usable, probing at most
// once per cache TTL unless forced.
type Monitor struct {
	store   Store
	cache   healthCache
	ttl     time.Duration
	prober  Prober
	alerter Alerter
	now     func() time.Time
	logger  *zap.Logger

	mu sync.Mutex
}

// NewMonitor builds a Monitor.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Monitor{
		store:   cfg.Store,
		cache:   healthCache{path: cfg.HealthPath},
		ttl:     cfg.CacheTTL,
		prober:  cfg.Prober,
		alerter: cfg.Alerter,
		now:     cfg.Now,
		logger:  cfg.Logger.With(zap.String("component", "session_monitor")),
	}
}

// CheckHealth returns the session health, probing when the cached result is
// missing, stale, or force is set.
func (m *Monitor) CheckHealth(ctx context.Context, force bool) Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.store.Info(ctx)
	if err != nil {
		m.logger.Warn("read session info", zap.Error(err))
	}
	if info == nil {
		return m.publish(missingHealth())
	}

	if !force {
		if cached := m.freshCache(ctx, info); cached != nil {
			m.logger.Debug("using cached session health", zap.String("state", string(cached.State)))
			return m.publish(*cached)
		}
	}

	h := m.probe(ctx, info)
	if err := m.cache.save(ctx, h); err != nil {
		m.logger.Warn("persist session health", zap.Error(err))
	}
	if h.State == StateInvalid {
		m.alert(ctx, h)
	}
	m.logger.Info("session probed",
		zap.String("state", string(h.State)),
		zap.Bool("forced", force),
		zap.String("message", h.Message),
	)
	return m.publish(h)
}

// ValidateForJob reports whether a run may use the session.
func (m *Monitor) ValidateForJob(ctx context.Context) (bool, Health) {
	if !m.store.Exists() {
		h := missingHealth()
		m.logger.Warn("no stored session; linkedin will run anonymously")
		return false, m.publish(h)
	}
	h := m.CheckHealth(ctx, false)
	return h.State == StateHealthy, h
}

// Current returns the cached health without probing.
func (m *Monitor) Current(ctx context.Context) Health {
	info, err := m.store.Info(ctx)
	if err != nil {
		m.logger.Warn("read session info", zap.Error(err))
	}
	if info == nil {
		return missingHealth()
	}
	if cached := m.freshCache(ctx, info); cached != nil {
		return *cached
	}
	saved := info.SavedAt
	return Health{
		State:          StateUntested,
		CookiesSavedAt: &saved,
		CookieCount:    info.CookieCount,
		Message:        "Session has not been tested",
	}
}

// Invalidate records a session failure observed outside a probe.
func (m *Monitor) Invalidate(ctx context.Context, reason string) Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	h := Health{
		State:        StateInvalid,
		TestedAt:     &now,
		Message:      reason,
		NeedsRefresh: true,
	}
	if info, err := m.store.Info(ctx); err == nil && info != nil {
		saved := info.SavedAt
		h.CookiesSavedAt = &saved
		h.CookieCount = info.CookieCount
	}
	if err := m.cache.save(ctx, h); err != nil {
		m.logger.Warn("persist session health", zap.Error(err))
	}
	m.logger.Warn("session invalidated", zap.String("reason", reason))
	m.alert(ctx, h)
	return m.publish(h)
}

// Cookies returns the stored cookies.
func (m *Monitor) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	cookies, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(cookies) == 0 {
		return nil, ErrNoSession
	}
	return cookies, nil
}

// Info returns the cookie file summary, or nil when none is stored.
func (m *Monitor) Info(ctx context.Context) (*Info, error) {
	return m.store.Info(ctx)
}

// Clear deletes the cookies and the cached health.
func (m *Monitor) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Delete(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := m.cache.clear(ctx); err != nil {
		return fmt.Errorf("clear health cache: %w", err)
	}
	m.publish(missingHealth())
	return nil
}

func (m *Monitor) probe(ctx context.Context, info *Info) Health {
	now := m.now()
	saved := info.SavedAt
	h := Health{
		TestedAt:       &now,
		CookiesSavedAt: &saved,
		CookieCount:    info.CookieCount,
	}
	cookies, err := m.store.Load(ctx)
	if err != nil {
		h.State, h.NeedsRefresh = StateInvalid, true
		h.Message = fmt.Sprintf("load cookies: %v", err)
		return h
	}
	if m.prober == nil {
		h.State, h.NeedsRefresh = StateInvalid, true
		h.Message = "no session prober configured"
		return h
	}
	valid, reason, err := m.prober.Probe(ctx, cookies)
	switch {
	case err != nil:
		h.State, h.NeedsRefresh = StateInvalid, true
		h.Message = fmt.Sprintf("probe failed: %v", err)
	case valid:
		h.State = StateHealthy
		h.Message = "Session is valid"
	default:
		h.State, h.NeedsRefresh = StateInvalid, true
		h.Message = reason
	}
	return h
}

// freshCache returns the cached health when it is younger than the TTL and
// newer than the cookie file.
func (m *Monitor) freshCache(ctx context.Context, info *Info) *Health {
	cached, err := m.cache.load(ctx)
	if err != nil {
		m.logger.Warn("read health cache", zap.Error(err))
		return nil
	}
	if cached == nil || cached.TestedAt == nil {
		return nil
	}
	if m.now().Sub(*cached.TestedAt) >= m.ttl {
		return nil
	}
	if info.SavedAt.After(*cached.TestedAt) {
		return nil
	}
	return cached
}

func (m *Monitor) alert(ctx context.Context, h Health) {
	if m.alerter == nil {
		return
	}
	m.alerter.Notify(ctx, AlertMessage(h))
}

func (m *Monitor) publish(h Health) Health {
	metrics.SetSessionHealth(string(h.State))
	return h
}

func missingHealth() Health {
	return Health{
		State:        StateMissing,
		Message:      "No stored session cookies",
		NeedsRefresh: true,
	}
}

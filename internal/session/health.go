package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/jobscout/internal/filelock"
)

// State is the coarse session health.
type State string

// Session states.
const (
	StateHealthy  State = "healthy"
	StateInvalid  State = "invalid"
	StateMissing  State = "missing"
	StateUntested State = "untested"
)

// Health is the last known session health.
type Health struct {
	State          State      `json:"state"`
	TestedAt       *time.Time `json:"tested_at,omitempty"`
	CookiesSavedAt *time.Time `json:"cookies_saved_at,omitempty"`
	CookieCount    int        `json:"cookie_count"`
	Message        string     `json:"message"`
	NeedsRefresh   bool       `json:"needs_refresh"`
}

// Usable reports whether an adapter may try the session.
func (h Health) Usable() bool {
	return h.State == StateHealthy || h.State == StateUntested
}

// AlertMessage renders the operator alert for h.
func AlertMessage(h Health) string {
	var b strings.Builder
	b.WriteString("*LinkedIn Session Alert*\n\n")
	fmt.Fprintf(&b, "Status: %s\n", h.State)
	if h.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", h.Message)
	}
	if h.CookiesSavedAt != nil {
		fmt.Fprintf(&b, "Cookies saved: %s\n", h.CookiesSavedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Cookie count: %d\n", h.CookieCount)
	b.WriteString("\nAction required:\n")
	b.WriteString("1. Run the LinkedIn login utility locally to refresh the session cookies.\n")
	b.WriteString("2. Sync the refreshed cookie file to the production host.\n")
	return b.String()
}

type healthCache struct {
	path string
}

func (c healthCache) load(ctx context.Context) (*Health, error) {
	var data []byte
	err := filelock.Shared(ctx, c.path, func() error {
		var err error
		data, err = filelock.ReadFile(c.path)
		return err
	})
	if err != nil || len(data) == 0 {
		return nil, err
	}
	var h Health
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode health cache: %w", err)
	}
	return &h, nil
}

func (c healthCache) save(ctx context.Context, h Health) error {
	payload, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("encode health cache: %w", err)
	}
	return filelock.Exclusive(ctx, c.path, func() error {
		return filelock.WriteFileAtomic(c.path, payload, 0o644)
	})
}

func (c healthCache) clear(ctx context.Context) error {
	return filelock.Exclusive(ctx, c.path, func() error {
		return filelock.WriteFileAtomic(c.path, nil, 0o644)
	})
}

// Package source scrapes job boards into raw postings. Adapters never fail
// the caller: an unusable target or a broken page yields an empty slice.
package source

import (
	"context"
	"time"

	"github.com/JakeFAU/jobscout/internal/posting"
)

// Default caps applied when Limits leaves a field unset.
const (
	DefaultMaxJobs         = 50
	DefaultMaxDescriptions = 10
)

// Query parameterizes API-backed sources.
type Query struct {
	SearchTerm    string
	Location      string
	Country       string
	HoursOld      int
	ResultsWanted int
}

// Target is one unit of scraping work: a search URL or an API query.
type Target struct {
	URL   string
	Query *Query
}

// Adapter scrapes one board.
type Adapter interface {
	Name() string
	Scrape(ctx context.Context, target Target) []posting.Raw
}

// PageFetcher returns the HTML at a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Limits caps how much one scrape collects.
type Limits struct {
	MaxJobs         int
	MaxDescriptions int
}

func (l Limits) withDefaults() Limits {
	if l.MaxJobs <= 0 {
		l.MaxJobs = DefaultMaxJobs
	}
	if l.MaxDescriptions < 0 {
		l.MaxDescriptions = 0
	} else if l.MaxDescriptions == 0 {
		l.MaxDescriptions = DefaultMaxDescriptions
	}
	return l
}

// pause sleeps for d or until ctx ends.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

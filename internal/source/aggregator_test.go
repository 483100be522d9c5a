package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout/internal/retry"
)

func aggregatorResults(n int, offset int) map[string]any {
	results := make([]map[string]any, 0, n)
	for i := range n {
		results = append(results, map[string]any{
			"id":           fmt.Sprint(offset + i),
			"title":        "Go Developer",
			"description":  "<p>Write Go.</p>",
			"redirect_url": fmt.Sprintf("https://www.adzuna.com.au/details/%d?utm_source=api", offset+i),
			"created":      "2024-05-01T08:00:00Z",
			"salary_min":   120000,
			"salary_max":   140000,
			"company":      map[string]any{"display_name": "Acme"},
			"location":     map[string]any{"display_name": "Sydney, NSW"},
			"category":     map[string]any{"label": "IT Jobs"},
		})
	}
	return map[string]any{"results": results, "count": 1000}
}

func testClient() *retry.Client {
	return retry.NewClient(retry.ClientConfig{Timeout: time.Second}, retry.NewExponential(2, time.Millisecond, 2*time.Millisecond), nil, nil)
}

func TestAggregatorPagesUntilWanted(t *testing.T) {
	t.Parallel()

	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		require.True(t, strings.HasPrefix(r.URL.Path, "/au/search/"))
		q := r.URL.Query()
		require.Equal(t, "id", q.Get("app_id"))
		require.Equal(t, "key", q.Get("app_key"))
		require.Equal(t, "golang", q.Get("what"))
		require.Equal(t, "Sydney", q.Get("where"))
		require.Equal(t, "7", q.Get("max_days_old"))
		require.Equal(t, "50", q.Get("results_per_page"))
		page := strings.TrimPrefix(r.URL.Path, "/au/search/")
		offset := 0
		if page == "2" {
			offset = 50
		}
		_ = json.NewEncoder(w).Encode(aggregatorResults(50, offset))
	}))
	defer srv.Close()

	adapter := NewAggregator(AggregatorConfig{BaseURL: srv.URL + "/", AppID: "id", AppKey: "key"}, testClient(), nil)
	raws := adapter.Scrape(context.Background(), Target{Query: &Query{
		SearchTerm: "golang", Location: "Sydney", Country: "au", HoursOld: 168, ResultsWanted: 60,
	}})
	require.Len(t, raws, 60)
	require.Equal(t, int32(2), pages.Load())

	first := raws[0]
	require.Equal(t, "Go Developer", first.Title)
	require.Equal(t, "Acme", first.Company)
	require.Equal(t, "Sydney, NSW", first.Location)
	require.Equal(t, "$120000 - $140000", first.Salary)
	require.Equal(t, "IT Jobs", first.Classification)
	require.Equal(t, "aggregator", first.Source)
}

func TestAggregatorStopsOnShortPage(t *testing.T) {
	t.Parallel()

	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		pages.Add(1)
		_ = json.NewEncoder(w).Encode(aggregatorResults(3, 0))
	}))
	defer srv.Close()

	adapter := NewAggregator(AggregatorConfig{
		BaseURL: srv.URL, AppID: "id", AppKey: "key",
		Default: Query{Country: "au", ResultsWanted: 100},
	}, testClient(), nil)
	raws := adapter.Scrape(context.Background(), Target{})
	require.Len(t, raws, 3)
	require.Equal(t, int32(1), pages.Load())
}

func TestAggregatorWithoutCredentials(t *testing.T) {
	t.Parallel()

	adapter := NewAggregator(AggregatorConfig{BaseURL: "http://127.0.0.1:0"}, testClient(), nil)
	require.Empty(t, adapter.Scrape(context.Background(), Target{}))
}

func TestAggregatorServerErrorYieldsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewAggregator(AggregatorConfig{BaseURL: srv.URL, AppID: "id", AppKey: "bad"}, testClient(), nil)
	require.Empty(t, adapter.Scrape(context.Background(), Target{}))
}

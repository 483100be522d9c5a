package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscout/internal/config"
	"github.com/JakeFAU/jobscout/internal/runner"
	"github.com/JakeFAU/jobscout/internal/task"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	profilePath := filepath.Join(dir, "profile.txt")
	require.NoError(t, os.WriteFile(profilePath, []byte("Senior Go engineer building backend services"), 0o600))

	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		Pipeline: config.PipelineConfig{
			MaxDescriptionLength:  2000,
			MaxJobsToScrape:       10,
			MaxJobsForDescription: 5,
			MatchThreshold:        7,
			ProfilePath:           profilePath,
		},
		Session: config.SessionConfig{
			CookiePath: filepath.Join(dir, "cookies.json"),
			HealthPath: filepath.Join(dir, "health.json"),
		},
		HTTP:   config.HTTPConfig{TimeoutSeconds: 5, MaxRetries: 1, BackoffInitialMs: 1, BackoffMaxMs: 5},
		Store:  config.StoreConfig{Driver: "memory"},
		Blob:   config.BlobConfig{Driver: "memory"},
		Task:   config.TaskConfig{Driver: "file", FilePath: filepath.Join(dir, "tasks.json")},
		Runner: config.RunnerConfig{MaxConcurrentRuns: 1},
	}
}

func TestBuildWithoutSourcesRefusesRuns(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	require.Nil(t, app.Monitor())
	_, err = app.RunOnce(context.Background())
	require.ErrorIs(t, err, runner.ErrNoSources)

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunOnceWithAggregator(t *testing.T) {
	t.Parallel()

	board := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count": 2, "results": [
			{"title": "Go Engineer", "description": "Senior Go engineer for backend services",
			 "redirect_url": "https://jobs.example/1?utm_source=api", "created": "2026-10-01T00:00:00Z",
			 "company": {"display_name": "Acme"}},
			{"title": "Chef", "description": "Cook pasta",
			 "redirect_url": "https://jobs.example/2", "company": {"display_name": "Bistro"}}
		]}`)
	}))
	t.Cleanup(board.Close)

	cfg := baseConfig(t)
	cfg.Sources.Aggregator = config.AggregatorConfig{
		Enabled:       true,
		BaseURL:       board.URL,
		AppID:         "id",
		AppKey:        "key",
		Country:       "au",
		ResultsWanted: 10,
	}
	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })
	require.Equal(t, []string{"aggregator"}, app.pipeline.Sources())

	got, err := app.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)

	exists, err := app.postings.Exists(context.Background(), "https://jobs.example/1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestNeedsBrowser(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	require.False(t, needsBrowser(cfg))

	cfg.Sources.Seek = config.SeekConfig{Enabled: true, FetchMode: "static"}
	require.False(t, needsBrowser(cfg))

	cfg.Sources.Seek.FetchMode = "browser"
	require.True(t, needsBrowser(cfg))

	cfg.Sources.Seek.Enabled = false
	cfg.Sources.LinkedIn.Enabled = true
	require.True(t, needsBrowser(cfg))
}

func TestAlertSendersSkipsUnconfiguredChannels(t *testing.T) {
	t.Parallel()

	senders := alertSenders(config.AlertingConfig{}, nil, nil)
	require.Len(t, senders, 1)
	require.Equal(t, "log", senders[0].Name())

	senders = alertSenders(config.AlertingConfig{
		Telegram: config.TelegramConfig{BotToken: "t", ChatID: "1"},
		Slack:    config.SlackConfig{WebhookURL: "https://hooks.example/x"},
	}, nil, nil)
	require.Len(t, senders, 3)
}

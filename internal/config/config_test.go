package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
pipeline:
  max_jobs_to_scrape: 25
  max_jobs_for_description: 5
  match_threshold: 6.5
  profile_path: /data/cv.txt
sources:
  linkedin:
    enabled: true
    search_urls:
      - https://www.linkedin.com/jobs/search/?keywords=go
      - https://www.linkedin.com/jobs/search/?keywords=rust
  seek:
    enabled: false
    search_url: https://www.seek.com.au/golang-jobs
    fetch_mode: static
  aggregator:
    enabled: true
    app_id: id
    app_key: key
    search_term: golang
http:
  timeout_seconds: 45
llm:
  api_key: llm-key
  timeout_seconds: 30
store:
  driver: postgres
  dsn: postgres://localhost/jobs
blob:
  driver: gcs
  gcs_bucket: artifacts-bucket
task:
  driver: redis
  redis_url: redis://localhost:6379/0
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Pipeline.MaxJobsToScrape != 25 || cfg.Pipeline.MaxJobsForDescription != 5 {
		t.Fatalf("expected pipeline caps to apply: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.MatchThreshold != 6.5 {
		t.Fatalf("expected threshold 6.5, got %v", cfg.Pipeline.MatchThreshold)
	}
	if cfg.Pipeline.MaxDescriptionLength != 15000 {
		t.Fatalf("expected default description length, got %d", cfg.Pipeline.MaxDescriptionLength)
	}
	if len(cfg.Sources.LinkedIn.SearchURLs) != 2 {
		t.Fatalf("expected two linkedin search urls: %+v", cfg.Sources.LinkedIn)
	}
	if cfg.Sources.Seek.Enabled || cfg.Sources.Seek.FetchMode != "static" {
		t.Fatalf("expected seek overrides to apply: %+v", cfg.Sources.Seek)
	}
	if cfg.Sources.Aggregator.HoursOld != 168 || cfg.Sources.Aggregator.Country != "au" {
		t.Fatalf("expected aggregator defaults to be kept: %+v", cfg.Sources.Aggregator)
	}
	if got := cfg.HTTPTimeout(); got != 45*time.Second {
		t.Fatalf("expected http timeout 45s, got %v", got)
	}
	if got := cfg.LLMTimeout(); got != 30*time.Second {
		t.Fatalf("expected llm timeout 30s, got %v", got)
	}
	if !cfg.SemanticEnabled() {
		t.Fatal("expected semantic stage to be enabled with an api key")
	}
	if cfg.Store.Driver != "postgres" || cfg.Blob.Driver != "gcs" || cfg.Task.Driver != "redis" {
		t.Fatalf("expected driver overrides: %+v %+v %+v", cfg.Store, cfg.Blob, cfg.Task)
	}
	if cfg.Logging.Development {
		t.Fatal("expected logging.development override to false")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Pipeline.MatchThreshold != 7 {
		t.Fatalf("expected default threshold 7, got %v", cfg.Pipeline.MatchThreshold)
	}
	if cfg.SessionCacheTTL() != 24*time.Hour {
		t.Fatalf("expected 24h session cache, got %v", cfg.SessionCacheTTL())
	}
	if cfg.Session.ReprobeSpec != "@daily" {
		t.Fatalf("expected daily reprobe, got %q", cfg.Session.ReprobeSpec)
	}
	if cfg.Task.Driver != "file" || cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected local drivers by default: %+v %+v", cfg.Task, cfg.Store)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Pipeline: PipelineConfig{
			MaxDescriptionLength: 100,
			MaxJobsToScrape:      10,
			MatchThreshold:       7,
		},
		HTTP:   HTTPConfig{TimeoutSeconds: 10},
		Store:  StoreConfig{Driver: "memory"},
		Blob:   BlobConfig{Driver: "memory"},
		Task:   TaskConfig{Driver: "file", FilePath: "/tmp/tasks.json"},
		Runner: RunnerConfig{MaxConcurrentRuns: 1},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "threshold above range", mutate: func(c *Config) { c.Pipeline.MatchThreshold = 11 }, want: "match_threshold"},
		{name: "zero scrape cap", mutate: func(c *Config) { c.Pipeline.MaxJobsToScrape = 0 }, want: "max_jobs_to_scrape"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "bad fetch mode", mutate: func(c *Config) { c.Sources.Seek.FetchMode = "curl" }, want: "fetch_mode"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = "postgres" }, want: "store.dsn"},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Driver = "airtable" }, want: "store.driver"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Blob.Driver = "gcs" }, want: "gcs_bucket"},
		{name: "redis without url", mutate: func(c *Config) { c.Task.Driver = "redis" }, want: "redis_url"},
		{name: "no runners", mutate: func(c *Config) { c.Runner.MaxConcurrentRuns = 0 }, want: "max_concurrent_runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

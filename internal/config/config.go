// Package config loads and validates jobscout configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Session  SessionConfig  `mapstructure:"session"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Store    StoreConfig    `mapstructure:"store"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Task     TaskConfig     `mapstructure:"task"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// PipelineConfig governs scraping caps, matching and scheduling.
type PipelineConfig struct {
	MaxDescriptionLength  int     `mapstructure:"max_description_length"`
	MaxJobsToScrape       int     `mapstructure:"max_jobs_to_scrape"`
	MaxJobsForDescription int     `mapstructure:"max_jobs_for_description"`
	MatchThreshold        float64 `mapstructure:"match_threshold"`
	Interval              string  `mapstructure:"interval"`
	ProfilePath           string  `mapstructure:"profile_path"`
	ArtifactPrefix        string  `mapstructure:"artifact_prefix"`
}

// SourcesConfig groups the per-board adapter settings.
type SourcesConfig struct {
	LinkedIn   LinkedInConfig   `mapstructure:"linkedin"`
	Seek       SeekConfig       `mapstructure:"seek"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
}

// LinkedInConfig lists the LinkedIn search pages to scrape.
type LinkedInConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	SearchURLs []string `mapstructure:"search_urls"`
}

// SeekConfig points at a Seek search results page.
type SeekConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SearchURL string `mapstructure:"search_url"`
	FetchMode string `mapstructure:"fetch_mode"`
}

// AggregatorConfig configures the job search API adapter.
type AggregatorConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	BaseURL       string  `mapstructure:"base_url"`
	AppID         string  `mapstructure:"app_id"`
	AppKey        string  `mapstructure:"app_key"`
	Country       string  `mapstructure:"country"`
	SearchTerm    string  `mapstructure:"search_term"`
	Location      string  `mapstructure:"location"`
	ResultsWanted int     `mapstructure:"results_wanted"`
	HoursOld      int     `mapstructure:"hours_old"`
	RPS           float64 `mapstructure:"rps"`
}

// BrowserConfig configures the chromedp allocator.
type BrowserConfig struct {
	Headless      bool   `mapstructure:"headless"`
	MaxTabs       int    `mapstructure:"max_tabs"`
	NavTimeoutSec int    `mapstructure:"nav_timeout_seconds"`
	UserAgent     string `mapstructure:"user_agent"`
	ExecPath      string `mapstructure:"exec_path"`
}

// SessionConfig locates the persisted LinkedIn session and its health cache.
type SessionConfig struct {
	CookiePath    string `mapstructure:"cookie_path"`
	HealthPath    string `mapstructure:"health_path"`
	CacheTTLHours int    `mapstructure:"cache_ttl_hours"`
	ReprobeSpec   string `mapstructure:"reprobe_spec"`
	ProbeURL      string `mapstructure:"probe_url"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// LLMConfig configures the semantic evaluator and document generator.
type LLMConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxLogLength   int    `mapstructure:"max_log_length"`
}

// StoreConfig selects the posting record store.
type StoreConfig struct {
	Driver              string `mapstructure:"driver"`
	DSN                 string `mapstructure:"dsn"`
	Table               string `mapstructure:"table"`
	QueryTimeoutSeconds int    `mapstructure:"query_timeout_seconds"`
	SQLitePath          string `mapstructure:"sqlite_path"`
	MaxConns            int32  `mapstructure:"max_conns"`
}

// BlobConfig selects where generated artifacts are written.
type BlobConfig struct {
	Driver    string `mapstructure:"driver"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// TaskConfig selects the cross-process task store.
type TaskConfig struct {
	Driver        string `mapstructure:"driver"`
	FilePath      string `mapstructure:"file_path"`
	RedisURL      string `mapstructure:"redis_url"`
	RedisTTLHours int    `mapstructure:"redis_ttl_hours"`
}

// RunnerConfig bounds background pipeline runs.
type RunnerConfig struct {
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
}

// AlertingConfig configures the notification channels.
type AlertingConfig struct {
	Summary  bool           `mapstructure:"summary"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	Slack    SlackConfig    `mapstructure:"slack"`
}

// TelegramConfig holds bot credentials.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	BaseURL  string `mapstructure:"base_url"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// SlackConfig holds an incoming webhook URL.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// PubSubConfig holds metadata for run-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)

	v.SetDefault("pipeline.max_description_length", 15000)
	v.SetDefault("pipeline.max_jobs_to_scrape", 50)
	v.SetDefault("pipeline.max_jobs_for_description", 10)
	v.SetDefault("pipeline.match_threshold", 7.0)
	v.SetDefault("pipeline.interval", "@every 60m")
	v.SetDefault("pipeline.profile_path", "profile.txt")
	v.SetDefault("pipeline.artifact_prefix", "artifacts")

	v.SetDefault("sources.linkedin.enabled", true)
	v.SetDefault("sources.seek.enabled", true)
	v.SetDefault("sources.seek.fetch_mode", "browser")
	v.SetDefault("sources.aggregator.enabled", false)
	v.SetDefault("sources.aggregator.base_url", "https://api.adzuna.com/v1/api/jobs")
	v.SetDefault("sources.aggregator.country", "au")
	v.SetDefault("sources.aggregator.location", "Melbourne, VIC")
	v.SetDefault("sources.aggregator.results_wanted", 10)
	v.SetDefault("sources.aggregator.hours_old", 168)
	v.SetDefault("sources.aggregator.rps", 1.0)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_tabs", 2)
	v.SetDefault("browser.nav_timeout_seconds", 45)

	v.SetDefault("session.cookie_path", "linkedin_cookies.json")
	v.SetDefault("session.health_path", "linkedin_session_health.json")
	v.SetDefault("session.cache_ttl_hours", 24)
	v.SetDefault("session.reprobe_spec", "@daily")
	v.SetDefault("session.probe_url", "https://www.linkedin.com/feed/")

	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("llm.max_log_length", 200)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.table", "postings")
	v.SetDefault("store.query_timeout_seconds", 10)
	v.SetDefault("store.sqlite_path", "jobscout.db")

	v.SetDefault("blob.driver", "local")
	v.SetDefault("blob.base_dir", "artifacts")

	v.SetDefault("task.driver", "file")
	v.SetDefault("task.file_path", "/tmp/jobscout_tasks.json")
	v.SetDefault("task.redis_ttl_hours", 168)

	v.SetDefault("runner.max_concurrent_runs", 1)

	v.SetDefault("alerting.telegram.base_url", "https://api.telegram.org")
	v.SetDefault("alerting.email.port", 465)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Pipeline.MatchThreshold < 0 || c.Pipeline.MatchThreshold > 10 {
		return fmt.Errorf("pipeline.match_threshold must be within [0, 10]")
	}
	if c.Pipeline.MaxJobsToScrape <= 0 {
		return fmt.Errorf("pipeline.max_jobs_to_scrape must be > 0")
	}
	if c.Pipeline.MaxJobsForDescription < 0 {
		return fmt.Errorf("pipeline.max_jobs_for_description must be >= 0")
	}
	if c.Pipeline.MaxDescriptionLength <= 0 {
		return fmt.Errorf("pipeline.max_description_length must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Browser.MaxTabs < 0 {
		return fmt.Errorf("browser.max_tabs must be >= 0")
	}
	switch c.Sources.Seek.FetchMode {
	case "", "browser", "static":
	default:
		return fmt.Errorf("sources.seek.fetch_mode must be browser or static")
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Blob.Driver {
	case "memory", "local":
	case "gcs":
		if c.Blob.GCSBucket == "" {
			return fmt.Errorf("blob.gcs_bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("unknown blob.driver %q", c.Blob.Driver)
	}
	switch c.Task.Driver {
	case "file":
		if c.Task.FilePath == "" {
			return fmt.Errorf("task.file_path is required for the file driver")
		}
	case "redis":
		if c.Task.RedisURL == "" {
			return fmt.Errorf("task.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown task.driver %q", c.Task.Driver)
	}
	if c.Runner.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("runner.max_concurrent_runs must be > 0")
	}
	return nil
}

// HTTPTimeout returns the per-request client timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SessionCacheTTL returns how long a probe result stays authoritative.
func (c Config) SessionCacheTTL() time.Duration {
	if c.Session.CacheTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Session.CacheTTLHours) * time.Hour
}

// LLMTimeout bounds a single evaluator or generator call.
func (c Config) LLMTimeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// SemanticEnabled reports whether an LLM key is configured.
func (c Config) SemanticEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

package server

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/browser"
	"github.com/JakeFAU/jobscout/internal/config"
	collyfetcher "github.com/JakeFAU/jobscout/internal/fetcher/colly"
	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/notify"
	"github.com/JakeFAU/jobscout/internal/pipeline"
	"github.com/JakeFAU/jobscout/internal/retry"
	"github.com/JakeFAU/jobscout/internal/session"
	"github.com/JakeFAU/jobscout/internal/source"
)

const seekStaticMode = "static"

func needsBrowser(cfg *config.Config) bool {
	seek := cfg.Sources.Seek
	return cfg.Sources.LinkedIn.Enabled || (seek.Enabled && seek.FetchMode != seekStaticMode)
}

func browserConfig(cfg *config.Config) browser.Config {
	return browser.Config{
		Headless:   cfg.Browser.Headless,
		MaxTabs:    cfg.Browser.MaxTabs,
		NavTimeout: time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
		UserAgent:  cfg.Browser.UserAgent,
		ExecPath:   cfg.Browser.ExecPath,
	}
}

func newMonitor(cfg *config.Config, driver browser.Driver, alerter session.Alerter, logger *zap.Logger) *session.Monitor {
	mc := session.MonitorConfig{
		Store:      session.NewFileStore(cfg.Session.CookiePath),
		HealthPath: cfg.Session.HealthPath,
		CacheTTL:   cfg.SessionCacheTTL(),
		Alerter:    alerter,
		Logger:     logger,
	}
	if driver != nil {
		mc.Prober = session.NewBrowserProber(driver, cfg.Session.ProbeURL)
	}
	return session.NewMonitor(mc)
}

// alertSenders returns the configured channels. The log channel is always on.
func alertSenders(cfg config.AlertingConfig, client *retry.Client, logger *zap.Logger) []notify.Sender {
	senders := []notify.Sender{notify.NewLog(logger)}
	if t := notify.NewTelegram(notify.TelegramConfig{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
		BaseURL:  cfg.Telegram.BaseURL,
	}, client); t != nil {
		senders = append(senders, t)
	}
	if e := notify.NewEmail(notify.EmailConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		To:       cfg.Email.To,
	}); e != nil {
		senders = append(senders, e)
	}
	if s := notify.NewSlack(cfg.Slack.WebhookURL, client); s != nil {
		senders = append(senders, s)
	}
	return senders
}

func (a *App) buildSources(httpClient *retry.Client) []pipeline.Source {
	cfg := a.cfg
	limits := source.Limits{
		MaxJobs:         cfg.Pipeline.MaxJobsToScrape,
		MaxDescriptions: cfg.Pipeline.MaxJobsForDescription,
	}
	var sources []pipeline.Source

	if li := cfg.Sources.LinkedIn; li.Enabled {
		targets := urlTargets(li.SearchURLs, source.ValidLinkedInURL, "linkedin", a.logger)
		if len(targets) > 0 {
			adapter := source.NewLinkedIn(source.LinkedInConfig{
				Driver:  a.browser,
				Session: a.monitor,
				Limits:  limits,
				Logger:  a.logger,
			})
			sources = append(sources, pipeline.Source{Name: adapter.Name(), Adapter: adapter, Targets: targets})
		}
	}

	if sk := cfg.Sources.Seek; sk.Enabled {
		targets := urlTargets([]string{sk.SearchURL}, source.ValidSeekURL, "seek", a.logger)
		if len(targets) > 0 {
			var fetcher source.PageFetcher = a.browser
			if sk.FetchMode == seekStaticMode {
				fetcher = collyfetcher.New(collyfetcher.Config{
					UserAgent:     cfg.Browser.UserAgent,
					RespectRobots: true,
					Timeout:       cfg.HTTPTimeout(),
				})
			}
			adapter := source.NewSeek(fetcher, limits, a.logger)
			sources = append(sources, pipeline.Source{Name: adapter.Name(), Adapter: adapter, Targets: targets})
		}
	}

	if ag := cfg.Sources.Aggregator; ag.Enabled {
		if ag.AppID == "" || ag.AppKey == "" {
			a.logger.Warn("aggregator enabled without credentials, skipping")
		} else {
			query := source.Query{
				SearchTerm:    ag.SearchTerm,
				Location:      ag.Location,
				Country:       ag.Country,
				HoursOld:      ag.HoursOld,
				ResultsWanted: ag.ResultsWanted,
			}
			adapter := source.NewAggregator(source.AggregatorConfig{
				BaseURL: ag.BaseURL,
				AppID:   ag.AppID,
				AppKey:  ag.AppKey,
				Default: query,
			}, httpClient, a.logger)
			sources = append(sources, pipeline.Source{
				Name:    adapter.Name(),
				Adapter: adapter,
				Targets: []source.Target{{Query: &query}},
			})
		}
	}

	if len(sources) == 0 {
		a.logger.Warn("no sources configured; runs will be refused")
	}
	return sources
}

func urlTargets(urls []string, valid func(string) bool, name string, logger *zap.Logger) []source.Target {
	var targets []source.Target
	for _, u := range urls {
		if u == "" {
			continue
		}
		if !valid(u) {
			logger.Warn("ignoring search url for another site", zap.String("source", name), zap.String("url", u))
			continue
		}
		targets = append(targets, source.Target{URL: u})
	}
	if len(targets) == 0 {
		logger.Warn("source enabled without usable search urls, skipping", zap.String("source", name))
	}
	return targets
}

// SessionTools is the slice of the application the session commands need.
type SessionTools struct {
	Monitor *session.Monitor
	Logger  *zap.Logger
	close   func()
}

// Close releases the browser, if one was started.
func (s *SessionTools) Close() {
	s.close()
	_ = s.Logger.Sync()
}

// OpenSession builds a session monitor with alerting. The browser is only
// started when withProber is set.
func OpenSession(cfg *config.Config, withProber bool) (*SessionTools, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	client := newHTTPClient(cfg, logger)
	alerter := notify.NewMulti(logger, alertSenders(cfg.Alerting, client, logger)...)

	tools := &SessionTools{Logger: logger, close: func() {}}
	var driver browser.Driver
	if withProber {
		b, err := browser.New(browserConfig(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("browser init failed: %w", err)
		}
		driver = b
		tools.close = b.Close
	}
	tools.Monitor = newMonitor(cfg, driver, alerter, logger)
	return tools, nil
}

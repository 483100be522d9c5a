// Package server builds the jobscout application from configuration and
// runs it as a long-lived service or as a single pipeline run.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/api"
	"github.com/JakeFAU/jobscout/internal/browser"
	"github.com/JakeFAU/jobscout/internal/clock/system"
	"github.com/JakeFAU/jobscout/internal/config"
	"github.com/JakeFAU/jobscout/internal/generate"
	"github.com/JakeFAU/jobscout/internal/hash/sha256"
	"github.com/JakeFAU/jobscout/internal/id/uuid"
	"github.com/JakeFAU/jobscout/internal/llm/gemini"
	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/match"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/normalize"
	"github.com/JakeFAU/jobscout/internal/notify"
	"github.com/JakeFAU/jobscout/internal/pipeline"
	"github.com/JakeFAU/jobscout/internal/profile"
	"github.com/JakeFAU/jobscout/internal/progress"
	progresssinks "github.com/JakeFAU/jobscout/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/jobscout/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/jobscout/internal/publisher/pubsub"
	"github.com/JakeFAU/jobscout/internal/ratelimit"
	"github.com/JakeFAU/jobscout/internal/retry"
	"github.com/JakeFAU/jobscout/internal/runner"
	"github.com/JakeFAU/jobscout/internal/scheduler"
	"github.com/JakeFAU/jobscout/internal/session"
	gcsstorage "github.com/JakeFAU/jobscout/internal/storage/gcs"
	localstorage "github.com/JakeFAU/jobscout/internal/storage/local"
	memorystorage "github.com/JakeFAU/jobscout/internal/storage/memory"
	pgstore "github.com/JakeFAU/jobscout/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/jobscout/internal/storage/sqlite"
	"github.com/JakeFAU/jobscout/internal/task"
)

const (
	shutdownTimeout = 30 * time.Second
	readinessProbe  = "readiness-probe"
)

type closer struct {
	name string
	fn   func() error
}

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	browser   *browser.Browser
	monitor   *session.Monitor
	notifier  *notify.Multi
	postings  pipeline.Store
	tasks     task.Store
	pipeline  *pipeline.Orchestrator
	hub       *progress.Hub
	runs      *runner.Service
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	closers   []closer
}

// Build creates the application's dependencies. The caller owns the App and
// must Close it.
func Build(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeAll()
		}
	}()
	logger.Info("building application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("blob_driver", cfg.Blob.Driver),
		zap.String("task_driver", cfg.Task.Driver),
		zap.Bool("semantic_matching", cfg.SemanticEnabled()),
	)

	httpClient := newHTTPClient(cfg, logger)
	app.notifier = notify.NewMulti(logger, alertSenders(cfg.Alerting, httpClient, logger)...)

	if needsBrowser(cfg) {
		if err = app.setupBrowser(); err != nil {
			return nil, err
		}
	}
	if cfg.Sources.LinkedIn.Enabled {
		app.monitor = newMonitor(cfg, app.browser, app.notifier, logger)
	}

	if err = app.setupPostings(ctx); err != nil {
		return nil, err
	}
	blobs, err := app.setupBlobs(ctx)
	if err != nil {
		return nil, err
	}
	if err = app.setupTasks(ctx); err != nil {
		return nil, err
	}
	if err = app.setupPipeline(ctx, httpClient, blobs); err != nil {
		return nil, err
	}
	app.setupProgress()
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	app.runs, err = runner.New(runner.Config{
		Pipeline:      app.pipeline,
		Tasks:         app.tasks,
		IDs:           uuid.New(),
		Clock:         system.New(),
		Events:        app.hub,
		Publisher:     publisher,
		Topic:         cfg.PubSub.Topic,
		MaxConcurrent: cfg.Runner.MaxConcurrentRuns,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("runner init failed: %w", err)
	}

	schedCfg := scheduler.Config{
		Runner:      app.runs,
		RunSpec:     cfg.Pipeline.Interval,
		ReprobeSpec: cfg.Session.ReprobeSpec,
		Logger:      logger,
	}
	opts := api.Options{
		Runs:        app.runs,
		AuthEnabled: cfg.Auth.Enabled,
		APIKey:      cfg.Auth.APIKey,
		Ready:       app.readyChecks(),
		Logger:      logger.Named("api"),
	}
	if app.monitor != nil {
		schedCfg.Monitor = app.monitor
		opts.Sessions = app.monitor
	}
	app.scheduler, err = scheduler.New(schedCfg)
	if err != nil {
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}
	app.apiServer = api.NewServer(opts)

	logger.Info("application built", zap.Strings("sources", app.pipeline.Sources()))
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Monitor returns the session monitor, or nil when LinkedIn is disabled.
func (a *App) Monitor() *session.Monitor { return a.monitor }

// Serve runs the HTTP API and the scheduler until ctx is canceled or the
// process receives SIGINT or SIGTERM, then drains in-flight runs.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.scheduler.Start(ctx); err != nil {
		a.Close(ctx)
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	select {
	case <-a.scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		a.logger.Warn("scheduled job still running at shutdown")
	}
	if err := a.runs.Wait(shutdownCtx); err != nil {
		a.logger.Warn("runs still in flight at shutdown", zap.Error(err))
	}
	a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// RunOnce executes a single pipeline run and waits for its terminal state.
// A failed session preflight is logged; the run still goes ahead because
// the other sources do not depend on the session.
func (a *App) RunOnce(ctx context.Context) (task.Task, error) {
	if a.monitor != nil {
		if ok, health := a.monitor.ValidateForJob(ctx); !ok {
			a.logger.Warn("linkedin session unusable, linkedin will scrape anonymously",
				zap.String("state", string(health.State)),
				zap.String("message", health.Message),
			)
		}
	}
	id, err := a.runs.StartRun(ctx)
	if err != nil {
		return task.Task{}, fmt.Errorf("start run: %w", err)
	}
	if err := a.runs.Wait(ctx); err != nil {
		return task.Task{}, fmt.Errorf("wait for run %s: %w", id, err)
	}
	return a.runs.GetStatus(ctx, id)
}

// Close flushes pending progress and releases every owned resource.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.hub = nil
	}
	a.closeAll()
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) setupBrowser() error {
	b, err := browser.New(browserConfig(a.cfg), a.logger)
	if err != nil {
		return fmt.Errorf("browser init failed: %w", err)
	}
	a.browser = b
	a.onClose("browser", func() error { b.Close(); return nil })
	a.logger.Info("browser ready",
		zap.Bool("headless", a.cfg.Browser.Headless),
		zap.Int("max_tabs", a.cfg.Browser.MaxTabs),
	)
	return nil
}

func (a *App) setupPostings(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		s, err := pgstore.New(ctx, pgstore.Config{
			DSN:          a.cfg.Store.DSN,
			Table:        a.cfg.Store.Table,
			MaxConns:     a.cfg.Store.MaxConns,
			QueryTimeout: time.Duration(a.cfg.Store.QueryTimeoutSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.onClose("postgres", func() error { s.Close(); return nil })
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres migrate failed: %w", err)
		}
		a.postings = s
		a.logger.Info("using postgres posting store", zap.String("table", a.cfg.Store.Table))
	case "sqlite":
		s, err := sqlitestore.Open(ctx, a.cfg.Store.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
		a.onClose("sqlite", s.Close)
		a.postings = s
		a.logger.Info("using sqlite posting store", zap.String("path", a.cfg.Store.SQLitePath))
	default:
		a.postings = memorystorage.NewPostingStore()
		a.logger.Warn("using in-memory posting store; postings are lost on exit")
	}
	return nil
}

func (a *App) setupBlobs(ctx context.Context) (generate.BlobStore, error) {
	switch a.cfg.Blob.Driver {
	case "gcs":
		s, err := gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket: a.cfg.Blob.GCSBucket,
			Prefix: a.cfg.Blob.Prefix,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs", s.Close)
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Blob.GCSBucket))
		return s, nil
	case "local":
		s, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Blob.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local artifact store", zap.String("path", a.cfg.Blob.BaseDir))
		return s, nil
	default:
		a.logger.Info("using in-memory artifact store")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupTasks(ctx context.Context) error {
	switch a.cfg.Task.Driver {
	case "redis":
		ttl := time.Duration(a.cfg.Task.RedisTTLHours) * time.Hour
		s, err := task.OpenRedis(ctx, a.cfg.Task.RedisURL, ttl)
		if err != nil {
			return fmt.Errorf("redis task store init failed: %w", err)
		}
		a.onClose("redis", s.Close)
		a.tasks = s
		a.logger.Info("using redis task store", zap.Duration("ttl", ttl))
	default:
		a.tasks = task.NewFileStore(a.cfg.Task.FilePath)
		a.logger.Info("using file task store", zap.String("path", a.cfg.Task.FilePath))
	}
	return nil
}

func (a *App) setupPipeline(ctx context.Context, httpClient *retry.Client, blobs generate.BlobStore) error {
	// The engine deadline wraps every gemini attempt plus the waits between them.
	llmPolicy := retry.NewDefault()
	var (
		engineCfg = match.EngineConfig{Timeout: llmPolicy.Budget(a.cfg.LLMTimeout()), Logger: a.logger}
		generator pipeline.Generator
	)
	if a.cfg.SemanticEnabled() {
		llm, err := gemini.New(ctx, gemini.Config{
			APIKey:       a.cfg.LLM.APIKey,
			Model:        a.cfg.LLM.Model,
			Timeout:      a.cfg.LLMTimeout(),
			MaxLogLength: a.cfg.LLM.MaxLogLength,
		}, llmPolicy, a.logger)
		if err != nil {
			return fmt.Errorf("llm client init failed: %w", err)
		}
		engineCfg.Evaluator = match.NewLLMEvaluator(llm, a.cfg.LLM.MaxLogLength, a.logger)
		svc, err := generate.New(generate.Config{
			Text:   llm,
			Blobs:  blobs,
			Hasher: sha256.New(),
			Prefix: a.cfg.Pipeline.ArtifactPrefix,
			Logger: a.logger,
		})
		if err != nil {
			return fmt.Errorf("document generator init failed: %w", err)
		}
		generator = svc
		a.logger.Info("semantic matching enabled", zap.String("model", llm.Model()))
	} else {
		a.logger.Warn("no llm api key configured; matching is lexical only and no documents are generated")
	}

	pipeCfg := pipeline.Config{
		Sources:    a.buildSources(httpClient),
		Store:      a.postings,
		Scorer:     match.NewEngine(engineCfg),
		Generator:  generator,
		Profile:    profile.NewFileLoader(a.cfg.Pipeline.ProfilePath, a.cfg.Pipeline.MaxDescriptionLength),
		Normalizer: normalize.Normalizer{MaxLength: a.cfg.Pipeline.MaxDescriptionLength},
		IDs:        uuid.New(),
		Threshold:  a.cfg.Pipeline.MatchThreshold,
		Logger:     a.logger,
	}
	if a.cfg.Alerting.Summary {
		pipeCfg.Notifier = a.notifier
	}
	orch, err := pipeline.New(pipeCfg)
	if err != nil {
		return fmt.Errorf("pipeline init failed: %w", err)
	}
	a.pipeline = orch
	return nil
}

func (a *App) setupProgress() {
	sinkList := []progress.Sink{
		progresssinks.NewTaskSink(a.tasks, a.logger.Named("progress_task")),
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
	}
	if prom, err := progresssinks.NewPrometheusSink(nil); err != nil {
		a.logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		sinkList = append(sinkList, prom)
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")}, sinkList...)
	// Close drains the hub with its own deadline first; this only runs when Build fails.
	a.onClose("progress hub", func() error { return a.hub.Close(context.Background()) })
	a.logger.Debug("progress hub initialized", zap.Int("sinks", len(sinkList)))
}

func (a *App) setupPublisher(ctx context.Context) (runner.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.Topic == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(a.cfg.PubSub.Topic), nil
	}
	p, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose("pubsub", p.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return p, nil
}

func (a *App) readyChecks() map[string]api.ReadyCheck {
	return map[string]api.ReadyCheck{
		"postings": func(ctx context.Context) error {
			_, err := a.postings.Exists(ctx, readinessProbe)
			return err
		},
		"tasks": func(ctx context.Context) error {
			_, err := a.tasks.Get(ctx, readinessProbe)
			if errors.Is(err, task.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

func newHTTPClient(cfg *config.Config, logger *zap.Logger) *retry.Client {
	policy := retry.NewExponential(
		cfg.HTTP.MaxRetries+1,
		time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Sources.Aggregator.RPS,
		DefaultBurst: 1,
	})
	return retry.NewClient(retry.ClientConfig{
		Timeout:   cfg.HTTPTimeout(),
		UserAgent: cfg.Browser.UserAgent,
	}, policy, limiter, logger)
}

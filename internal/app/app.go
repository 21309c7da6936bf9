package app

import (
	"context"
	"fmt"

	"template-service/internal/common/logging"
	"template-service/internal/config"
	"template-service/internal/dispatcher"
	"template-service/internal/metrics"
	"template-service/internal/render"
	"template-service/internal/sandbox"
)

// App holds all the application dependencies
type App struct {
	Config     *config.Config
	Metrics    *metrics.Metrics
	Tasks      *dispatcher.Registry
	Dispatcher *dispatcher.Dispatcher
	Logger     logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.Component("app"),
	}

	m, err := metrics.New(metrics.Config{
		Enabled:   cfg.MetricsEnabled,
		Namespace: metrics.DefaultConfig().Namespace,
		Buckets:   metrics.DefaultConfig().Buckets,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	app.Metrics = m

	tasks, err := NewTasks(cfg)
	if err != nil {
		return nil, err
	}
	app.Tasks = tasks

	d, err := dispatcher.New(DispatcherConfig(cfg), tasks,
		dispatcher.WithMetrics(m),
		dispatcher.WithLogger(logging.Component("dispatcher")),
	)
	if err != nil {
		return nil, err
	}
	app.Dispatcher = d

	app.Logger.Info("Application initialized",
		logging.String("isolation", cfg.IsolationMode),
		logging.Int("units", cfg.UnitCount),
		logging.Duration("job_timeout", cfg.JobTimeout),
		logging.String("render_method", cfg.RenderMethod),
	)
	return app, nil
}

// NewTasks builds the task registry. A worker process builds the same
// registry the server does, from the same configuration.
func NewTasks(cfg *config.Config) (*dispatcher.Registry, error) {
	eval := sandbox.New(
		sandbox.WithTimeout(cfg.SnippetTimeout),
		sandbox.WithLogger(logging.Component("sandbox")),
	)
	renderer, err := render.New(
		render.WithMethod(cfg.RenderMethod),
		render.WithEvaluator(eval),
		render.WithLogger(logging.Component("render")),
	)
	if err != nil {
		return nil, fmt.Errorf("init renderer: %w", err)
	}
	return dispatcher.DefaultRegistry(renderer.Task), nil
}

// DispatcherConfig derives the dispatcher settings. Settings a worker
// process needs to build its registry are forwarded in its environment.
func DispatcherConfig(cfg *config.Config) dispatcher.Config {
	dc := dispatcher.DefaultConfig()
	dc.Mode = cfg.IsolationMode
	dc.Units = cfg.UnitCount
	dc.Timeout = cfg.JobTimeout
	dc.MemoryLimitMB = cfg.UnitMemoryMB
	dc.WorkerBinary = cfg.WorkerBinary
	dc.WorkerEnv = []string{
		"RENDER_METHOD=" + cfg.RenderMethod,
		"SNIPPET_TIMEOUT=" + cfg.SnippetTimeout.String(),
		"LOG_LEVEL=" + cfg.LogLevel,
		"LOG_FORMAT=" + cfg.LogFormat,
		"LOG_FILE=" + cfg.LogFile,
	}
	return dc
}

// Shutdown stops accepting jobs and waits for running ones.
func (app *App) Shutdown(ctx context.Context) error {
	if app.Dispatcher == nil {
		return nil
	}
	if err := app.Dispatcher.Close(ctx); err != nil {
		app.Logger.Warn("Jobs still running at shutdown", logging.Err(err))
		return err
	}
	app.Logger.Info("Dispatcher stopped")
	return nil
}

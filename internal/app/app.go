// Package app wires configuration, storage, caches and listeners into a
// running analysis engine
package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"analysis-engine/internal/common/logging"
	"analysis-engine/internal/config"
	"analysis-engine/internal/datastore"
	"analysis-engine/internal/pipeline"
	"analysis-engine/internal/pipeline/cache"
	"analysis-engine/internal/pipeline/core"
	"analysis-engine/internal/pipeline/listeners"
	"analysis-engine/internal/redis"
	"analysis-engine/internal/storage"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Logger      logging.Logger
	Environment *core.Environment
	Source      datastore.Source
	Rejects     storage.RejectStore
	RedisClient *redis.Client
	Cache       *cache.TieredCache
	Metrics     *listeners.Metrics
	Registry    *prometheus.Registry
	Engine      *pipeline.Engine

	// databases opened here; a SQL datastore closes its own
	databases []*core.Database
}

// New creates the application. Components are initialized in dependency
// order; whatever was opened is released when a later step fails.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger.WithFields(logging.String("component", "app")),
		Environment: &core.Environment{
			Settings: core.Settings{
				Workers:          cfg.WorkerPoolSize,
				BufferSize:       cfg.RowBufferSize,
				ProgressEvery:    cfg.ProgressEveryRows,
				ProgressInterval: cfg.ProgressInterval,
			},
			Logger:    logger,
			Databases: make(map[string]*core.Database),
		},
	}

	steps := []func(context.Context) error{
		app.initializeDatabases,
		app.initializeRedis,
		app.initializeRejectStore,
		app.initializeSource,
		app.initializeEngine,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.Cleanup()
			return nil, err
		}
	}
	return app, nil
}

func (app *App) initializeEngine(ctx context.Context) error {
	app.Registry = prometheus.NewRegistry()
	var observers []core.Listener
	observers = append(observers, listeners.NewLogging(app.Environment.Logger))

	if app.Config.MetricsEnabled {
		app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics, err := listeners.NewMetrics(app.Registry)
		if err != nil {
			return err
		}
		app.Metrics = metrics
		observers = append(observers, metrics)
	}

	app.Engine = pipeline.NewEngine(app.Environment, app.Source, observers...)
	return app.Engine.Start(ctx)
}

// Shutdown stops accepting jobs and waits for running executions
func (app *App) Shutdown(ctx context.Context) error {
	if app.Engine == nil {
		return nil
	}
	return app.Engine.Stop(ctx)
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Source != nil {
		if err := app.Source.Close(); err != nil {
			app.Logger.Warn("Error closing data source", logging.Err(err))
		}
	}
	if app.Rejects != nil {
		if err := app.Rejects.Close(); err != nil {
			app.Logger.Warn("Error closing reject store", logging.Err(err))
		}
	}
	for _, db := range app.databases {
		if err := db.DB.Close(); err != nil {
			app.Logger.Warn("Error closing database", logging.String("database", db.Name), logging.Err(err))
		}
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}

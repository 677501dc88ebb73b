package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
	"github.com/ternarybob/praeco/internal/interfaces"
	badgerstore "github.com/ternarybob/praeco/internal/storage/badger"

	"github.com/ternarybob/praeco/internal/services/dedup"
	"github.com/ternarybob/praeco/internal/services/dispatch"
	"github.com/ternarybob/praeco/internal/services/extract"
	"github.com/ternarybob/praeco/internal/services/lifecycle"
	"github.com/ternarybob/praeco/internal/services/metadata"
	"github.com/ternarybob/praeco/internal/services/scheduler"
	"github.com/ternarybob/praeco/internal/services/workers"
)

// App wires the storage layer, extraction engines, and services together
// and owns their lifecycles.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager

	EngineRegistry   *extract.Registry
	DedupService     *dedup.Service
	LifecycleEngine  *lifecycle.Engine
	MetadataService  *metadata.Service
	Dispatcher       interfaces.Dispatcher
	SchedulerService interfaces.SchedulerService

	pool *workers.Pool
}

// logNotifier is the default Notifier. Outward notification channels
// subscribe by replacing it; the core only requires that the signal fires.
type logNotifier struct {
	logger arbor.ILogger
}

func (n *logNotifier) OnSourceDisabled(sourceID, reason string) {
	n.logger.Warn().
		Str("source", sourceID).
		Str("reason", reason).
		Msg("Source disabled notification")
}

// New initializes the application with all dependencies.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	// Source definitions live in files; load them into storage on startup
	// so edits take effect on restart.
	if cfg.Sources.Dir != "" {
		if err := badgerstore.LoadSourcesFromFiles(context.Background(), storageManager.SourceStorage(), cfg.Sources.Dir, logger); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Sources.Dir).Msg("Failed to load source definitions")
		}
	}

	app.EngineRegistry = extract.NewRegistry(cfg.Extract, logger)
	app.DedupService = dedup.NewService(storageManager.PostingStorage(), cfg.Dedup, logger)
	app.LifecycleEngine = lifecycle.NewEngine(cfg.Lifecycle, logger)
	app.MetadataService = metadata.NewService(cfg.Metadata, logger)

	app.Dispatcher = dispatch.NewService(
		app.EngineRegistry,
		app.DedupService,
		app.LifecycleEngine,
		app.MetadataService,
		storageManager,
		&logNotifier{logger: logger},
		cfg.Dispatch,
		logger,
	)

	app.pool = workers.NewPool(cfg.Scheduler.Workers, logger)
	app.SchedulerService = scheduler.NewService(
		app.Dispatcher,
		app.LifecycleEngine,
		storageManager,
		app.pool,
		cfg.Scheduler,
		logger,
	)

	logger.Info().
		Str("environment", cfg.Environment).
		Int("workers", cfg.Scheduler.Workers).
		Msg("Application initialization complete")
	return app, nil
}

// Start begins the scheduler and its worker pool.
func (a *App) Start() error {
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close shuts services down in reverse dependency order. Storage closes
// last so in-flight dispatches can finish their writes.
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application...")

	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Scheduler shutdown error")
		}
	}

	if a.EngineRegistry != nil {
		a.EngineRegistry.Shutdown()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage shutdown error")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}

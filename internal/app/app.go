// -----------------------------------------------------------------------
// App - dependency wiring for the orchestrator process
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fibreflow/internal/common"
	"github.com/ternarybob/fibreflow/internal/handlers"
	"github.com/ternarybob/fibreflow/internal/interfaces"
	"github.com/ternarybob/fibreflow/internal/services/events"
	"github.com/ternarybob/fibreflow/internal/services/metrics"
	"github.com/ternarybob/fibreflow/internal/services/orchestrator"
	"github.com/ternarybob/fibreflow/internal/services/reporter"
	"github.com/ternarybob/fibreflow/internal/services/scheduler"
	"github.com/ternarybob/fibreflow/internal/services/workers"
	"github.com/ternarybob/fibreflow/internal/storage/badger"
	"github.com/ternarybob/fibreflow/internal/storage/sqlite"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Persistence
	Storage interfaces.StorageManager
	JobLogs interfaces.JobLogStorage
	logDB   *badger.BadgerDB

	// Core services
	EventService interfaces.EventService
	Directory    interfaces.WorkerDirectory
	WorkerClient interfaces.WorkerClient
	Pool         *workers.Pool
	Collector    *metrics.Collector
	Sampler      *metrics.Sampler
	Reporter     interfaces.ReportService
	Retrier      *orchestrator.RetryController
	Dispatcher   *orchestrator.Dispatcher
	Reconciler   *orchestrator.Reconciler
	Cleaner      *orchestrator.Cleaner
	Scheduler    interfaces.SchedulerService

	// HTTP handlers
	JobHandler    *handlers.JobHandler
	SystemHandler *handlers.SystemHandler
	WSHandler     *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	if err := app.registerTasks(); err != nil {
		return nil, fmt.Errorf("failed to register scheduled tasks: %w", err)
	}

	if err := app.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Int("workers", len(cfg.Workers.Endpoints)).
		Str("environment", cfg.Environment).
		Bool("reporting", cfg.Reporter.Endpoint != "").
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the SQLite job store and the Badger automation log
// store
func (a *App) initStorage() error {
	storageManager, err := sqlite.NewManager(a.Logger, &a.Config.Database)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.Storage = storageManager

	a.Logger.Debug().
		Str("storage", "sqlite").
		Str("path", a.Config.Database.Path).
		Msg("Job store initialized")

	logDB, err := badger.NewBadgerDB(a.Logger, a.Config.Database.LogStorePath)
	if err != nil {
		return fmt.Errorf("failed to open automation log store: %w", err)
	}
	a.logDB = logDB
	a.JobLogs = badger.NewJobLogStorage(logDB, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Database.LogStorePath).
		Msg("Automation log store initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	jobs := a.Storage.JobStorage()

	a.EventService = events.NewService(a.Logger)
	a.Directory = workers.NewDirectory(&a.Config.Workers, a.Logger)
	a.WorkerClient = workers.NewClient(a.Config.Workers.Timeout, a.Logger)
	a.Pool = workers.NewPool(a.Config.Dispatch.MaxWorkers, a.Config.Dispatch.RatePerSec, a.Logger)

	a.Collector = metrics.NewCollector()
	a.Sampler = metrics.NewSampler(jobs, a.Storage.MetricsStorage(), a.Directory, a.Collector, a.Logger)

	a.Reporter = reporter.NewService(&a.Config.Reporter, a.Logger)

	a.Retrier = orchestrator.NewRetryController(jobs, a.Reporter, a.EventService, a.Collector, &a.Config.Retry, a.Logger)
	a.Dispatcher = orchestrator.NewDispatcher(
		jobs,
		a.JobLogs,
		a.Directory,
		a.WorkerClient,
		a.Retrier,
		a.Reporter,
		a.EventService,
		a.Pool,
		a.Collector,
		a.Config,
		a.Logger,
	)
	a.Reconciler = orchestrator.NewReconciler(jobs, a.WorkerClient, a.Reporter, a.EventService, a.Config, a.Logger)
	a.Cleaner = orchestrator.NewCleaner(jobs, a.JobLogs, a.Storage.MetricsStorage(), a.Config, a.Logger)

	a.Scheduler = scheduler.NewService(a.Logger)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.JobHandler = handlers.NewJobHandler(
		a.Storage.JobStorage(),
		a.Storage.HistoryStorage(),
		a.Storage.ScreenshotStorage(),
		a.JobLogs,
		a.Reporter,
		a.EventService,
		a.Logger,
	)

	a.SystemHandler = handlers.NewSystemHandler(
		a.Scheduler,
		a.Dispatcher,
		a.Storage.JobStorage(),
		a.Sampler,
		a.Directory,
		a.Config.Retry.MaxLockAge,
		a.Logger,
	)

	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
}

// registerTasks binds the periodic orchestration tasks to the scheduler
func (a *App) registerTasks() error {
	sched := a.Config.Scheduler

	err := a.Scheduler.RegisterTask(
		"queue_poll",
		scheduler.EverySchedule(sched.PollInterval),
		"Lease due jobs and dispatch them to workers",
		func() error {
			_, err := a.Dispatcher.ProcessQueue(context.Background())
			return err
		})
	if err != nil {
		return err
	}

	err = a.Scheduler.RegisterTask(
		"worker_status_poll",
		scheduler.EverySchedule(sched.StatusInterval),
		"Reconcile in-flight jobs against worker status endpoints",
		func() error {
			return a.Reconciler.Poll(context.Background())
		})
	if err != nil {
		return err
	}

	err = a.Scheduler.RegisterTask(
		"metrics_sample",
		scheduler.EverySchedule(sched.MetricsInterval),
		"Snapshot queue depth and worker availability",
		func() error {
			return a.Sampler.Sample(context.Background())
		})
	if err != nil {
		return err
	}

	err = a.Scheduler.RegisterTask(
		"stale_lock_recovery",
		scheduler.EverySchedule(sched.RecoveryInterval),
		"Reclaim leases held longer than the lock age limit",
		func() error {
			recovered, err := a.Storage.JobStorage().RecoverStaleLocks(context.Background(), a.Config.Retry.MaxLockAge)
			if err != nil {
				return err
			}
			if recovered > 0 {
				a.Logger.Info().Int("recovered", recovered).Msg("Stale leases reclaimed")
			}
			return nil
		})
	if err != nil {
		return err
	}

	err = a.Scheduler.RegisterTask(
		"evidence_cleanup",
		scheduler.DailyAtHour(sched.CleanupHour),
		"Purge expired jobs, evidence files and metric samples",
		func() error {
			if err := a.Cleaner.Run(context.Background()); err != nil {
				return err
			}
			// Purged log entries stay in badger's value log until GC runs
			a.logDB.RunValueLogGC()
			return nil
		})
	if err != nil {
		return err
	}

	if sched.HealthReportInterval > 0 && a.Config.Reporter.Endpoint != "" {
		err = a.Scheduler.RegisterTask(
			"health_report",
			scheduler.EverySchedule(sched.HealthReportInterval),
			"Post an orchestrator liveness ping to the callback endpoint",
			func() error {
				return a.Reporter.ReportHealth(context.Background())
			})
		if err != nil {
			return err
		}
	}

	return nil
}

// Close shuts down all application resources in reverse dependency order
func (a *App) Close() error {
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	// In-flight dispatch tasks are bounded by the worker timeout and the
	// transport retry budget, so this wait terminates.
	if a.Pool != nil {
		a.Logger.Info().Msg("Waiting for in-flight dispatch tasks")
		a.Pool.Wait()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.logDB != nil {
		if err := a.logDB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close automation log store")
		}
	}

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

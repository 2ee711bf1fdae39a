// Package app wires configuration, database, repositories, services, the
// job worker, and the HTTP server into runnable applications.
package app

import (
	"context"
	"log/slog"

	"evalforge/internal/config"
	"evalforge/internal/infrastructure/database"
	chatRepo "evalforge/internal/infrastructure/repository/chat"
	evalrunRepo "evalforge/internal/infrastructure/repository/evalrun"
	evaluatorRepo "evalforge/internal/infrastructure/repository/evaluator"
	fileRepo "evalforge/internal/infrastructure/repository/file"
	historyRepo "evalforge/internal/infrastructure/repository/history"
	jobRepo "evalforge/internal/infrastructure/repository/job"
	listingRepo "evalforge/internal/infrastructure/repository/listing"
	promptlibRepo "evalforge/internal/infrastructure/repository/promptlib"
	settingsRepo "evalforge/internal/infrastructure/repository/settings"
	tagRepo "evalforge/internal/infrastructure/repository/tag"
	"evalforge/internal/infrastructure/storage"
	"evalforge/internal/seeder"
	"evalforge/internal/services/evaluation"
	httpTransport "evalforge/internal/transport/http"
	"evalforge/internal/transport/http/handlers"
	"evalforge/internal/workers/jobworker"
	"evalforge/pkg/logging"
)

// App is the assembled application: repositories, worker, and optionally the
// HTTP server.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *database.PostgresDB

	Worker *jobworker.Worker
	Server *httpTransport.Server
	Seeder *seeder.Seeder

	workerCancel context.CancelFunc
}

// Options selects which parts of the application to assemble.
type Options struct {
	// HTTP enables the API server.
	HTTP bool
	// Worker enables the background job worker.
	Worker bool
}

// New assembles the application.
func New(cfg *config.Config, opts Options) (*App, error) {
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	db, err := database.NewPostgresDB(cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			return nil, err
		}
	}

	store, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}

	jobs := jobRepo.NewRepository(db.DB)
	runs := evalrunRepo.NewRepository(db.DB)
	listings := listingRepo.NewRepository(db.DB)
	chats := chatRepo.NewRepository(db.DB)
	evaluators := evaluatorRepo.NewRepository(db.DB)
	prompts := promptlibRepo.NewRepository(db.DB)
	histories := historyRepo.NewRepository(db.DB)
	settingsR := settingsRepo.NewRepository(db.DB)
	tags := tagRepo.NewRepository(db.DB)
	files := fileRepo.NewRepository(db.DB)

	worker := jobworker.New(jobs, runs, logger, cfg.Worker.PollInterval, cfg.Worker.ErrorMessageLimit)

	evalService := evaluation.NewService(cfg, logger, runs, listings, chats, evaluators, files, settingsR, histories, store, worker)
	evalService.RegisterHandlers(worker)

	application := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Seeder: seeder.New(prompts, evaluators, logger, ""),
	}

	if opts.Worker {
		application.Worker = worker
	}

	if opts.HTTP {
		handlerSet, err := handlers.New(
			logger, jobs, runs, listings, chats, evaluators,
			prompts, histories, settingsR, tags, files, store, worker, db,
		)
		if err != nil {
			return nil, err
		}
		application.Server = httpTransport.NewServer(cfg, logger, handlerSet)
	}

	return application, nil
}

// StartWorker launches the polling worker in the background.
func (a *App) StartWorker() {
	if a.Worker == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.workerCancel = cancel
	go a.Worker.Run(ctx)
}

// Shutdown stops the worker and closes the database.
func (a *App) Shutdown(ctx context.Context) error {
	if a.workerCancel != nil {
		a.workerCancel()
	}
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Warn("HTTP shutdown error", "error", err)
		}
	}
	return a.DB.Close()
}

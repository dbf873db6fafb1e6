package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/lexis-api/internal/config"
	"github.com/phrazzld/lexis-api/internal/domain"
	"github.com/phrazzld/lexis-api/internal/domain/srs"
	"github.com/phrazzld/lexis-api/internal/events"
	"github.com/phrazzld/lexis-api/internal/platform/memory"
	"github.com/phrazzld/lexis-api/internal/platform/postgres"
	"github.com/phrazzld/lexis-api/internal/service"
	"github.com/phrazzld/lexis-api/internal/service/auth"
	"github.com/phrazzld/lexis-api/internal/service/dueset"
	"github.com/phrazzld/lexis-api/internal/service/lesson"
	"github.com/phrazzld/lexis-api/internal/store"
)

// backend is a storage implementation: transactional access plus
// autocommit stores for reads.
type backend interface {
	store.Transactor
	Stores() store.Stores
}

// application holds the wired dependencies of the server.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil with the memory driver
	db      *sql.DB
	backend backend
	emitter *events.InMemoryEventEmitter

	jwtService       auth.JWTService
	lessonService    lesson.Service
	dueSetService    dueset.Service
	schedulerConfigs service.SchedulerConfigService
}

// newApplication opens the configured storage backend and wires services.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &application{config: cfg, logger: logger}

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("database connection established",
			slog.String("url", postgres.MaskURL(cfg.Database.URL)))
		app.db = db
		app.backend = postgres.NewTransactor(db, logger)
	case config.DriverMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		app.backend = memory.New()
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}
	app.jwtService = jwtService

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(events.LogHandler(logger))

	reads := app.backend.Stores()
	app.lessonService = lesson.NewService(
		app.backend,
		srs.NewDefaultService(),
		app.emitter,
		lesson.Options{
			StrictProposals: cfg.Scheduler.StrictProposals,
			Timeout:         cfg.Scheduler.CompletionTimeout,
		},
		logger,
	)
	app.dueSetService = dueset.NewService(reads.Users, reads.ReviewStates, logger)
	app.schedulerConfigs = service.NewSchedulerConfigService(
		app.backend,
		reads.Users,
		defaultSchedulerConfig(cfg.Scheduler),
		logger,
	)

	return app, nil
}

// defaultSchedulerConfig is the configuration given to provisioned users.
func defaultSchedulerConfig(cfg config.SchedulerConfig) domain.SchedulerConfig {
	return domain.SchedulerConfig{
		MaxBins:            cfg.DefaultMaxBins,
		Algorithm:          domain.DefaultAlgorithm,
		IntervalStartHours: cfg.DefaultIntervalStart,
	}
}

// migrate runs a goose command against the postgres backend.
func (app *application) migrate(ctx context.Context, command string) error {
	if app.db == nil {
		return fmt.Errorf("migrations require database.driver=%s", config.DriverPostgres)
	}
	return postgres.Migrate(ctx, app.db, command, app.logger)
}

// cleanup releases resources held by the application.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("failed to close database connection", slog.String("error", err.Error()))
			return
		}
		app.logger.Info("database connection closed")
		app.db = nil
	}
}

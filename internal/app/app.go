package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"MediMind/internal/config"
	"MediMind/internal/domain"
	"MediMind/internal/httpapi"
	"MediMind/internal/infrastructure/email"
	"MediMind/internal/infrastructure/kafkanotify"
	"MediMind/internal/infrastructure/llm"
	"MediMind/internal/infrastructure/ocr"
	"MediMind/internal/infrastructure/scheduler"
	"MediMind/internal/infrastructure/storage"
	"MediMind/internal/normalizer"
	"MediMind/internal/notification"
	"MediMind/internal/ports"
	"MediMind/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *zap.Logger
	store      ports.Store
	kafka      *kafkanotify.Notifier
	pipeline   *usecase.Pipeline
	dispatcher *usecase.Dispatcher
	scheduler  *usecase.Scheduler
	server     *httpapi.Server
}

// Options overrides adapters, mostly for tests and the memory driver.
type Options struct {
	Store    ports.Store
	Version  string
	Notifier notification.Channel
}

// New connects the configured store and builds every component.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = openStore(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
	}

	a := &Application{cfg: cfg, logger: logger, store: store}

	notifier := opts.Notifier
	if notifier == nil {
		registry := notification.NewRegistry()
		registry.Register(email.NewNotifier(cfg.Notifications.Email, nil, logger))
		registry.Register(notification.NewLogChannel(logger))
		if cfg.Notifications.Channel == "kafka" {
			a.kafka = kafkanotify.NewNotifier(cfg.Notifications.Kafka, nil, logger)
			registry.Register(a.kafka)
		}
		var err error
		notifier, err = registry.Resolve(cfg.Notifications.Channel)
		if err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
	}

	loc := cfg.Reminders.Location()

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Users:         store,
		OCR:           ocr.NewClient(cfg.OCR, logger),
		Extractor:     llm.NewOpenRouterClient(cfg.LLM, logger),
		Normalizer:    normalizer.New(cfg.Normalizer.PersistFallbackOrDefault()),
		Prescriptions: store,
		Schedules:     store,
		Logger:        logger.With(zap.String("component", "pipeline")),
	})

	a.dispatcher = usecase.NewDispatcher(usecase.DispatcherDeps{
		Schedules: store,
		Users:     store,
		Notifier:  notifier,
		Location:  loc,
		Logger:    logger.With(zap.String("component", "dispatch")),
	})

	triggers := make([]usecase.Trigger, 0, len(cfg.Reminders.Triggers))
	for _, t := range cfg.Reminders.Triggers {
		triggers = append(triggers, usecase.Trigger{ID: t.ID, Name: t.Name, Hour: t.Hour, Minute: t.Minute})
	}
	a.scheduler = usecase.NewScheduler(
		scheduler.NewDaily(loc, scheduler.WithLogger(logger)),
		a.dispatcher,
		triggers,
		logger.With(zap.String("component", "reminders")),
	)

	a.server = httpapi.NewServer(cfg.Server, httpapi.Deps{
		Uploader:  a.pipeline,
		Schedules: usecase.NewSchedules(store, store, logger.With(zap.String("component", "schedules"))),
		Reminders: a.scheduler,
		Store:     store,
		Version:   opts.Version,
		Logger:    logger,
	})

	logger.Info("application ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("channel", notifier.Name()),
		zap.String("timezone", loc.String()),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (ports.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		return storage.ConnectMongo(ctx, cfg, logger)
	case config.DriverPostgres:
		repo, err := storage.OpenPostgres(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			_ = repo.Close(ctx)
			return nil, err
		}
		return repo, nil
	case config.DriverMemory:
		repo := storage.NewMemoryRepository()
		for _, seed := range cfg.SeedUsers {
			repo.AddUser(domain.User{ID: seed.ID, Email: seed.Email})
		}
		logger.Info("memory store ready", zap.Int("users", len(cfg.SeedUsers)))
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Serve runs the HTTP API and, when enabled, the reminder scheduler until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if a.cfg.Reminders.AutostartOrDefault() {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown", zap.Error(err))
	}
	return serveErr
}

// Dispatch performs one reminder run immediately.
func (a *Application) Dispatch(ctx context.Context) (usecase.RunReport, error) {
	return a.dispatcher.Run(ctx)
}

// Handler exposes the HTTP routes without starting a listener.
func (a *Application) Handler() http.Handler {
	return a.server.Router()
}

// Close releases the notifier and the store.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.kafka != nil {
		errs = append(errs, a.kafka.Close())
	}
	errs = append(errs, a.store.Close(ctx))
	return errors.Join(errs...)
}

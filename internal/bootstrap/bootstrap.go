// Package bootstrap assembles the grading engine from a LocalConfig. The
// daemon, the MCP server and the CLI share one wiring.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/assessment"
	"github.com/eriker75/onenglish-sub004/internal/attempt"
	"github.com/eriker75/onenglish-sub004/internal/catalog"
	"github.com/eriker75/onenglish-sub004/internal/config"
	"github.com/eriker75/onenglish-sub004/internal/domain"
	"github.com/eriker75/onenglish-sub004/internal/grading"
	"github.com/eriker75/onenglish-sub004/internal/llm"
	"github.com/eriker75/onenglish-sub004/internal/metrics"
	"github.com/eriker75/onenglish-sub004/internal/points"
	"github.com/eriker75/onenglish-sub004/internal/queue"
	"github.com/eriker75/onenglish-sub004/internal/storage/memory"
	"github.com/eriker75/onenglish-sub004/internal/storage/postgres"
	"github.com/eriker75/onenglish-sub004/internal/storage/sqlite"
	"github.com/eriker75/onenglish-sub004/internal/telemetry"
)

// Store is everything the engine needs from persistence
type Store interface {
	catalog.Store
	assessment.Store
	points.Store
}

// App holds the wired services
type App struct {
	Config     *config.LocalConfig
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Events     *domain.EventDispatcher
	LLM        *llm.Registry
	Store      Store
	Tracker    attempt.Tracker
	Grading    *grading.Registry
	Points     *points.Service
	Catalog    *catalog.Service
	Assessment *assessment.Service

	// EventLog is nil unless storage.driver is sqlite
	EventLog *sqlite.EventLog

	// Queue is nil unless queue.enabled
	Queue    *queue.Connection
	Producer *queue.Producer

	consumer *queue.Consumer
	closers  []func() error
}

// New opens storage, registers judge providers and builds the services.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Events:  domain.NewEventDispatcher(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	a.onClose(func() error { return shutdown(context.Background()) })

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}
	if a.Tracker == nil {
		if err := a.openTracker(ctx); err != nil {
			return nil, err
		}
	}

	a.LLM = llm.NewRegistry()
	a.onClose(a.LLM.Close)
	if err := a.registerProviders(ctx); err != nil {
		return nil, err
	}

	a.Grading, err = grading.NewRegistry(a.buildJudge(),
		grading.WithLogger(logger),
		grading.WithConcurrency(cfg.Judge.Concurrency),
	)
	if err != nil {
		return nil, fmt.Errorf("build validator registry: %w", err)
	}

	a.Points = points.NewService(a.Store,
		points.WithLogger(logger),
		points.WithMetrics(a.Metrics),
		points.WithEvents(a.Events),
	)
	a.Catalog = catalog.NewService(a.Store, a.Points)
	a.Catalog.SetLogger(logger)
	a.Assessment = assessment.NewService(a.Store, a.Grading, a.Tracker,
		assessment.WithRecalculator(a.Points),
		assessment.WithDefaultMaxAttempts(cfg.Attempts.DefaultMax),
		assessment.WithLogger(logger),
		assessment.WithMetrics(a.Metrics),
		assessment.WithEvents(a.Events),
	)

	if a.EventLog != nil {
		a.recordEvents(ctx)
	}

	if cfg.Queue.Enabled {
		if err := a.openQueue(); err != nil {
			return nil, err
		}
	}

	logger.Info("grading engine ready",
		"storage", cfg.Storage.Driver,
		"attempts", cfg.AttemptsBackend(),
		"llm_providers", a.LLM.List(),
		"queue", cfg.Queue.Enabled,
	)
	return a, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		a.Store = memory.NewStore()

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		a.onClose(db.Close)
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		a.Store = sqlite.NewStore(db)
		a.EventLog = sqlite.NewEventLog(db)
		if cfg.AttemptsBackend() == config.DriverSQLite {
			a.Tracker = sqlite.NewAttemptTracker(db)
		}

	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.onClose(func() error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		a.Store = pg
		if cfg.AttemptsBackend() == config.DriverPostgres {
			a.Tracker = pg.AttemptTracker()
		}

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return nil
}

func (a *App) openTracker(ctx context.Context) error {
	cfg := a.Config.Attempts
	switch a.Config.AttemptsBackend() {
	case config.DriverMemory:
		a.Tracker = attempt.NewMemoryTracker()
	case config.BackendRedis:
		t, err := attempt.NewRedisTracker(ctx, attempt.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL(),
		})
		if err != nil {
			return fmt.Errorf("open attempt tracker: %w", err)
		}
		a.onClose(t.Close)
		a.Tracker = t
	default:
		return fmt.Errorf("attempt backend %q needs matching storage", a.Config.AttemptsBackend())
	}
	return nil
}

// recordEvents prunes the event log to the retention window and then
// appends every published event to it
func (a *App) recordEvents(ctx context.Context) {
	if days := a.Config.Storage.EventRetentionDays; days > 0 {
		n, err := a.EventLog.Prune(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			a.Logger.Warn("prune event log", "error", err)
		} else if n > 0 {
			a.Logger.Info("pruned event log", "removed", n, "retention_days", days)
		}
	}
	a.Events.SubscribeAll(func(e domain.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.EventLog.Record(ctx, e); err != nil {
			a.Logger.Warn("record event", "type", e.EventType(), "question_id", e.AggregateID(), "error", err)
		}
	})
}

func (a *App) openQueue() error {
	conn, err := queue.NewConnection(a.Config.Queue.URL)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	conn.SetLogger(a.Logger)
	a.onClose(conn.Close)
	a.Queue = conn

	a.Producer = queue.NewProducer(conn)
	a.Producer.SetLogger(a.Logger)
	a.Producer.Bridge(a.Events, 0)
	return nil
}

// StartWorkers starts the recalculation consumer when the queue is enabled
func (a *App) StartWorkers(ctx context.Context) error {
	if a.Queue == nil {
		return nil
	}
	a.consumer = queue.NewConsumer(a.Queue, queue.RecalculateWith(a.Points), queue.ConsumerConfig{
		Workers:  a.Config.Queue.Workers,
		Prefetch: a.Config.Queue.Prefetch,
		Logger:   a.Logger,
	})
	return a.consumer.Start(ctx)
}

// Seed loads every question pack under questions_path into the store.
// A missing directory seeds nothing.
func (a *App) Seed(ctx context.Context) (int, error) {
	path := a.Config.QuestionsPath
	if path == "" {
		return 0, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		a.Logger.Debug("no question packs to seed", "path", path)
		return 0, nil
	}
	n, err := a.Catalog.SeedFromLoader(ctx, catalog.NewLoader(path))
	if err != nil {
		return n, fmt.Errorf("seed questions from %s: %w", path, err)
	}
	a.Logger.Info("seeded questions", "path", path, "count", n)
	return n, nil
}

// Close stops workers and releases everything New opened, in reverse order
func (a *App) Close() error {
	if a.consumer != nil {
		a.consumer.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/ziadkadry99/foliocache/internal/cachestore"
	"github.com/ziadkadry99/foliocache/internal/config"
	"github.com/ziadkadry99/foliocache/internal/controller"
	"github.com/ziadkadry99/foliocache/internal/db"
	"github.com/ziadkadry99/foliocache/internal/fetch"
	"github.com/ziadkadry99/foliocache/internal/logging"
	"github.com/ziadkadry99/foliocache/internal/manifest"
	"github.com/ziadkadry99/foliocache/internal/prefetchlog"
	"github.com/ziadkadry99/foliocache/internal/worker"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `foliocache init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// newLogger builds the process logger; --verbose forces debug level.
func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(os.Stderr, level, string(cfg.Log.Format))
}

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	database *db.DB
	storage  cachestore.Storage
	origin   *url.URL
	client   *fetch.Client
	reg      *worker.Registration
	batches  *prefetchlog.Store
	loader   *manifest.Loader
}

// openApp loads config and opens the database. Callers must Close it.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	origin, err := cfg.OriginURL()
	if err != nil {
		return nil, err
	}

	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	client := fetch.NewClient(origin,
		fetch.WithMaxBodyBytes(cfg.MaxBodyBytes),
		fetch.WithTimeout(cfg.FetchTimeout),
		fetch.WithLogger(logger),
	)
	loader, err := manifest.NewLoader(client, origin, cfg.ManifestPath)
	if err != nil {
		database.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		storage:  cachestore.NewSQLStorage(database),
		origin:   origin,
		client:   client,
		reg:      worker.NewRegistration(logger),
		batches:  prefetchlog.NewStore(database),
		loader:   loader,
	}, nil
}

// newWorker builds a worker from config with the given prefetch observers.
func (a *app) newWorker(observers ...worker.PrefetchObserver) *worker.Worker {
	return worker.New(a.storage, a.client, worker.Options{
		CacheName:        a.cfg.CacheName,
		Scope:            a.origin,
		Classifier:       worker.NewClassifier(a.cfg.ImageExtensions),
		IgnoreSearch:     a.cfg.IgnoreSearch,
		SkipWaiting:      a.cfg.SkipWaiting,
		ClaimClients:     a.cfg.ClaimClients,
		PruneStaleCaches: a.cfg.PruneStaleCaches,
		Observer:         worker.Observers(observers),
		Logger:           a.logger,
	})
}

// newController wires a page controller whose workers report to observers.
func (a *app) newController(delay time.Duration, observers ...worker.PrefetchObserver) *controller.Controller {
	factory := func() *worker.Worker { return a.newWorker(observers...) }
	return controller.New(a.reg, factory, a.loader, controller.Options{
		HomePaths: a.cfg.HomePaths,
		Delay:     delay,
		Logger:    a.logger,
	})
}

// Close terminates the workers, waiting up to timeout for their extended
// work, and closes the database.
func (a *app) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.reg.Unregister(ctx); err != nil {
		a.logger.Warn("stopping workers", "error", err)
	}
	return a.database.Close()
}

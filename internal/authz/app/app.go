package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/authz/internal/authz/actor"
	"github.com/aussiebroadwan/authz/internal/authz/analytics"
	"github.com/aussiebroadwan/authz/internal/authz/exchangecode"
	"github.com/aussiebroadwan/authz/internal/authz/metrics"
	"github.com/aussiebroadwan/authz/internal/authz/platform"
	"github.com/aussiebroadwan/authz/internal/authz/rpc"
	"github.com/aussiebroadwan/authz/internal/authz/service"
	"github.com/aussiebroadwan/authz/internal/authz/session"
	"github.com/aussiebroadwan/authz/internal/authz/store"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/memory"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/redis"
	"github.com/aussiebroadwan/authz/internal/authz/store/drivers/sqlite"
	"github.com/aussiebroadwan/authz/pkg/cryptox"
	"github.com/aussiebroadwan/authz/pkg/jwtx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"

	analyticsQueueSize = 1024
)

// Application encapsulates the authorization service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	keys    *jwtx.SigningKeySet
	actors  *actor.Registry
	metrics *metrics.Metrics

	// Services
	service      *service.Service
	analytics    *analytics.Dispatcher
	housekeeping *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *rpc.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authz",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := cryptox.LoadPepperFile(cfg.PepperFile); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	if err := app.initStore(context.Background()); err != nil {
		return nil, err
	}

	keys, err := InitSigningKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keys = keys

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed HTTP handler, mainly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Start launches the background workers without serving HTTP.
func (app *Application) Start() {
	app.analytics.Start()
	app.housekeeping.Start()
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("authz service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.Store,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains requests, stops background work and closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authz service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()
	app.actors.Close()
	app.analytics.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("authz service stopped")
	return nil
}

// initStore opens the configured backend and applies its migrations.
func (app *Application) initStore(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.Store {
	case StoreMemory:
		db = memory.NewStore(app.cfg.MaxValueSize)
		app.logger.Warn("using in-memory store; sessions and codes are lost on restart")
	case StoreSQLite:
		db, err = sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile), app.cfg.MaxValueSize)
	case StoreRedis:
		db, err = redis.NewStore(ctx, redis.Config{
			Addr:         app.cfg.RedisAddr,
			Password:     app.cfg.RedisPassword,
			DB:           app.cfg.RedisDB,
			KeyPrefix:    app.cfg.RedisPrefix,
			MaxValueSize: app.cfg.MaxValueSize,
		})
	default:
		return fmt.Errorf("unknown store %q", app.cfg.Store)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", app.cfg.Store, err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}
	app.db = db

	app.logger.Info("store ready", "store", app.cfg.Store)
	return nil
}

// initServices wires the core and its platform collaborators.
func (app *Application) initServices() error {
	clients, err := platform.LoadClientRegistry(app.cfg.ClientsFile)
	if err != nil {
		return fmt.Errorf("failed to load clients: %w", err)
	}
	directory, err := platform.LoadDirectory(app.cfg.ProfilesFile)
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}

	app.actors = actor.NewRegistry(app.db, app.logger)

	sessions := session.New(app.actors, app.keys)
	sessions.OnEvict = app.metrics.Evicted

	var sink analytics.Sink = analytics.LogSink{Logger: app.logger}
	if app.cfg.AnalyticsURL != "" {
		sink = analytics.NewHTTPSink(app.cfg.AnalyticsURL, app.cfg.AnalyticsAPIKey)
	}
	app.analytics = analytics.NewDispatcher(sink, app.logger, analyticsQueueSize)

	app.service = &service.Service{
		Codes:             exchangecode.New(app.actors, app.cfg.CodeTTL),
		Sessions:          sessions,
		Keys:              app.keys,
		Issuer:            app.cfg.Issuer,
		AccessTTL:         app.cfg.AccessTokenTTL,
		AuthenticationTTL: app.cfg.AuthenticationTokenTTL,
		RefreshTTL:        app.cfg.RefreshTokenTTL,
		Clients:           clients,
		Edges:             platform.NewGraph(),
		Directory:         directory,
		Claims:            platform.NewClaimResolver(directory),
		Usage:             platform.NewUsageMeter(app.cfg.ExternalDataReadsPerMin, app.cfg.ExternalDataWritesPerMin),
		Paymaster:         platform.NewPaymaster(clients, app.logger),
		Analytics:         app.analytics,
		Metrics:           app.metrics,
	}

	app.housekeeping = service.NewHousekeepingService(
		app.actors,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	app.logger.Info("services initialized",
		"issuer", app.cfg.Issuer,
		"analytics", app.cfg.AnalyticsURL != "",
	)
	return nil
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := rpc.NewRouter(app.service, app.db, app.metrics.Handler(), BuildVersion, app.logger)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

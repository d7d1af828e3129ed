package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agromongol/agrochat-server/internal/config"
	"github.com/agromongol/agrochat-server/internal/core"
	"github.com/agromongol/agrochat-server/internal/store"
	"github.com/agromongol/agrochat-server/internal/store/memory"
	"github.com/agromongol/agrochat-server/internal/store/postgres"
	"github.com/agromongol/agrochat-server/internal/store/sqlite"
	transporthttp "github.com/agromongol/agrochat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("driver", cfg.Store.Driver).Msg("message store initialized")

	hub := core.NewHub(st, core.Options{
		PersistTimeout: cfg.Dispatch.PersistTimeout,
		EventBuffer:    cfg.WS.EventBuffer,
		Logger:         logger,
	})
	server := transporthttp.NewServer(hub, st, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.New(cfg.DatabasePath)
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Addr returns the configured listen address.
func (a *App) Addr() string {
	return a.server.Addr
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		a.shutdown()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Websocket sessions are hijacked and not tracked by Shutdown; the
		// hub closes them once ctx is done.
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.shutdown()
			return err
		}

		a.shutdown()
		return <-serverErr
	}
}

// shutdown lets accepted messages reach the store before closing it.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()
	if err := a.hub.Drain(ctx); err != nil {
		a.log.Warn().Err(err).Msg("in-flight messages did not finish before shutdown")
	}
	a.cleanup()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bonfirelabs/bonfire-server/internal/auth"
	"github.com/bonfirelabs/bonfire-server/internal/collab"
	"github.com/bonfirelabs/bonfire-server/internal/config"
	"github.com/bonfirelabs/bonfire-server/internal/core"
	"github.com/bonfirelabs/bonfire-server/internal/pubsub"
	"github.com/bonfirelabs/bonfire-server/internal/store"
	"github.com/bonfirelabs/bonfire-server/internal/store/sqlite"
	transporthttp "github.com/bonfirelabs/bonfire-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	bridge          *pubsub.Bridge
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	verifier := auth.NewJWTVerifier(auth.Config{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})

	hub := core.NewHub(st, core.NewMembershipAuthorizer(st), core.Options{
		OutboxSize:      cfg.OutboxSize,
		MaxMessageBytes: cfg.MaxMessageBytes,
		DedupTTL:        cfg.DedupTTL,
		TypingTTL:       cfg.TypingTTL,
		SweepInterval:   cfg.SweepInterval,
		IdleTimeout:     cfg.IdleTimeout,
	}, logger)

	// The capability set is resolved once; the pipeline never branches on it.
	caps := collab.ParseCapabilities(cfg.Capabilities)
	if caps.Push {
		hub.Pipeline.AddSink(collab.NewLogSink("push", logger))
	}
	if caps.Search {
		hub.Pipeline.AddSink(collab.NewLogSink("search", logger))
	}
	if caps.Bots {
		hub.Pipeline.AddSink(collab.NewLogSink("bots", logger))
	}

	var bridge *pubsub.Bridge
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		bridge, err = pubsub.NewBridge(ctx, cfg.RedisAddr, hub.Router, logger)
		cancel()
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init redis bridge: %w", err)
		}
		hub.Router.SetRemote(bridge)
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("fan-out bridge enabled")
	}

	server := transporthttp.NewServer(hub, verifier, st, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		bridge:          bridge,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)
	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx); err != nil && ctx.Err() == nil {
				a.log.Error().Err(err).Msg("fan-out bridge stopped")
			}
		}()
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the store and the bridge.
func (a *App) cleanup() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fan-out bridge")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

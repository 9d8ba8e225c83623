package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bonfirelabs/bonfire-server/internal/store"
)

// Options tunes the real-time core.
type Options struct {
	OutboxSize      int
	MaxMessageBytes int
	DedupTTL        time.Duration
	TypingTTL       time.Duration
	SweepInterval   time.Duration
	IdleTimeout     time.Duration
}

// Hub composes the connection registry, message pipeline, broadcast router,
// and presence tracker, and drives the periodic sweeps.
type Hub struct {
	Registry *Registry
	Pipeline *Pipeline
	Router   *Router
	Presence *Tracker

	sweepInterval time.Duration
	idleTimeout   time.Duration
	log           *zerolog.Logger
}

// NewHub wires the core components together.
func NewHub(st store.MessageStore, authz Authorizer, opts Options, logger *zerolog.Logger) *Hub {
	reg := NewRegistry(authz, opts.OutboxSize, logger)
	router := NewRouter(reg, logger)
	pipeline := NewPipeline(st, opts.MaxMessageBytes, opts.DedupTTL, logger)
	presence := NewTracker(opts.TypingTTL)

	reg.setPublish(router.Publish)
	reg.setPresence(presence)
	pipeline.setPublish(router.Publish)
	presence.setPublish(router.Publish)
	presence.setLocator(reg)

	sweep := opts.SweepInterval
	if sweep <= 0 {
		sweep = 2 * time.Second
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 90 * time.Second
	}

	return &Hub{
		Registry:      reg,
		Pipeline:      pipeline,
		Router:        router,
		Presence:      presence,
		sweepInterval: sweep,
		idleTimeout:   idle,
		log:           logger,
	}
}

// Run drives the presence expiry sweep and the idle-connection janitor until
// the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			h.Presence.Sweep(now)
			h.Registry.CloseIdle(now.Add(-h.idleTimeout))
		case <-ctx.Done():
			return
		}
	}
}

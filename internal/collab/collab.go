// Package collab holds the narrow interfaces through which external
// collaborators (push delivery, search indexing, bot webhooks) consume the
// real-time core. Which collaborators are live is decided once at startup
// from the configured capability set; the pipeline itself never branches on
// feature flags.
package collab

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/bonfirelabs/bonfire-server/internal/store"
)

// Capabilities is the fixed set of optional collaborators enabled at startup.
type Capabilities struct {
	Push   bool
	Search bool
	Bots   bool
}

// ParseCapabilities maps configured capability names onto the set. Unknown
// names are ignored.
func ParseCapabilities(names []string) Capabilities {
	var caps Capabilities
	for _, name := range names {
		switch name {
		case "push":
			caps.Push = true
		case "search":
			caps.Search = true
		case "bots":
			caps.Bots = true
		}
	}
	return caps
}

// Sink receives persisted messages for out-of-band processing.
type Sink interface {
	MessageCreated(ctx context.Context, msg *store.Message)
}

// logSink stands in for a collaborator transport that is enabled but has no
// endpoint configured. It records the handoff and drops the payload.
type logSink struct {
	name string
	log  *zerolog.Logger
}

// NewLogSink builds a sink that logs each handed-off message.
func NewLogSink(name string, logger *zerolog.Logger) Sink {
	return &logSink{name: name, log: logger}
}

func (s *logSink) MessageCreated(_ context.Context, msg *store.Message) {
	s.log.Debug().
		Str("collaborator", s.name).
		Int64("room_id", msg.RoomID).
		Int64("seq", msg.Seq).
		Msg("message handed off")
}

// Package pubsub mirrors room events across server instances through Redis
// pub/sub, so a room's subscribers see the same stream no matter which
// instance their connection landed on.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bonfirelabs/bonfire-server/internal/core"
)

const channelPattern = "bonfire:room:*"

// localRouter is the slice of the broadcast router the bridge needs.
type localRouter interface {
	PublishLocal(roomID int64, ev *core.Event)
}

// Bridge publishes locally-originated events to Redis and re-injects events
// published by other instances.
type Bridge struct {
	rdb      *redis.Client
	router   localRouter
	instance string
	log      *zerolog.Logger
}

type wireEvent struct {
	Origin string      `json:"origin"`
	RoomID int64       `json:"room_id"`
	Event  *core.Event `json:"event"`
}

// NewBridge connects to Redis at addr.
func NewBridge(ctx context.Context, addr string, router localRouter, logger *zerolog.Logger) (*Bridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Bridge{
		rdb:      rdb,
		router:   router,
		instance: uuid.NewString(),
		log:      logger,
	}, nil
}

// Publish mirrors an event to the room's Redis channel. Implements
// core.RemotePublisher. Errors are logged, not surfaced: remote delivery is
// best-effort and must never stall local fan-out.
func (b *Bridge) Publish(roomID int64, ev *core.Event) {
	payload, err := json.Marshal(wireEvent{Origin: b.instance, RoomID: roomID, Event: ev})
	if err != nil {
		b.log.Error().Err(err).Int64("room_id", roomID).Msg("marshal remote event")
		return
	}
	if err := b.rdb.Publish(context.Background(), channelName(roomID), payload).Err(); err != nil {
		b.log.Warn().Err(err).Int64("room_id", roomID).Msg("publish remote event")
	}
}

// Run subscribes to all room channels and re-injects remote events locally
// until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.rdb.PSubscribe(ctx, channelPattern)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var we wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("unmarshal remote event")
				continue
			}
			if we.Origin == b.instance || we.Event == nil {
				continue
			}
			b.router.PublishLocal(we.RoomID, we.Event)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close releases the Redis connection.
func (b *Bridge) Close() error {
	return b.rdb.Close()
}

func channelName(roomID int64) string {
	return fmt.Sprintf("bonfire:room:%d", roomID)
}

package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bonfirelabs/bonfire-server/internal/store"
)

// MessageSink is notified after a message has been persisted and broadcast.
// Enabled collaborators (push, search indexing, bots) hang off this.
type MessageSink interface {
	MessageCreated(ctx context.Context, msg *store.Message)
}

// Pipeline validates, deduplicates, orders, and persists inbound messages.
// It owns the in-flight dedup index; durable records belong to the store.
type Pipeline struct {
	store    store.MessageStore
	publish  func(roomID int64, ev *Event)
	maxBytes int
	dedupTTL time.Duration
	sinks    []MessageSink
	log      *zerolog.Logger

	group singleflight.Group

	mu     sync.Mutex
	recent map[string]*store.Message
	locks  map[int64]*sync.Mutex
}

// NewPipeline builds a pipeline over the given message store. The publish
// callback is wired by the hub.
func NewPipeline(st store.MessageStore, maxBytes int, dedupTTL time.Duration, logger *zerolog.Logger) *Pipeline {
	if maxBytes <= 0 {
		maxBytes = 4096
	}
	if dedupTTL <= 0 {
		dedupTTL = 5 * time.Minute
	}
	return &Pipeline{
		store:    st,
		maxBytes: maxBytes,
		dedupTTL: dedupTTL,
		recent:   make(map[string]*store.Message),
		locks:    make(map[int64]*sync.Mutex),
		log:      logger,
	}
}

func (p *Pipeline) setPublish(fn func(int64, *Event)) { p.publish = fn }

// AddSink registers a collaborator notified of newly created messages.
func (p *Pipeline) AddSink(sink MessageSink) {
	p.sinks = append(p.sinks, sink)
}

// Submit persists a message exactly once per (roomID, clientMessageID) and
// broadcasts it on success. A duplicate submission, sequential or
// concurrent, returns the already persisted message. Safe to retry after a
// storage failure with the same key.
func (p *Pipeline) Submit(ctx context.Context, roomID, authorID int64, clientMessageID, body string) (*store.Message, error) {
	if clientMessageID == "" {
		return nil, validationError("client_msg_id is required", clientMessageID)
	}
	if strings.TrimSpace(body) == "" {
		return nil, validationError("message body is empty", clientMessageID)
	}
	if len(body) > p.maxBytes {
		return nil, validationError(
			fmt.Sprintf("message body exceeds %d bytes", p.maxBytes), clientMessageID)
	}

	key := dedupKey(roomID, clientMessageID)

	p.mu.Lock()
	if msg, ok := p.recent[key]; ok {
		p.mu.Unlock()
		return msg, nil
	}
	p.mu.Unlock()

	// The submitter's connection may close mid-flight; persistence and
	// broadcast to the remaining subscribers still complete.
	detached := context.WithoutCancel(ctx)

	v, err, _ := p.group.Do(key, func() (any, error) {
		p.mu.Lock()
		if msg, ok := p.recent[key]; ok {
			p.mu.Unlock()
			return msg, nil
		}
		p.mu.Unlock()

		// The room lock spans persistence and broadcast: concurrent
		// submits to the same room publish in commit order, so no
		// subscriber can see seq n+1 before seq n.
		lock := p.roomLock(roomID)
		lock.Lock()
		defer lock.Unlock()

		msg, created, err := p.store.AppendMessage(detached, roomID, authorID, clientMessageID, body)
		if err != nil {
			p.log.Error().Err(err).Int64("room_id", roomID).Msg("message append failed")
			return nil, storageError("message could not be persisted", clientMessageID)
		}

		p.remember(key, msg)

		if created {
			p.publish(roomID, &Event{Kind: EventMessageCreated, RoomID: roomID, UserID: authorID, Message: msg})
			for _, sink := range p.sinks {
				sink.MessageCreated(detached, msg)
			}
		}
		return msg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.Message), nil
}

// remember caches a completed result for the fast-path replay window. The
// durable uniqueness constraint remains the long-term source of truth.
func (p *Pipeline) remember(key string, msg *store.Message) {
	p.mu.Lock()
	p.recent[key] = msg
	p.mu.Unlock()

	time.AfterFunc(p.dedupTTL, func() {
		p.mu.Lock()
		delete(p.recent, key)
		p.mu.Unlock()
	})
}

// roomLock returns the per-room ordering lock, creating it on first use.
func (p *Pipeline) roomLock(roomID int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock := p.locks[roomID]
	if lock == nil {
		lock = &sync.Mutex{}
		p.locks[roomID] = lock
	}
	return lock
}

func dedupKey(roomID int64, clientMessageID string) string {
	return fmt.Sprintf("%d:%s", roomID, clientMessageID)
}

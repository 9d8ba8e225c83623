package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bonfirelabs/bonfire-server/internal/store"
)

// memStore is an in-memory MessageStore with the same contract as the
// SQLite implementation: per-room gap-free seq, unique client message ids.
type memStore struct {
	mu       sync.Mutex
	byRoom   map[int64][]*store.Message
	byKey    map[string]*store.Message
	failures int
	delay    time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		byRoom: make(map[int64][]*store.Message),
		byKey:  make(map[string]*store.Message),
	}
}

func (m *memStore) AppendMessage(_ context.Context, roomID, authorID int64, clientMessageID, body string) (*store.Message, bool, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		return nil, false, errors.New("simulated storage failure")
	}

	key := fmt.Sprintf("%d:%s", roomID, clientMessageID)
	if msg, ok := m.byKey[key]; ok {
		return msg, false, nil
	}

	msg := &store.Message{
		RoomID:          roomID,
		Seq:             int64(len(m.byRoom[roomID]) + 1),
		AuthorID:        authorID,
		Body:            body,
		ClientMessageID: clientMessageID,
		CreatedAt:       time.Now(),
	}
	m.byRoom[roomID] = append(m.byRoom[roomID], msg)
	m.byKey[key] = msg
	return msg, true, nil
}

func (m *memStore) ListMessagesSince(_ context.Context, roomID, afterSeq int64, limit int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*store.Message
	for _, msg := range m.byRoom[roomID] {
		if msg.Seq > afterSeq {
			out = append(out, msg)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) count(roomID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byRoom[roomID])
}

// allowAll admits every user into every room.
type allowAll struct{}

func (allowAll) CanAccess(context.Context, int64, int64) (bool, error) { return true, nil }

// denyAll rejects every access check.
type denyAll struct{}

func (denyAll) CanAccess(context.Context, int64, int64) (bool, error) { return false, nil }

func newTestHub(st store.MessageStore, authz Authorizer) *Hub {
	logger := zerolog.Nop()
	return NewHub(st, authz, Options{
		OutboxSize:      16,
		MaxMessageBytes: 512,
		DedupTTL:        time.Minute,
		TypingTTL:       time.Minute,
		SweepInterval:   10 * time.Millisecond,
		IdleTimeout:     time.Minute,
	}, &logger)
}

func mustEvent(t *testing.T, conn *Conn, kind EventKind) *Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		ev, ok := conn.Next(ctx)
		if !ok {
			t.Fatalf("expected event kind %v, connection queue drained", kind)
		}
		if ev.Kind == kind {
			return ev
		}
	}
}

func mustNoEvent(t *testing.T, conn *Conn, kind EventKind, wait time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	for {
		ev, ok := conn.Next(ctx)
		if !ok {
			return
		}
		if ev.Kind == kind {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
}

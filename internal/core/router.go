package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// RemotePublisher mirrors locally-originated events to other instances.
type RemotePublisher interface {
	Publish(roomID int64, ev *Event)
}

// Router fans an event out to every connection currently subscribed to the
// target room. Fan-out is serialized per room, so every subscriber observes
// a room's events in the same relative order.
type Router struct {
	reg    *Registry
	remote RemotePublisher
	log    *zerolog.Logger

	mu        sync.Mutex
	roomLocks map[int64]*sync.Mutex
}

// NewRouter builds a router over the registry.
func NewRouter(reg *Registry, logger *zerolog.Logger) *Router {
	return &Router{
		reg:       reg,
		log:       logger,
		roomLocks: make(map[int64]*sync.Mutex),
	}
}

// SetRemote attaches a cross-instance mirror. Must be called before the
// server starts accepting connections.
func (r *Router) SetRemote(remote RemotePublisher) {
	r.remote = remote
}

// Publish delivers the event to all local subscribers and mirrors it to the
// remote bridge when one is attached. It never blocks on a slow reader: a
// connection that cannot admit a critical event is torn down asynchronously.
func (r *Router) Publish(roomID int64, ev *Event) {
	r.PublishLocal(roomID, ev)
	if r.remote != nil {
		r.remote.Publish(roomID, ev)
	}
}

// PublishLocal delivers the event to local subscribers only. The bridge uses
// this to re-inject events received from other instances. The room lock makes
// each fan-out atomic: concurrent publishes to the same room cannot interleave
// across recipients.
func (r *Router) PublishLocal(roomID int64, ev *Event) {
	lock := r.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	for _, conn := range r.reg.Snapshot(roomID) {
		if !conn.Send(ev) {
			r.log.Warn().
				Str("conn_id", conn.ID).
				Int64("room_id", roomID).
				Msg("outbound queue saturated, tearing down connection")
			go r.reg.Close(conn)
		}
	}
}

// roomLock returns the per-room fan-out lock, creating it on first use.
func (r *Router) roomLock(roomID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock := r.roomLocks[roomID]
	if lock == nil {
		lock = &sync.Mutex{}
		r.roomLocks[roomID] = lock
	}
	return lock
}

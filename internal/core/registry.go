package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Authorizer answers whether a user may access a room. It is an external
// collaborator; the core never mutates membership.
type Authorizer interface {
	CanAccess(ctx context.Context, userID, roomID int64) (bool, error)
}

// presenceNotifier is the slice of the Presence Tracker the registry needs
// on connection teardown.
type presenceNotifier interface {
	ConnectionClosed(userID int64, roomIDs []int64)
}

// Registry admits, tracks, and retires live connections and maintains the
// authoritative room-to-connections index. It exclusively owns Conn records.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[int64]map[string]*Conn

	authz      Authorizer
	presence   presenceNotifier
	publish    func(roomID int64, ev *Event)
	outboxSize int
	log        *zerolog.Logger
}

// NewRegistry builds a registry. The publish callback and presence notifier
// are wired by the hub after construction.
func NewRegistry(authz Authorizer, outboxSize int, logger *zerolog.Logger) *Registry {
	return &Registry{
		conns:      make(map[string]*Conn),
		rooms:      make(map[int64]map[string]*Conn),
		authz:      authz,
		outboxSize: outboxSize,
		log:        logger,
	}
}

func (r *Registry) setPresence(p presenceNotifier)    { r.presence = p }
func (r *Registry) setPublish(fn func(int64, *Event)) { r.publish = fn }

// Register creates a connection in open state with an empty subscription set.
// Identity verification happens in transport before this call.
func (r *Registry) Register(userID int64, username string) *Conn {
	conn := newConn(uuid.NewString(), userID, username, r.outboxSize)

	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()

	r.log.Debug().Str("conn_id", conn.ID).Int64("user_id", userID).Msg("connection registered")
	return conn
}

// Subscribe adds the room to the connection's subscription set after the
// authorizer admits the user. Subscribing twice is a no-op. member_joined is
// broadcast only for the user's first live connection in the room, mirroring
// how member_left is suppressed while another device stays connected.
func (r *Registry) Subscribe(ctx context.Context, conn *Conn, roomID int64) error {
	ok, err := r.authz.CanAccess(ctx, conn.UserID, roomID)
	if err != nil {
		return storageError("authorization check failed", "")
	}
	if !ok {
		return forbiddenError("room access denied")
	}

	r.mu.Lock()
	if conn.State() != StateOpen {
		r.mu.Unlock()
		return ErrConnClosed
	}
	if _, already := conn.rooms[roomID]; already {
		r.mu.Unlock()
		return nil
	}
	firstForUser := !r.userInRoomLocked(roomID, conn.UserID)
	conn.rooms[roomID] = struct{}{}
	idx := r.rooms[roomID]
	if idx == nil {
		idx = make(map[string]*Conn)
		r.rooms[roomID] = idx
	}
	idx[conn.ID] = conn
	r.mu.Unlock()

	if firstForUser {
		r.publish(roomID, &Event{Kind: EventMemberJoined, RoomID: roomID, UserID: conn.UserID})
	}
	return nil
}

// Unsubscribe removes the room from the connection's subscription set.
// Safe to call for rooms the connection never joined. member_left is
// broadcast only when this was the user's last live connection in the room.
func (r *Registry) Unsubscribe(conn *Conn, roomID int64) {
	r.mu.Lock()
	_, subscribed := conn.rooms[roomID]
	lastForUser := false
	if subscribed {
		delete(conn.rooms, roomID)
		r.dropFromIndex(roomID, conn.ID)
		lastForUser = !r.userInRoomLocked(roomID, conn.UserID)
	}
	r.mu.Unlock()

	if subscribed && lastForUser {
		r.publish(roomID, &Event{Kind: EventMemberLeft, RoomID: roomID, UserID: conn.UserID})
	}
}

// Close retires a connection: removes it from every room index, releases its
// outbound queue, and signals presence-left for each subscribed room.
// Idempotent and safe to call concurrently with in-flight submits.
func (r *Registry) Close(conn *Conn) {
	if !conn.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return
	}

	r.mu.Lock()
	if _, tracked := r.conns[conn.ID]; !tracked {
		r.mu.Unlock()
		conn.state.Store(int32(StateClosed))
		return
	}
	delete(r.conns, conn.ID)
	roomIDs := make([]int64, 0, len(conn.rooms))
	for roomID := range conn.rooms {
		roomIDs = append(roomIDs, roomID)
		r.dropFromIndex(roomID, conn.ID)
	}
	conn.rooms = make(map[int64]struct{})
	r.mu.Unlock()

	conn.out.close()
	conn.state.Store(int32(StateClosed))

	if r.presence != nil {
		r.presence.ConnectionClosed(conn.UserID, roomIDs)
	}
	for _, roomID := range roomIDs {
		if !r.UserPresent(roomID, conn.UserID) {
			r.publish(roomID, &Event{Kind: EventMemberLeft, RoomID: roomID, UserID: conn.UserID})
		}
	}

	r.log.Debug().Str("conn_id", conn.ID).Int64("user_id", conn.UserID).Msg("connection closed")
}

// Snapshot returns a copy of the current subscriber list for a room. The
// lock is released before any delivery happens.
func (r *Registry) Snapshot(roomID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.rooms[roomID]
	if len(idx) == 0 {
		return nil
	}
	conns := make([]*Conn, 0, len(idx))
	for _, c := range idx {
		conns = append(conns, c)
	}
	return conns
}

// IsSubscribed reports whether the connection currently subscribes to the room.
func (r *Registry) IsSubscribed(conn *Conn, roomID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := conn.rooms[roomID]
	return ok
}

// UserPresent reports whether the user has at least one live connection
// subscribed to the room.
func (r *Registry) UserPresent(roomID, userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.userInRoomLocked(roomID, userID)
}

// userInRoomLocked scans the room index for a connection owned by the user.
// Caller holds r.mu.
func (r *Registry) userInRoomLocked(roomID, userID int64) bool {
	for _, c := range r.rooms[roomID] {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseIdle closes every connection with no inbound activity since cutoff.
func (r *Registry) CloseIdle(cutoff time.Time) {
	r.mu.RLock()
	var idle []*Conn
	for _, c := range r.conns {
		if c.LastActive().Before(cutoff) {
			idle = append(idle, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range idle {
		r.log.Info().Str("conn_id", c.ID).Msg("closing idle connection")
		r.Close(c)
	}
}

// dropFromIndex removes a connection handle from a room's reverse index.
// Caller holds r.mu.
func (r *Registry) dropFromIndex(roomID int64, connID string) {
	idx := r.rooms[roomID]
	if idx == nil {
		return
	}
	delete(idx, connID)
	if len(idx) == 0 {
		delete(r.rooms, roomID)
	}
}

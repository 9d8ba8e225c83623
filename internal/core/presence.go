package core

import (
	"sync"
	"time"
)

type presenceKey struct {
	roomID int64
	userID int64
}

type presenceEntry struct {
	typing     bool
	lastSeenAt time.Time
	expiresAt  time.Time
}

// userLocator answers whether a user still has a live connection in a room.
type userLocator interface {
	UserPresent(roomID, userID int64) bool
}

// Tracker holds per-room, per-user ephemeral presence state with automatic
// expiry and emits change events through the router.
type Tracker struct {
	mu      sync.Mutex
	entries map[presenceKey]*presenceEntry

	ttl     time.Duration
	locator userLocator
	publish func(roomID int64, ev *Event)
	now     func() time.Time
}

// NewTracker builds a presence tracker. The publish callback and locator are
// wired by the hub.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 6 * time.Second
	}
	return &Tracker{
		entries: make(map[presenceKey]*presenceEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (t *Tracker) setPublish(fn func(int64, *Event)) { t.publish = fn }
func (t *Tracker) setLocator(l userLocator)          { t.locator = l }

// SetTyping updates the typing flag and refreshes expiry. A presence event
// is published only on a state transition, so repeated client pings do not
// turn into broadcast storms.
func (t *Tracker) SetTyping(roomID, userID int64, typing bool) {
	now := t.now()
	key := presenceKey{roomID: roomID, userID: userID}

	t.mu.Lock()
	e := t.entries[key]
	transition := false
	switch {
	case typing:
		if e == nil {
			e = &presenceEntry{lastSeenAt: now}
			t.entries[key] = e
		}
		transition = !e.typing
		e.typing = true
		e.lastSeenAt = now
		e.expiresAt = now.Add(t.ttl)
	case e != nil && e.typing:
		transition = true
		e.typing = false
		e.lastSeenAt = now
		e.expiresAt = now.Add(t.ttl)
	}
	t.mu.Unlock()

	if transition {
		t.publish(roomID, &Event{Kind: EventPresenceChanged, RoomID: roomID, UserID: userID, Typing: typing})
	}
}

// TouchLastSeen refreshes the last-seen timestamp without broadcasting.
// Read-receipt and unread-count logic consume it externally.
func (t *Tracker) TouchLastSeen(roomID, userID int64) {
	now := t.now()
	key := presenceKey{roomID: roomID, userID: userID}

	t.mu.Lock()
	e := t.entries[key]
	if e == nil {
		e = &presenceEntry{}
		t.entries[key] = e
	}
	e.lastSeenAt = now
	e.expiresAt = now.Add(t.ttl)
	t.mu.Unlock()
}

// LastSeen returns the recorded last-seen time for a (room, user) pair.
func (t *Tracker) LastSeen(roomID, userID int64) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[presenceKey{roomID: roomID, userID: userID}]
	if e == nil {
		return time.Time{}, false
	}
	return e.lastSeenAt, true
}

// ConnectionClosed clears typing state left behind by a closed connection,
// unless the user still has another live connection in the room.
func (t *Tracker) ConnectionClosed(userID int64, roomIDs []int64) {
	for _, roomID := range roomIDs {
		if t.locator != nil && t.locator.UserPresent(roomID, userID) {
			continue
		}

		key := presenceKey{roomID: roomID, userID: userID}
		t.mu.Lock()
		e := t.entries[key]
		wasTyping := e != nil && e.typing
		delete(t.entries, key)
		t.mu.Unlock()

		if wasTyping {
			t.publish(roomID, &Event{Kind: EventPresenceChanged, RoomID: roomID, UserID: userID, Typing: false})
		}
	}
}

// Sweep clears entries whose expiry has elapsed, emitting a synthetic
// typing=false for any entry that was still typing. Prevents stuck
// "is typing" indicators after an ungraceful disconnect.
func (t *Tracker) Sweep(now time.Time) {
	var stuck []presenceKey

	t.mu.Lock()
	for key, e := range t.entries {
		if e.expiresAt.After(now) {
			continue
		}
		if e.typing {
			stuck = append(stuck, key)
		}
		delete(t.entries, key)
	}
	t.mu.Unlock()

	for _, key := range stuck {
		t.publish(key.roomID, &Event{Kind: EventPresenceChanged, RoomID: key.roomID, UserID: key.userID, Typing: false})
	}
}

// Len returns the number of live presence entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

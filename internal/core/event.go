package core

import "github.com/bonfirelabs/bonfire-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessageCreated notifies room subscribers about a persisted message.
	EventMessageCreated EventKind = iota
	// EventPresenceChanged notifies room subscribers about a typing transition.
	EventPresenceChanged
	// EventMemberJoined notifies room subscribers that a user subscribed.
	EventMemberJoined
	// EventMemberLeft notifies room subscribers that a user unsubscribed.
	EventMemberLeft
	// EventError carries a domain error to a single connection.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind      `json:"kind"`
	RoomID  int64          `json:"room_id"`
	UserID  int64          `json:"user_id,omitempty"`
	Typing  bool           `json:"typing,omitempty"`
	Message *store.Message `json:"message,omitempty"`
	Error   *Error         `json:"-"`
}

// Critical reports whether the event must not be dropped for a slow consumer.
// Presence churn is disposable; messages, membership changes, and errors are not.
func (e *Event) Critical() bool {
	return e.Kind != EventPresenceChanged
}

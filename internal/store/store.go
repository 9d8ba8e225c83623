package store

import (
	"context"
	"errors"
	"time"
)

// ErrRoomNotFound is returned when a room id does not exist.
var ErrRoomNotFound = errors.New("room not found")

// RoomType defines different types of rooms.
type RoomType string

const (
	RoomTypeGroup  RoomType = "group"
	RoomTypeDirect RoomType = "direct"
)

// Room represents a chat room. Membership is mutated through RoomStore only;
// the real-time core treats rooms as read-only.
type Room struct {
	ID        int64
	Name      string
	Type      RoomType
	CreatedAt time.Time
}

// Message represents a persisted chat message. Seq is assigned by the store
// and is strictly increasing within a room. ClientMessageID is the client
// idempotency token; (RoomID, ClientMessageID) is unique.
type Message struct {
	RoomID          int64
	Seq             int64
	AuthorID        int64
	Body            string
	ClientMessageID string
	CreatedAt       time.Time
}

// RoomStore handles room and membership persistence.
type RoomStore interface {
	// CreateRoom creates a new room.
	CreateRoom(ctx context.Context, name string, roomType RoomType) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// ListRooms lists rooms the user is a member of.
	ListRooms(ctx context.Context, userID int64) ([]*Room, error)

	// AddMember adds a user to a room. Idempotent.
	AddMember(ctx context.Context, userID, roomID int64) error

	// RemoveMember removes a user from a room.
	RemoveMember(ctx context.Context, userID, roomID int64) error

	// IsMember checks if user is a member of the room.
	IsMember(ctx context.Context, userID, roomID int64) (bool, error)

	// ListMembers lists all member user ids of a room.
	ListMembers(ctx context.Context, roomID int64) ([]int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message, assigning the next per-room seq.
	// If a message with the same (RoomID, ClientMessageID) already exists,
	// the stored message is returned with created=false and no new row is
	// written. Append calls for the same room are serialized; seq values
	// form a gap-free increasing run.
	AppendMessage(ctx context.Context, roomID, authorID int64, clientMessageID, body string) (msg *Message, created bool, err error)

	// ListMessagesSince returns up to limit messages in a room with
	// seq > afterSeq, in ascending seq order.
	ListMessagesSince(ctx context.Context, roomID, afterSeq int64, limit int) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

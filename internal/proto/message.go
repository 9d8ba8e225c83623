package proto

import "encoding/json"

// Inbound is the envelope for frames coming from the client, one event per
// frame.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeMsg         = "msg"
	InboundTypeJoin        = "join"
	InboundTypeLeave       = "leave"
	InboundTypeTypingStart = "typing_start"
	InboundTypeTypingStop  = "typing_stop"
	InboundTypeLastSeen    = "last_seen"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNameMessage      = "message"
	EventNamePresence     = "presence"
	EventNameMemberJoined = "member_joined"
	EventNameMemberLeft   = "member_left"
)

// MsgData is a chat message submission from the client. ClientMsgID is the
// client-generated idempotency token.
type MsgData struct {
	RoomID      int64  `json:"room_id"`
	ClientMsgID string `json:"client_msg_id"`
	Body        string `json:"body"`
}

// RoomData addresses a single room (join, leave, typing, last_seen).
type RoomData struct {
	RoomID int64 `json:"room_id"`
}

// Outbound is the envelope for frames sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage notifies subscribers about a persisted message. Seq is the
// server-assigned per-room sequence id.
type EventMessage struct {
	RoomID      int64  `json:"room_id"`
	Seq         int64  `json:"seq"`
	UserID      int64  `json:"user_id"`
	ClientMsgID string `json:"client_msg_id"`
	Body        string `json:"body"`
	TS          int64  `json:"ts"`
}

// EventPresence notifies subscribers about a typing transition.
type EventPresence struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
	Typing bool  `json:"typing"`
}

// EventMember notifies subscribers that a user joined or left a room.
type EventMember struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}

// Error describes a protocol-level error response. ClientMsgID is set when a
// specific message submission was rejected.
type Error struct {
	Code        string `json:"code"`
	Msg         string `json:"msg"`
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

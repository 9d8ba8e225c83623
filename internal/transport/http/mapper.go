package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bonfirelabs/bonfire-server/internal/core"
	"github.com/bonfirelabs/bonfire-server/internal/proto"
)

// dispatch routes one inbound frame to the right core component. Domain
// errors are pushed onto the client's outbound queue; a non-nil return means
// the frame was unreadable and the connection should be torn down.
func (h *WSHandler) dispatch(ctx context.Context, client *core.Conn, inbound proto.Inbound) error {
	switch inbound.Type {
	case proto.InboundTypeMsg:
		var data proto.MsgData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return fmt.Errorf("decode msg frame: %w", err)
		}
		if data.RoomID == 0 {
			client.Send(errorEvent(&core.Error{Code: core.ErrCodeBadRequest, Message: "room_id is required", ClientMessageID: data.ClientMsgID}))
			return nil
		}
		if !h.hub.Registry.IsSubscribed(client, data.RoomID) {
			client.Send(errorEvent(&core.Error{Code: core.ErrCodeForbidden, Message: "not subscribed to room", ClientMessageID: data.ClientMsgID}))
			return nil
		}
		if _, err := h.hub.Pipeline.Submit(ctx, data.RoomID, client.UserID, data.ClientMsgID, data.Body); err != nil {
			client.Send(errorEvent(asCoreError(err, data.ClientMsgID)))
		}
		return nil

	case proto.InboundTypeJoin:
		roomID, err := roomIDFrom(inbound.Data)
		if err != nil {
			return err
		}
		if roomID == 0 {
			client.Send(errorEvent(&core.Error{Code: core.ErrCodeBadRequest, Message: "room_id is required"}))
			return nil
		}
		if err := h.hub.Registry.Subscribe(ctx, client, roomID); err != nil {
			client.Send(errorEvent(asCoreError(err, "")))
		}
		return nil

	case proto.InboundTypeLeave:
		roomID, err := roomIDFrom(inbound.Data)
		if err != nil {
			return err
		}
		h.hub.Registry.Unsubscribe(client, roomID)
		return nil

	case proto.InboundTypeTypingStart, proto.InboundTypeTypingStop:
		roomID, err := roomIDFrom(inbound.Data)
		if err != nil {
			return err
		}
		if !h.hub.Registry.IsSubscribed(client, roomID) {
			client.Send(errorEvent(&core.Error{Code: core.ErrCodeForbidden, Message: "not subscribed to room"}))
			return nil
		}
		h.hub.Presence.SetTyping(roomID, client.UserID, inbound.Type == proto.InboundTypeTypingStart)
		return nil

	case proto.InboundTypeLastSeen:
		roomID, err := roomIDFrom(inbound.Data)
		if err != nil {
			return err
		}
		if h.hub.Registry.IsSubscribed(client, roomID) {
			h.hub.Presence.TouchLastSeen(roomID, client.UserID)
		}
		return nil

	default:
		client.Send(errorEvent(&core.Error{Code: core.ErrCodeBadRequest, Message: "unknown frame type"}))
		return nil
	}
}

func roomIDFrom(data json.RawMessage) (int64, error) {
	var rd proto.RoomData
	if err := json.Unmarshal(data, &rd); err != nil {
		return 0, fmt.Errorf("decode room frame: %w", err)
	}
	return rd.RoomID, nil
}

func errorEvent(e *core.Error) *core.Event {
	return &core.Event{Kind: core.EventError, Error: e}
}

func asCoreError(err error, clientMsgID string) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return &core.Error{Code: core.ErrCodeBadRequest, Message: err.Error(), ClientMessageID: clientMsgID}
}

// outboundFromEvent converts a core event into its wire representation.
func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventMessageCreated:
		msg := event.Message
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMessage,
			Data: proto.EventMessage{
				RoomID:      msg.RoomID,
				Seq:         msg.Seq,
				UserID:      msg.AuthorID,
				ClientMsgID: msg.ClientMessageID,
				Body:        msg.Body,
				TS:          msg.CreatedAt.Unix(),
			},
		}
	case core.EventPresenceChanged:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNamePresence,
			Data: proto.EventPresence{
				RoomID: event.RoomID,
				UserID: event.UserID,
				Typing: event.Typing,
			},
		}
	case core.EventMemberJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMemberJoined,
			Data:  proto.EventMember{RoomID: event.RoomID, UserID: event.UserID},
		}
	case core.EventMemberLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNameMemberLeft,
			Data:  proto.EventMember{RoomID: event.RoomID, UserID: event.UserID},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type: proto.OutboundTypeError,
			Error: &proto.Error{
				Code:        event.Error.Code,
				Msg:         event.Error.Message,
				ClientMsgID: event.Error.ClientMessageID,
			},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

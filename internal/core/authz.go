package core

import (
	"context"

	"github.com/bonfirelabs/bonfire-server/internal/store"
)

// membershipAuthorizer grants room access to room members.
type membershipAuthorizer struct {
	rooms store.RoomStore
}

// NewMembershipAuthorizer builds an Authorizer backed by durable membership.
func NewMembershipAuthorizer(rooms store.RoomStore) Authorizer {
	return &membershipAuthorizer{rooms: rooms}
}

func (a *membershipAuthorizer) CanAccess(ctx context.Context, userID, roomID int64) (bool, error) {
	return a.rooms.IsMember(ctx, userID, roomID)
}

package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonfirelabs/bonfire-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRoomMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "general", store.RoomTypeGroup)
	require.NoError(t, err)
	require.NotZero(t, room.ID)

	require.NoError(t, s.AddMember(ctx, 1, room.ID))
	require.NoError(t, s.AddMember(ctx, 2, room.ID))
	// Adding twice is a no-op.
	require.NoError(t, s.AddMember(ctx, 1, room.ID))

	members, err := s.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, members)

	ok, err := s.IsMember(ctx, 1, room.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsMember(ctx, 99, room.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RemoveMember(ctx, 1, room.ID))
	ok, err = s.IsMember(ctx, 1, room.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	rooms, err := s.ListRooms(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "general", rooms[0].Name)

	_, err = s.GetRoomByID(ctx, 12345)
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestAppendAssignsPerRoomSeq(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1, err := s.CreateRoom(ctx, "one", store.RoomTypeGroup)
	require.NoError(t, err)
	r2, err := s.CreateRoom(ctx, "two", store.RoomTypeGroup)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		msg, created, err := s.AppendMessage(ctx, r1.ID, 7, fmt.Sprintf("a%d", i), "hello")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(i), msg.Seq)
	}

	// Seq is scoped per room.
	msg, created, err := s.AppendMessage(ctx, r2.ID, 7, "b1", "hello")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), msg.Seq)
}

func TestAppendDeduplicatesByClientID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "general", store.RoomTypeGroup)
	require.NoError(t, err)

	first, created, err := s.AppendMessage(ctx, room.ID, 7, "c1", "hello")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.AppendMessage(ctx, room.ID, 7, "c1", "hello again")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Seq, second.Seq)
	assert.Equal(t, "hello", second.Body, "duplicate must return the original body")

	msgs, err := s.ListMessagesSince(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// Same client id in a different room is a distinct message.
	other, err := s.CreateRoom(ctx, "other", store.RoomTypeGroup)
	require.NoError(t, err)
	_, created, err = s.AppendMessage(ctx, other.ID, 7, "c1", "hello")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestConcurrentAppendsAreGapFree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "general", store.RoomTypeGroup)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := s.AppendMessage(ctx, room.ID, 7, fmt.Sprintf("c%d", i), "hello")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := s.ListMessagesSince(ctx, room.ID, 0, n)
	require.NoError(t, err)
	require.Len(t, msgs, n)
	for i, m := range msgs {
		assert.Equal(t, int64(i+1), m.Seq, "seq run must be strictly increasing with no gaps")
	}
}

func TestListMessagesSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, "general", store.RoomTypeGroup)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, _, err := s.AppendMessage(ctx, room.ID, 7, fmt.Sprintf("c%d", i), fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	msgs, err := s.ListMessagesSince(ctx, room.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[0].Seq)
	assert.Equal(t, int64(4), msgs[1].Seq)

	msgs, err = s.ListMessagesSince(ctx, room.ID, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

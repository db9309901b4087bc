package gormstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/store"
)

// setupTestStore opens a migrated SQLite database in a temp directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_CreateAndFindUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "ada@example.com", "ada", "hash")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	found, err := s.FindUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "ada", found.Username)
	assert.Equal(t, "hash", found.PasswordHash)
}

func TestStore_CreateUser_Duplicate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "dup@example.com", "one", "hash")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "dup@example.com", "two", "hash")
	assert.ErrorIs(t, err, store.ErrUserExists)
}

func TestStore_FindUserByEmail_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.FindUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ListRooms_Ordered(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	for _, name := range []string{"general", "random", "dev"} {
		_, err := s.CreateRoom(ctx, name)
		require.NoError(t, err)
	}

	rooms, err = s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, "general", rooms[0].Name)
	assert.Equal(t, "dev", rooms[2].Name)
	assert.Less(t, rooms[0].ID, rooms[1].ID)
}

func TestStore_InsertMessage(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "sender@example.com", "sender", "hash")
	require.NoError(t, err)
	room, err := s.CreateRoom(ctx, "general")
	require.NoError(t, err)

	first, err := s.InsertMessage(ctx, store.NewMessage{SenderID: user.ID, RoomID: room.ID, Content: "hello"})
	require.NoError(t, err)
	second, err := s.InsertMessage(ctx, store.NewMessage{SenderID: user.ID, RoomID: room.ID, Content: "again"})
	require.NoError(t, err)

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, "hello", first.Content)
	assert.Equal(t, room.ID, first.RoomID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestStore_InsertMessage_UnknownRoom(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "sender@example.com", "sender", "hash")
	require.NoError(t, err)

	_, err = s.InsertMessage(ctx, store.NewMessage{SenderID: user.ID, RoomID: 999, Content: "lost"})
	assert.ErrorIs(t, err, store.ErrRoomNotFound)
}

func TestStore_MemoryDatabase(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))

	_, err = s.CreateRoom(ctx, "memory")
	require.NoError(t, err)

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

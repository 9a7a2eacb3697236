package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zaiknown/chat-project/internal/domain"
)

func TestMemStoreMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	first, err := s.CreateMessage(ctx, "alice", "general", "first", "")
	require.NoError(t, err)
	reply, err := s.CreateMessage(ctx, "bob", "general", "reply", first.ID)
	require.NoError(t, err)

	t.Run("parent is resolved to a summary", func(t *testing.T) {
		require.NotNil(t, reply.Parent)
		assert.Equal(t, "alice", reply.Parent.Author)
		assert.Equal(t, "first", reply.Parent.Content)
	})

	t.Run("vanished parent reference is dropped", func(t *testing.T) {
		orphan, err := s.CreateMessage(ctx, "bob", "general", "orphan", "no-such-id")
		require.NoError(t, err)
		assert.Empty(t, orphan.ParentID)
		assert.Nil(t, orphan.Parent)
	})

	t.Run("query is chronological and respects hides", func(t *testing.T) {
		require.NoError(t, s.HideMessage(ctx, first.ID, "carol"))

		all, err := s.QueryMessages(ctx, "general", "", 50)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(all), 2)
		assert.Equal(t, first.ID, all[0].ID)

		filtered, err := s.QueryMessages(ctx, "general", "carol", 50)
		require.NoError(t, err)
		for _, m := range filtered {
			assert.NotEqual(t, first.ID, m.ID)
		}
	})

	t.Run("hide whole room for one viewer", func(t *testing.T) {
		require.NoError(t, s.HideRoomMessages(ctx, "general", "bob"))
		filtered, err := s.QueryMessages(ctx, "general", "bob", 50)
		require.NoError(t, err)
		assert.Empty(t, filtered)

		visible, err := s.QueryMessages(ctx, "general", "alice", 50)
		require.NoError(t, err)
		assert.NotEmpty(t, visible, "other viewers unaffected")
	})

	t.Run("mark deleted for everyone", func(t *testing.T) {
		require.NoError(t, s.MarkDeletedForEveryone(ctx, reply.ID, "alice"))
		got, err := s.GetMessage(ctx, reply.ID)
		require.NoError(t, err)
		assert.True(t, got.DeletedForEveryone)
		assert.Equal(t, "alice", got.DeletedByAdmin)

		assert.ErrorIs(t, s.MarkDeletedForEveryone(ctx, "missing", ""), ErrNotFound)
	})
}

func TestMemStoreRoomCascade(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	room := &domain.Room{Slug: "doomed", Name: "Doomed", Creator: "alice", UserLimit: 10, CreatedAt: time.Now()}
	require.NoError(t, s.CreateRoom(ctx, room))
	require.NoError(t, s.CreateBan(ctx, "doomed", "bob"))
	_, err := s.ToggleMute(ctx, "doomed", "carol")
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, "alice", "Doomed", "bye", "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteRoom(ctx, "doomed"))

	_, err = s.GetRoom(ctx, "doomed")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	banned, err := s.IsBanned(ctx, "doomed", "bob")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestMemStoreUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.CreateUser(ctx, "alice", "hash"))
	assert.ErrorIs(t, s.CreateUser(ctx, "alice", "hash"), ErrUserExists)

	hash, err := s.Credentials(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash", hash)

	now := time.Now()
	require.NoError(t, s.SetLastSeen(ctx, "alice", now))
	profile, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, profile.Online(now))
	assert.Equal(t, domain.DefaultAvatarURL, profile.Avatar())

	require.NoError(t, s.SetAvatar(ctx, "alice", "/static/avatars/alice.png"))
	profile, err = s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "/static/avatars/alice.png", profile.Avatar())

	_, err = s.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

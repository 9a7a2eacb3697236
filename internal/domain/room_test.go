package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectSlug(t *testing.T) {
	t.Run("deterministic regardless of initiator", func(t *testing.T) {
		assert.Equal(t, DirectSlug("alice", "bob"), DirectSlug("bob", "alice"))
		assert.Equal(t, "dm-alice-bob", DirectSlug("bob", "alice"))
	})

	t.Run("participants round-trip", func(t *testing.T) {
		a, b, ok := DirectParticipants("dm-alice-bob")
		assert.True(t, ok)
		assert.Equal(t, "alice", a)
		assert.Equal(t, "bob", b)
	})

	t.Run("non-direct slugs do not parse", func(t *testing.T) {
		_, _, ok := DirectParticipants("general")
		assert.False(t, ok)
		assert.False(t, IsDirectSlug("general"))
	})

	t.Run("third identity is never a participant", func(t *testing.T) {
		slug := DirectSlug("alice", "bob")
		assert.True(t, IsDirectParticipant(slug, "alice"))
		assert.True(t, IsDirectParticipant(slug, "bob"))
		assert.False(t, IsDirectParticipant(slug, "carol"))
	})

	t.Run("malformed direct slugs have no participants", func(t *testing.T) {
		assert.False(t, IsDirectParticipant("dm-", "alice"))
		assert.False(t, IsDirectParticipant("dm-alice", "alice"))
		assert.False(t, IsDirectParticipant("dm-alice-bob-carol", "alice"))
	})
}

func TestRoomAdmins(t *testing.T) {
	room := &Room{Slug: "general", Creator: "alice", Admins: []string{"bob"}}

	assert.True(t, room.IsAdminOrCreator("alice"), "creator is implicitly admin")
	assert.True(t, room.IsAdminOrCreator("bob"))
	assert.False(t, room.IsAdminOrCreator("carol"))

	var nilRoom *Room
	assert.False(t, nilRoom.IsAdminOrCreator("alice"), "direct rooms have no admin concept")
}

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("alice_01"))
	assert.ErrorIs(t, ValidateUsername(""), ErrUsernameEmpty)
	assert.ErrorIs(t, ValidateUsername("has-hyphen"), ErrUsernameInvalid)
	long := make([]byte, MaxUsernameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.ErrorIs(t, ValidateUsername(string(long)), ErrUsernameTooLong)
}

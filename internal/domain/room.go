package domain

import (
	"sort"
	"strings"
	"time"
)

const (
	MaxRoomNameLen   = 100
	DefaultUserLimit = 10

	// directPrefix marks the ephemeral two-party rooms. They are never
	// persisted; the slug alone identifies the conversation.
	directPrefix = "dm-"

	// groupPrefix namespaces broadcast groups so a room slug can never
	// collide with another key space.
	groupPrefix = "chat_"
)

// Room is a persisted broadcast group with moderation metadata.
// The slug is unique and immutable; the name is a mutable display label.
type Room struct {
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Creator   string    `json:"creator"`
	Password  string    `json:"-"`
	UserLimit int       `json:"user_limit"`
	Muted     bool      `json:"is_muted"`
	Admins    []string  `json:"admins"`
	CreatedAt time.Time `json:"created_at"`
}

// HasAdmin reports membership in the mutable admin set. The creator is
// implicitly an admin and is checked separately.
func (r *Room) HasAdmin(username string) bool {
	for _, a := range r.Admins {
		if a == username {
			return true
		}
	}
	return false
}

func (r *Room) IsAdminOrCreator(username string) bool {
	if r == nil {
		return false
	}
	return r.Creator == username || r.HasAdmin(username)
}

// RoomGroup is the broadcast-group address for a room slug,
// shared between persisted and direct rooms.
func RoomGroup(slug string) string {
	return groupPrefix + slug
}

// DirectSlug builds the deterministic two-party slug: both participants
// resolve to the same address regardless of who initiates.
func DirectSlug(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return directPrefix + pair[0] + "-" + pair[1]
}

func IsDirectSlug(slug string) bool {
	return strings.HasPrefix(slug, directPrefix)
}

// DirectParticipants parses a direct slug back into its two usernames.
func DirectParticipants(slug string) (a, b string, ok bool) {
	rest, found := strings.CutPrefix(slug, directPrefix)
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// IsDirectParticipant reports whether username is one of the two parties
// of a direct slug. Anyone else is never authorized to join it.
func IsDirectParticipant(slug, username string) bool {
	a, b, ok := DirectParticipants(slug)
	return ok && (a == username || b == username)
}

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/Zaiknown/chat-project/internal/core"
	"github.com/Zaiknown/chat-project/internal/domain"
	"github.com/Zaiknown/chat-project/internal/storage"
)

// RosterEntry is one user-list row as broadcast to clients.
type RosterEntry struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	IsOnline  bool   `json:"is_online"`
	LastSeen  string `json:"last_seen"`
	IsCreator bool   `json:"is_creator"`
	IsAdmin   bool   `json:"is_admin"`
	IsMuted   bool   `json:"is_muted"`
}

// Roster builds the user list for a room: everyone currently connected,
// unioned with everyone who ever wrote a message there, so known but
// offline participants still show with last-seen info.
type Roster struct {
	store    storage.Store
	presence *core.Presence
}

func NewRoster(store storage.Store, presence *core.Presence) *Roster {
	return &Roster{store: store, presence: presence}
}

// Build assembles the roster for a slug. room is nil for direct rooms,
// whose roster is just the two participants.
func (r *Roster) Build(ctx context.Context, room *domain.Room, slug string) ([]RosterEntry, error) {
	usernames := make(map[string]bool)
	for _, name := range r.presence.Snapshot(domain.RoomGroup(slug)) {
		usernames[name] = true
	}

	muted := make(map[string]bool)
	switch {
	case room != nil:
		authors, err := r.store.ListAuthors(ctx, room.Name)
		if err != nil {
			return nil, err
		}
		for _, a := range authors {
			usernames[a] = true
		}
		mutes, err := r.store.ListMutes(ctx, room.Slug)
		if err != nil {
			return nil, err
		}
		for _, m := range mutes {
			muted[m] = true
		}
	case domain.IsDirectSlug(slug):
		if a, b, ok := domain.DirectParticipants(slug); ok {
			usernames[a] = true
			usernames[b] = true
		}
	}

	now := time.Now()
	out := make([]RosterEntry, 0, len(usernames))
	for name := range usernames {
		profile, err := r.store.GetUser(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, RosterEntry{
			Username:  profile.Username,
			AvatarURL: profile.Avatar(),
			IsOnline:  profile.Online(now),
			LastSeen:  profile.LastSeenText(),
			IsCreator: room != nil && room.Creator == name,
			IsAdmin:   room != nil && room.HasAdmin(name),
			IsMuted:   muted[name],
		})
	}
	return out, nil
}

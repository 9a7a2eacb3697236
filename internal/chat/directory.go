// Package chat holds the room directory and moderation rules on top of
// the storage boundary. All state here is persisted; live connection
// state stays in core.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"

	"github.com/Zaiknown/chat-project/internal/domain"
	"github.com/Zaiknown/chat-project/internal/storage"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrNotAdmin     = errors.New("no admin permission")
	ErrNotCreator   = errors.New("only the creator can do that")
	ErrBadUserLimit = errors.New("user limit must be a positive integer")
	ErrBadRoomName  = errors.New("invalid room name")
)

const slugRetries = 50

// Directory is the authoritative view of persisted rooms. Direct rooms
// never pass through here; they exist only as slugs.
type Directory struct {
	store storage.Store
}

func NewDirectory(store storage.Store) *Directory {
	return &Directory{store: store}
}

// Create derives a unique, immutable slug from the name, retrying with
// a numeric suffix on collision.
func (d *Directory) Create(ctx context.Context, name, creator, password string, userLimit int) (*domain.Room, error) {
	if name == "" || len(name) > domain.MaxRoomNameLen {
		return nil, ErrBadRoomName
	}
	if userLimit == 0 {
		userLimit = domain.DefaultUserLimit
	}
	if userLimit < 1 {
		return nil, ErrBadUserLimit
	}

	base := slug.Make(name)
	if base == "" {
		return nil, ErrBadRoomName
	}
	room := &domain.Room{
		Name:      name,
		Creator:   creator,
		Password:  password,
		UserLimit: userLimit,
		CreatedAt: time.Now(),
	}
	for i := 0; i < slugRetries; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i+1)
		}
		room.Slug = candidate
		err := d.store.CreateRoom(ctx, room)
		if errors.Is(err, storage.ErrRoomExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info().Str("module", "chat.directory").Str("slug", room.Slug).Str("creator", creator).Msg("room created")
		return room, nil
	}
	return nil, storage.ErrRoomExists
}

// Lookup returns ErrRoomNotFound for unknown slugs and for direct slugs,
// which are not persisted entities.
func (d *Directory) Lookup(ctx context.Context, slug string) (*domain.Room, error) {
	if domain.IsDirectSlug(slug) {
		return nil, ErrRoomNotFound
	}
	room, err := d.store.GetRoom(ctx, slug)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	return room, err
}

// Update changes the display name and/or user limit. Admin-gated.
func (d *Directory) Update(ctx context.Context, slug, actor, newName string, userLimit *int) (*domain.Room, error) {
	room, err := d.Lookup(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !room.IsAdminOrCreator(actor) {
		return nil, ErrNotAdmin
	}
	if newName != "" {
		if len(newName) > domain.MaxRoomNameLen {
			return nil, ErrBadRoomName
		}
		room.Name = newName
	}
	if userLimit != nil {
		if *userLimit < 1 {
			return nil, ErrBadUserLimit
		}
		room.UserLimit = *userLimit
	}
	if err := d.store.SaveRoom(ctx, room); err != nil {
		return nil, err
	}
	log.Info().Str("module", "chat.directory").Str("slug", slug).Str("actor", actor).Msg("room settings updated")
	return room, nil
}

// Delete destroys a room and all its messages. Creator only.
func (d *Directory) Delete(ctx context.Context, slug, actor string) error {
	room, err := d.Lookup(ctx, slug)
	if err != nil {
		return err
	}
	if room.Creator != actor {
		return ErrNotCreator
	}
	if err := d.store.DeleteRoom(ctx, slug); err != nil {
		return err
	}
	log.Info().Str("module", "chat.directory").Str("slug", slug).Str("actor", actor).Msg("room deleted")
	return nil
}

func (d *Directory) List(ctx context.Context) ([]*domain.Room, error) {
	return d.store.ListRooms(ctx)
}

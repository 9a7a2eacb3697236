// Package storage is the persistence boundary. Callers treat not-found
// as a normal, handleable case, never a fatal error.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Zaiknown/chat-project/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrRoomExists = errors.New("room already exists")
	ErrUserExists = errors.New("user already exists")
)

type Store interface {
	// Rooms. SaveRoom persists the mutable fields (name, user limit,
	// mute flag); the admin set is mutated through AddAdmin/RemoveAdmin
	// as independent atomic operations. DeleteRoom cascades to the
	// room's messages, bans, mutes and admin rows.
	CreateRoom(ctx context.Context, room *domain.Room) error
	GetRoom(ctx context.Context, slug string) (*domain.Room, error)
	SaveRoom(ctx context.Context, room *domain.Room) error
	DeleteRoom(ctx context.Context, slug string) error
	ListRooms(ctx context.Context) ([]*domain.Room, error)
	AddAdmin(ctx context.Context, slug, username string) error
	RemoveAdmin(ctx context.Context, slug, username string) error

	// Bans never expire; mutes toggle. Both are unique per
	// (room, identity).
	CreateBan(ctx context.Context, slug, username string) error
	IsBanned(ctx context.Context, slug, username string) (bool, error)
	ListBans(ctx context.Context, slug string) ([]string, error)
	ToggleMute(ctx context.Context, slug, username string) (muted bool, err error)
	IsMuted(ctx context.Context, slug, username string) (bool, error)
	ListMutes(ctx context.Context, slug string) ([]string, error)

	// Messages. CreateMessage resolves parentID to a parent summary if
	// the parent still exists, silently dropping a vanished reference.
	CreateMessage(ctx context.Context, author, roomName, content, parentID string) (*domain.Message, error)
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	MarkDeletedForEveryone(ctx context.Context, id, adminName string) error
	HideMessage(ctx context.Context, id, username string) error
	HideRoomMessages(ctx context.Context, roomName, username string) error
	QueryMessages(ctx context.Context, roomName, viewer string, limit int) ([]*domain.Message, error)
	ListAuthors(ctx context.Context, roomName string) ([]string, error)

	// Users and profiles.
	CreateUser(ctx context.Context, username, passwordHash string) error
	GetUser(ctx context.Context, username string) (*domain.Profile, error)
	Credentials(ctx context.Context, username string) (passwordHash string, err error)
	SetAvatar(ctx context.Context, username, avatarURL string) error
	SetLastSeen(ctx context.Context, username string, t time.Time) error
}

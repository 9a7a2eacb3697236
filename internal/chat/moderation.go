package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Zaiknown/chat-project/internal/domain"
	"github.com/Zaiknown/chat-project/internal/storage"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotAuthor       = errors.New("you can only delete your own messages")
	ErrWindowExpired   = errors.New("messages can only be deleted within 5 minutes")
	ErrTargetNotFound  = errors.New("user not found")
)

// Moderation enforces the admin/ban/mute rules. Every predicate treats
// a nil room (direct rooms) as having no moderation concept at all:
// admin checks deny, ban and mute checks pass.
type Moderation struct {
	store storage.Store
	now   func() time.Time
}

func NewModeration(store storage.Store) *Moderation {
	return &Moderation{store: store, now: time.Now}
}

func (m *Moderation) IsAdminOrCreator(room *domain.Room, username string) bool {
	return room.IsAdminOrCreator(username)
}

func (m *Moderation) IsBanned(ctx context.Context, room *domain.Room, username string) (bool, error) {
	if room == nil {
		return false, nil
	}
	return m.store.IsBanned(ctx, room.Slug, username)
}

func (m *Moderation) IsMuted(ctx context.Context, room *domain.Room, username string) (bool, error) {
	if room == nil {
		return false, nil
	}
	return m.store.IsMuted(ctx, room.Slug, username)
}

// CanSend applies the room-mute and user-mute gates. Admins and the
// creator always pass.
func (m *Moderation) CanSend(ctx context.Context, room *domain.Room, username string) (bool, string, error) {
	if room == nil {
		return true, "", nil
	}
	if room.Muted && !room.IsAdminOrCreator(username) {
		return false, "The room is muted. Only administrators can send messages.", nil
	}
	muted, err := m.IsMuted(ctx, room, username)
	if err != nil {
		return false, "", err
	}
	if muted {
		return false, "You have been muted in this room and cannot send messages.", nil
	}
	return true, "", nil
}

// Kick bans the target. Closing the target's live session is the
// caller's job; the ban alone keeps them out on reconnect.
func (m *Moderation) Kick(ctx context.Context, room *domain.Room, target string) error {
	if room == nil {
		return ErrNotAdmin
	}
	if _, err := m.store.GetUser(ctx, target); errors.Is(err, storage.ErrNotFound) {
		return ErrTargetNotFound
	} else if err != nil {
		return err
	}
	if err := m.store.CreateBan(ctx, room.Slug, target); err != nil {
		return err
	}
	log.Info().Str("module", "chat.moderation").Str("room", room.Slug).Str("target", target).Msg("user kicked")
	return nil
}

// Promote and Demote mutate the admin set. Unknown targets are a
// silent no-op, matching the connect-time behavior.
func (m *Moderation) Promote(ctx context.Context, room *domain.Room, target string) error {
	if room == nil {
		return ErrNotAdmin
	}
	if _, err := m.store.GetUser(ctx, target); errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	return m.store.AddAdmin(ctx, room.Slug, target)
}

func (m *Moderation) Demote(ctx context.Context, room *domain.Room, target string) error {
	if room == nil {
		return ErrNotAdmin
	}
	if _, err := m.store.GetUser(ctx, target); errors.Is(err, storage.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	return m.store.RemoveAdmin(ctx, room.Slug, target)
}

// ToggleUserMute creates the mute record if absent, deletes it if
// present, and reports the new state.
func (m *Moderation) ToggleUserMute(ctx context.Context, room *domain.Room, target string) (bool, error) {
	if room == nil {
		return false, ErrNotAdmin
	}
	if _, err := m.store.GetUser(ctx, target); errors.Is(err, storage.ErrNotFound) {
		return false, ErrTargetNotFound
	} else if err != nil {
		return false, err
	}
	return m.store.ToggleMute(ctx, room.Slug, target)
}

// ToggleRoomMute flips the room-wide mute flag.
func (m *Moderation) ToggleRoomMute(ctx context.Context, room *domain.Room) (bool, error) {
	if room == nil {
		return false, ErrNotAdmin
	}
	room.Muted = !room.Muted
	if err := m.store.SaveRoom(ctx, room); err != nil {
		return false, err
	}
	return room.Muted, nil
}

// DeleteForEveryone soft-deletes the requester's own message, only
// within the window.
func (m *Moderation) DeleteForEveryone(ctx context.Context, id, requester string) error {
	msg, err := m.store.GetMessage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	if msg.Author != requester {
		return ErrNotAuthor
	}
	if !msg.Deletable(m.now()) {
		return ErrWindowExpired
	}
	return m.store.MarkDeletedForEveryone(ctx, id, "")
}

// AdminDelete soft-deletes any message with admin attribution; the same
// window applies to admins.
func (m *Moderation) AdminDelete(ctx context.Context, id, admin string) error {
	msg, err := m.store.GetMessage(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	if !msg.Deletable(m.now()) {
		return ErrWindowExpired
	}
	return m.store.MarkDeletedForEveryone(ctx, id, admin)
}

// HideForViewer adds the viewer to the message's hide list.
func (m *Moderation) HideForViewer(ctx context.Context, id, viewer string) error {
	err := m.store.HideMessage(ctx, id, viewer)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrMessageNotFound
	}
	return err
}

package ws

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/Zaiknown/chat-project/internal/chat"
)

func (s *session) handleMessage(ctx context.Context, env *inbound) {
	if env.Message == "" {
		log.Warn().Str("module", "ws").Str("sid", s.id).Msg("empty message payload")
		return
	}
	if !s.ctl.limiter.Allow(s.username) {
		s.notify("You are sending messages too fast. Slow down.")
		return
	}

	room, err := s.currentRoom(ctx)
	if err != nil {
		s.notify("Failed to send message.")
		return
	}

	ok, denial, err := s.ctl.moderation.CanSend(ctx, room, s.username)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", s.id).Msg("send gate check")
		s.notify("Failed to send message.")
		return
	}
	if !ok {
		s.notify(denial)
		return
	}

	// Messages are scoped by room name; direct rooms use the slug.
	roomName := s.slug
	if room != nil {
		roomName = room.Name
	}
	msg, err := s.ctl.store.CreateMessage(ctx, s.username, roomName, env.Message, env.ReplyTo)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", s.id).Msg("persist message")
		s.notify("Failed to send message.")
		return
	}

	s.ctl.bus.GroupSend(s.group, chatMessage{
		Type:      "chat_message",
		ID:        msg.ID,
		Message:   msg.Content,
		Username:  s.username,
		Timestamp: msg.CreatedAt.Format("15:04"),
		AvatarURL: s.avatarURL,
		Parent:    msg.Parent,
	})
}

func (s *session) handleDelete(ctx context.Context, env *inbound) {
	if env.MessageID == "" {
		log.Warn().Str("module", "ws").Str("sid", s.id).Msg("delete without message_id")
		return
	}

	switch env.Scope {
	case scopeForMe:
		err := s.ctl.moderation.HideForViewer(ctx, env.MessageID, s.username)
		if errors.Is(err, chat.ErrMessageNotFound) {
			s.notify("Message not found.")
			return
		}
		if err != nil {
			s.notify("Failed to delete message.")
			return
		}
		s.ctl.bus.Send(s, messageDeletedForMe{Type: "message_deleted_for_me", MessageID: env.MessageID})

	case scopeForEveryone:
		err := s.ctl.moderation.DeleteForEveryone(ctx, env.MessageID, s.username)
		if err != nil {
			s.notifyDeleteError(err)
			return
		}
		s.ctl.bus.GroupSend(s.group, messageDeletedForEveryone{
			Type:      "message_deleted_for_everyone",
			MessageID: env.MessageID,
		})

	case scopeAdminDelete:
		room, err := s.currentRoom(ctx)
		if err != nil {
			s.notify("Failed to delete message.")
			return
		}
		if !s.ctl.moderation.IsAdminOrCreator(room, s.username) {
			s.notify("You do not have admin permission.")
			return
		}
		if err := s.ctl.moderation.AdminDelete(ctx, env.MessageID, s.username); err != nil {
			s.notifyDeleteError(err)
			return
		}
		s.ctl.bus.GroupSend(s.group, messageDeletedForEveryone{
			Type:           "message_deleted_for_everyone",
			MessageID:      env.MessageID,
			DeletedByAdmin: true,
			AdminUsername:  s.username,
		})

	default:
		log.Warn().Str("module", "ws").Str("sid", s.id).Str("scope", env.Scope).Msg("unknown delete scope")
	}
}

func (s *session) notifyDeleteError(err error) {
	switch {
	case errors.Is(err, chat.ErrMessageNotFound):
		s.notify("Message not found.")
	case errors.Is(err, chat.ErrNotAuthor):
		s.notify("You can only delete your own messages.")
	case errors.Is(err, chat.ErrWindowExpired):
		s.notify("Messages can only be deleted within 5 minutes.")
	default:
		s.notify("Failed to delete message.")
	}
}

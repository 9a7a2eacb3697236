package ws

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Zaiknown/chat-project/internal/chat"
)

func (s *session) handleAdminAction(ctx context.Context, env *inbound) {
	room, err := s.currentRoom(ctx)
	if err != nil {
		s.notify("Admin action failed.")
		return
	}
	if !s.ctl.moderation.IsAdminOrCreator(room, s.username) {
		s.notify("You do not have admin permission.")
		return
	}

	switch env.Action {
	case actionKick:
		if env.Target == "" {
			return
		}
		err := s.ctl.moderation.Kick(ctx, room, env.Target)
		if errors.Is(err, chat.ErrTargetNotFound) {
			log.Warn().Str("module", "ws").Str("target", env.Target).Msg("kick target unknown")
			return
		}
		if err != nil {
			s.notify("Admin action failed.")
			return
		}
		// Remove the target before force-closing so its handle stops
		// receiving group traffic immediately; teardown is idempotent.
		if h, ok := s.ctl.presence.Lookup(s.group, env.Target); ok {
			s.ctl.presence.Remove(s.group, env.Target)
			s.ctl.bus.GroupDiscard(s.group, h)
			h.ForceClose(CloseBanned)
		}
		s.ctl.bus.GroupSend(s.group, systemNotice(env.Target+" was kicked from the room."))
		s.broadcastRoster(ctx)

	case actionPromote:
		if env.Target == "" {
			return
		}
		if err := s.ctl.moderation.Promote(ctx, room, env.Target); err != nil {
			s.notify("Admin action failed.")
			return
		}
		s.sendAdminStatus(env.Target, true)
		s.ctl.bus.GroupSend(s.group, systemNotice(env.Target+" was promoted to administrator."))
		s.broadcastRoster(ctx)

	case actionDemote:
		if env.Target == "" {
			return
		}
		if err := s.ctl.moderation.Demote(ctx, room, env.Target); err != nil {
			s.notify("Admin action failed.")
			return
		}
		s.sendAdminStatus(env.Target, false)
		s.ctl.bus.GroupSend(s.group, systemNotice(env.Target+" was demoted to member."))
		s.broadcastRoster(ctx)

	case actionMuteUser:
		if env.Target == "" {
			return
		}
		muted, err := s.ctl.moderation.ToggleUserMute(ctx, room, env.Target)
		if errors.Is(err, chat.ErrTargetNotFound) {
			s.notify(fmt.Sprintf("User %s not found.", env.Target))
			return
		}
		if err != nil {
			s.notify("Admin action failed.")
			return
		}
		if muted {
			s.ctl.bus.GroupSend(s.group, systemNotice(env.Target+" was muted."))
		} else {
			s.ctl.bus.GroupSend(s.group, systemNotice(env.Target+" was unmuted."))
		}
		s.broadcastRoster(ctx)

	case actionToggleMute:
		muted, err := s.ctl.moderation.ToggleRoomMute(ctx, room)
		if err != nil {
			s.notify("Admin action failed.")
			return
		}
		state := "unmuted"
		if muted {
			state = "muted"
		}
		s.ctl.bus.GroupSend(s.group, muteStatusUpdate{
			Type:    "mute_status_update",
			IsMuted: muted,
			Message: fmt.Sprintf("The room was %s by an administrator.", state),
		})

	default:
		log.Warn().Str("module", "ws").Str("sid", s.id).Str("action", env.Action).Msg("unknown admin action")
	}
}

// sendAdminStatus delivers the targeted admin-status update to the
// matching identity's session only, if it is currently connected.
func (s *session) sendAdminStatus(target string, isAdmin bool) {
	if h, ok := s.ctl.presence.Lookup(s.group, target); ok {
		s.ctl.bus.Send(h, adminStatusUpdate{Type: "admin_status_update", IsAdmin: isAdmin})
	}
}

func (s *session) handleSettings(ctx context.Context, env *inbound) {
	_, err := s.ctl.directory.Update(ctx, s.slug, s.username, env.RoomName, env.UserLimit)
	switch {
	case err == nil:
		s.ctl.bus.GroupSend(s.group, systemNotice(
			fmt.Sprintf("The room settings were updated by %s.", s.username)))
	case errors.Is(err, chat.ErrNotAdmin):
		s.notify("You do not have permission to change the room settings.")
	case errors.Is(err, chat.ErrBadUserLimit):
		s.notify("Invalid user limit.")
	case errors.Is(err, chat.ErrBadRoomName):
		s.notify("Invalid room name.")
	case errors.Is(err, chat.ErrRoomNotFound):
		s.notify("Room not found.")
	default:
		s.notify("Failed to update room settings.")
	}
}

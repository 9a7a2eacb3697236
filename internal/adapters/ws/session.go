package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Zaiknown/chat-project/internal/chat"
	"github.com/Zaiknown/chat-project/internal/core"
	"github.com/Zaiknown/chat-project/internal/domain"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosed
)

// session is one live connection's state machine context. The close
// flags are consulted exactly once, at teardown, to decide whether the
// "left the room" notice is suppressed.
type session struct {
	ctl *Controller
	tr  transport

	id        string
	username  string
	avatarURL string
	slug      string
	group     string
	isDirect  bool

	mu             sync.Mutex
	state          sessionState
	leftExplicitly bool
	kicked         bool
}

var _ core.Handle = (*session)(nil)

func (s *session) TrySend(f core.Frame) error {
	return s.tr.TrySend(f)
}

// ForceClose is the kick path: mark the session so teardown stays
// quiet, tell the client why, and drop the transport.
func (s *session) ForceClose(code int) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.kicked = true
	s.mu.Unlock()

	s.ctl.bus.Send(s, systemNotice("You have been kicked from the room."))
	s.tr.CloseWithCode(code, "kicked")
}

func (s *session) setState(st sessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// teardown runs the Active -> Closed transition exactly once:
// unregister, refresh presence, and announce the departure unless the
// session left explicitly, was kicked, or is a direct room.
func (s *session) teardown(ctx context.Context) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	suppress := s.leftExplicitly || s.kicked || s.isDirect
	s.mu.Unlock()

	s.ctl.presence.Remove(s.group, s.username)
	s.ctl.bus.GroupDiscard(s.group, s)
	s.touchLastSeen(ctx)

	if !suppress {
		s.ctl.bus.GroupSend(s.group, systemNotice(s.username+" left the room."))
	}
	s.broadcastRoster(ctx)
	s.tr.Close()
	log.Info().Str("module", "ws").Str("sid", s.id).Str("user", s.username).Str("slug", s.slug).Msg("session closed")
}

// handleInbound dispatches one client payload. Events for a session are
// processed in receipt order; malformed payloads are discarded with a
// log line and no reply.
func (s *session) handleInbound(ctx context.Context, data []byte) {
	if !s.active() {
		return
	}

	var env inbound
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("sid", s.id).Msg("malformed payload")
		return
	}

	switch env.Type {
	case evMessage:
		s.handleMessage(ctx, &env)
	case evTyping:
		s.handleTyping(&env)
	case evHeartbeat:
		s.handleHeartbeat(ctx)
	case evDeleteMessage:
		s.handleDelete(ctx, &env)
	case evAdminAction:
		s.handleAdminAction(ctx, &env)
	case evChatSettings:
		s.handleSettings(ctx, &env)
	case evLeaveChat:
		s.handleLeave(ctx)
	default:
		log.Warn().Str("module", "ws").Str("sid", s.id).Str("type", env.Type).Msg("unknown event type")
	}
}

func (s *session) handleTyping(env *inbound) {
	if env.IsTyping == nil {
		log.Warn().Str("module", "ws").Str("sid", s.id).Msg("typing event without is_typing")
		return
	}
	s.ctl.bus.GroupSend(s.group, typingSignal{
		Type:     "typing_signal",
		Username: s.username,
		IsTyping: *env.IsTyping,
	})
}

func (s *session) handleHeartbeat(ctx context.Context) {
	s.touchLastSeen(ctx)
	s.ctl.bus.Send(s, heartbeatPong{Type: "heartbeat", Status: "pong"})
	s.broadcastRoster(ctx)
}

func (s *session) handleLeave(ctx context.Context) {
	s.mu.Lock()
	s.leftExplicitly = true
	s.mu.Unlock()

	if !s.isDirect {
		s.ctl.bus.GroupSend(s.group, systemNotice(s.username+" left the room."))
	}
	s.broadcastRoster(ctx)
}

// currentRoom re-reads the room so moderation decisions always see
// fresh state. nil for direct rooms and for rooms deleted mid-session.
func (s *session) currentRoom(ctx context.Context) (*domain.Room, error) {
	if s.isDirect {
		return nil, nil
	}
	room, err := s.ctl.directory.Lookup(ctx, s.slug)
	if errors.Is(err, chat.ErrRoomNotFound) {
		return nil, nil
	}
	return room, err
}

func (s *session) broadcastRoster(ctx context.Context) {
	room, err := s.currentRoom(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", s.id).Msg("roster room lookup")
		return
	}
	users, err := s.ctl.roster.Build(ctx, room, s.slug)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", s.id).Msg("roster build")
		return
	}
	s.ctl.bus.GroupSend(s.group, userListUpdate{Type: "user_list_update", Users: users})
}

func (s *session) touchLastSeen(ctx context.Context) {
	if err := s.ctl.store.SetLastSeen(ctx, s.username, time.Now()); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("user", s.username).Msg("update last seen")
	}
}

// notify sends a local-only system notice to this session.
func (s *session) notify(msg string) {
	s.ctl.bus.Send(s, systemNotice(msg))
}

package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Zaiknown/chat-project/internal/chat"
	"github.com/Zaiknown/chat-project/internal/config"
	"github.com/Zaiknown/chat-project/internal/core"
	"github.com/Zaiknown/chat-project/internal/domain"
	"github.com/Zaiknown/chat-project/internal/storage"
)

// Close codes carried on rejected or force-closed connections.
const (
	CloseBanned       = 4001
	CloseRoomFull     = 4003
	CloseRoomNotFound = 4004
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns every live chat connection for the process.
type Controller struct {
	cfg        *config.Config
	store      storage.Store
	directory  *chat.Directory
	moderation *chat.Moderation
	roster     *chat.Roster
	presence   *core.Presence
	bus        *core.Bus
	limiter    *RateLimiter
}

func NewController(cfg *config.Config, store storage.Store, directory *chat.Directory, moderation *chat.Moderation, roster *chat.Roster, presence *core.Presence, bus *core.Bus) *Controller {
	return &Controller{
		cfg:        cfg,
		store:      store,
		directory:  directory,
		moderation: moderation,
		roster:     roster,
		presence:   presence,
		bus:        bus,
		limiter:    NewRateLimiter(cfg.MsgRateLimit, cfg.MsgRateInterval),
	}
}

// rejection is a connect-time refusal; code 0 means a plain close with
// no special meaning (unauthenticated).
type rejection struct {
	code   int
	reason string
}

// HandleChat upgrades the request and runs the session until the client
// goes away.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	username := c.GetString("username")
	slug := c.Param("slug")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	conn := newWSConn(ws, ctl.cfg.ReadLimit)

	sess, rej := ctl.connect(ctx, username, slug, conn)
	if rej != nil {
		if rej.code != 0 {
			conn.CloseWithCode(rej.code, rej.reason)
		} else {
			conn.Close()
		}
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	go conn.writePump(ctx, ctl.cfg.PingPeriod)
	go ctl.readPump(ctx, cancel, sess, conn)
}

// connect runs the admission gates and, on success, registers the
// session with the presence registry and the broadcast bus. Checks that
// reach storage happen before any registration, so a rejected attempt
// leaves no partial state behind.
func (ctl *Controller) connect(ctx context.Context, username, slug string, tr transport) (*session, *rejection) {
	if username == "" {
		log.Warn().Str("module", "ws").Str("slug", slug).Msg("unauthenticated connect attempt")
		return nil, &rejection{}
	}

	sess := &session{
		ctl:      ctl,
		tr:       tr,
		id:       uuid.NewString(),
		username: username,
		slug:     slug,
		group:    domain.RoomGroup(slug),
		isDirect: domain.IsDirectSlug(slug),
		state:    stateConnecting,
	}

	var room *domain.Room
	if sess.isDirect {
		if !domain.IsDirectParticipant(slug, username) {
			log.Warn().Str("module", "ws").Str("slug", slug).Str("user", username).Msg("not a direct-room participant")
			return nil, &rejection{code: CloseRoomNotFound, reason: "room not found"}
		}
	} else {
		var err error
		room, err = ctl.directory.Lookup(ctx, slug)
		if errors.Is(err, chat.ErrRoomNotFound) {
			log.Warn().Str("module", "ws").Str("slug", slug).Msg("room not found")
			return nil, &rejection{code: CloseRoomNotFound, reason: "room not found"}
		}
		if err != nil {
			log.Error().Err(err).Str("module", "ws").Str("slug", slug).Msg("room lookup failed")
			return nil, &rejection{}
		}

		banned, err := ctl.moderation.IsBanned(ctx, room, username)
		if err != nil {
			log.Error().Err(err).Str("module", "ws").Str("slug", slug).Msg("ban check failed")
			return nil, &rejection{}
		}
		if banned {
			log.Warn().Str("module", "ws").Str("slug", slug).Str("user", username).Msg("banned user rejected")
			return nil, &rejection{code: CloseBanned, reason: "banned"}
		}

		if room.UserLimit > 0 && ctl.presence.Count(sess.group) >= room.UserLimit {
			log.Warn().Str("module", "ws").Str("slug", slug).Msg("room at capacity")
			return nil, &rejection{code: CloseRoomFull, reason: "room at capacity"}
		}
	}

	if profile, err := ctl.store.GetUser(ctx, username); err == nil {
		sess.avatarURL = profile.Avatar()
	} else {
		sess.avatarURL = domain.DefaultAvatarURL
	}

	ctl.presence.Add(sess.group, username, sess)
	ctl.bus.GroupAdd(sess.group, sess)
	sess.setState(stateActive)
	log.Info().Str("module", "ws").Str("sid", sess.id).Str("user", username).Str("slug", slug).Msg("session active")

	if room != nil {
		ctl.bus.Send(sess, roomStateUpdate{
			Type:    "room_state_update",
			IsMuted: room.Muted,
			IsAdmin: ctl.moderation.IsAdminOrCreator(room, username),
		})
	}

	sess.touchLastSeen(ctx)

	if !sess.isDirect {
		ctl.bus.GroupSend(sess.group, systemNotice(username+" joined the room."))
	}
	sess.broadcastRoster(ctx)

	return sess, nil
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *session, conn *wsConn) {
	defer func() {
		sess.teardown(context.Background())
		cancel()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("sid", sess.id).Msg("read loop ended")
				return
			}
			sess.handleInbound(ctx, data)
		}
	}
}

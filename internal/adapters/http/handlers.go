package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/Zaiknown/chat-project/internal/chat"
	"github.com/Zaiknown/chat-project/internal/config"
	"github.com/Zaiknown/chat-project/internal/core"
	"github.com/Zaiknown/chat-project/internal/domain"
	"github.com/Zaiknown/chat-project/internal/storage"
)

const authorizedRoomsKey = "authorized_rooms"

type Handlers struct {
	cfg       *config.Config
	store     storage.Store
	directory *chat.Directory
	presence  *core.Presence
	bus       *core.Bus
}

func NewHandlers(cfg *config.Config, store storage.Store, directory *chat.Directory, presence *core.Presence, bus *core.Bus) *Handlers {
	return &Handlers{cfg: cfg, store: store, directory: directory, presence: presence, bus: bus}
}

// --- auth ---

type credentialsForm struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handlers) Register(c *gin.Context) {
	var form credentialsForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	if err := domain.ValidateUsername(form.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}
	err = h.store.CreateUser(c.Request.Context(), form.Username, string(hash))
	if errors.Is(err, storage.ErrUserExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "username is taken"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "http").Msg("create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	sess := sessions.Default(c)
	sess.Set(sessionUserKey, form.Username)
	_ = sess.Save()
	c.JSON(http.StatusCreated, gin.H{"username": form.Username})
}

func (h *Handlers) Login(c *gin.Context) {
	var form credentialsForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	hash, err := h.store.Credentials(c.Request.Context(), form.Username)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(form.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sess := sessions.Default(c)
	sess.Set(sessionUserKey, form.Username)
	_ = sess.Save()
	c.JSON(http.StatusOK, gin.H{"username": form.Username})
}

func (h *Handlers) Logout(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	_ = sess.Save()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) Me(c *gin.Context) {
	profile, err := h.store.GetUser(c.Request.Context(), c.GetString("username"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": profile.Username, "avatar_url": profile.Avatar()})
}

func (h *Handlers) UpdateAvatar(c *gin.Context) {
	var form struct {
		AvatarURL string `json:"avatar_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar_url is required"})
		return
	}
	if err := h.store.SetAvatar(c.Request.Context(), c.GetString("username"), form.AvatarURL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- rooms ---

type roomForm struct {
	Name      string `json:"name" binding:"required"`
	Password  string `json:"password"`
	UserLimit int    `json:"user_limit"`
}

func (h *Handlers) CreateRoom(c *gin.Context) {
	var form roomForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room name is required"})
		return
	}
	room, err := h.directory.Create(c.Request.Context(), form.Name, c.GetString("username"), form.Password, form.UserLimit)
	switch {
	case errors.Is(err, chat.ErrBadRoomName), errors.Is(err, chat.ErrBadUserLimit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrRoomExists):
		c.JSON(http.StatusConflict, gin.H{"error": "room already exists"})
	case err != nil:
		log.Error().Err(err).Str("module", "http").Msg("create room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "room creation failed"})
	default:
		c.JSON(http.StatusCreated, room)
	}
}

func (h *Handlers) ListRooms(c *gin.Context) {
	rooms, err := h.directory.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}
	type roomEntry struct {
		*domain.Room
		UserCount   int  `json:"user_count"`
		HasPassword bool `json:"has_password"`
	}
	out := make([]roomEntry, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomEntry{
			Room:        room,
			UserCount:   h.presence.Count(domain.RoomGroup(room.Slug)),
			HasPassword: room.Password != "",
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (h *Handlers) DeleteRoom(c *gin.Context) {
	err := h.directory.Delete(c.Request.Context(), c.Param("slug"), c.GetString("username"))
	switch {
	case errors.Is(err, chat.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	case errors.Is(err, chat.ErrNotCreator):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator can delete the room"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deletion failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (h *Handlers) RoomStatus(c *gin.Context) {
	slug := c.Param("slug")
	if domain.IsDirectSlug(slug) {
		c.JSON(http.StatusOK, gin.H{"is_muted": false})
		return
	}
	room, err := h.directory.Lookup(c.Request.Context(), slug)
	if errors.Is(err, chat.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_muted": room.Muted})
}

// AuthorizeRoom grants the session access to a password-protected room.
func (h *Handlers) AuthorizeRoom(c *gin.Context) {
	slug := c.Param("slug")
	room, err := h.directory.Lookup(c.Request.Context(), slug)
	if errors.Is(err, chat.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if room.Password == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	var form struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&form); err != nil || form.Password != room.Password {
		c.JSON(http.StatusForbidden, gin.H{"error": "wrong password"})
		return
	}

	sess := sessions.Default(c)
	granted, _ := sess.Get(authorizedRoomsKey).(string)
	if !hasGrant(granted, slug) {
		if granted == "" {
			granted = slug
		} else {
			granted += "," + slug
		}
		sess.Set(authorizedRoomsKey, granted)
		_ = sess.Save()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func hasGrant(granted, slug string) bool {
	for _, g := range strings.Split(granted, ",") {
		if g == slug {
			return true
		}
	}
	return false
}

func (h *Handlers) RoomMessages(c *gin.Context) {
	slug := c.Param("slug")
	viewer := c.GetString("username")
	ctx := c.Request.Context()

	roomName := slug
	if domain.IsDirectSlug(slug) {
		if !domain.IsDirectParticipant(slug, viewer) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
			return
		}
	} else {
		room, err := h.directory.Lookup(ctx, slug)
		if errors.Is(err, chat.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		if room.Password != "" {
			granted, _ := sessions.Default(c).Get(authorizedRoomsKey).(string)
			if !hasGrant(granted, slug) {
				c.JSON(http.StatusForbidden, gin.H{"error": "room password required"})
				return
			}
		}
		roomName = room.Name
	}

	msgs, err := h.store.QueryMessages(ctx, roomName, viewer, h.cfg.HistoryLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	type messageEntry struct {
		ID             string             `json:"id"`
		AuthorUsername string             `json:"author_username"`
		Content        string             `json:"content"`
		Timestamp      string             `json:"timestamp"`
		IsSentByUser   bool               `json:"is_sent_by_user"`
		Parent         *domain.MessageRef `json:"parent"`
		Deleted        bool               `json:"deleted_for_everyone"`
		DeletedByAdmin string             `json:"deleted_by_admin,omitempty"`
	}
	out := make([]messageEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageEntry{
			ID:             m.ID,
			AuthorUsername: m.Author,
			Content:        m.Content,
			Timestamp:      m.CreatedAt.Format("15:04"),
			IsSentByUser:   m.Author == viewer,
			Parent:         m.Parent,
			Deleted:        m.DeletedForEveryone,
			DeletedByAdmin: m.DeletedByAdmin,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

// ClearChat hides every message in the room for the requester only.
func (h *Handlers) ClearChat(c *gin.Context) {
	slug := c.Param("slug")
	roomName := slug
	if !domain.IsDirectSlug(slug) {
		room, err := h.directory.Lookup(c.Request.Context(), slug)
		if errors.Is(err, chat.ErrRoomNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
		roomName = room.Name
	}
	if err := h.store.HideRoomMessages(c.Request.Context(), roomName, c.GetString("username")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// LeaveRoom announces a departure triggered from the room list page
// rather than from an open socket.
func (h *Handlers) LeaveRoom(c *gin.Context) {
	slug := c.Param("slug")
	if _, err := h.directory.Lookup(c.Request.Context(), slug); errors.Is(err, chat.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	h.bus.GroupSend(domain.RoomGroup(slug), gin.H{
		"type":    "system_message",
		"message": c.GetString("username") + " left the room.",
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- direct messages ---

func (h *Handlers) StartDM(c *gin.Context) {
	me := c.GetString("username")
	other := c.Param("username")
	if other == me {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start a conversation with yourself"})
		return
	}
	if _, err := h.store.GetUser(c.Request.Context(), other); errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": domain.DirectSlug(me, other)})
}

func (h *Handlers) Heartbeat(c *gin.Context) {
	if err := h.store.SetLastSeen(c.Request.Context(), c.GetString("username"), time.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

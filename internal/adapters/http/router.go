// Package http wires the gin router: session auth, the REST surface for
// rooms and profiles, and the websocket entry point.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/Zaiknown/chat-project/internal/adapters/ws"
	"github.com/Zaiknown/chat-project/internal/config"
)

const sessionUserKey = "username"

// AuthRequired rejects requests without a logged-in session and exposes
// the username to downstream handlers.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		name, _ := sess.Get(sessionUserKey).(string)
		if name == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "authentication required"})
			return
		}
		c.Set("username", name)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers, ctl *ws.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChatSessions", store))

	auth := r.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
	}

	api := r.Group("/api", AuthRequired())
	{
		api.GET("/me", h.Me)
		api.PUT("/me/avatar", h.UpdateAvatar)
		api.POST("/heartbeat", h.Heartbeat)

		api.GET("/rooms", h.ListRooms)
		api.POST("/rooms", h.CreateRoom)
		api.DELETE("/rooms/:slug", h.DeleteRoom)
		api.GET("/rooms/:slug/status", h.RoomStatus)
		api.POST("/rooms/:slug/authorize", h.AuthorizeRoom)
		api.GET("/rooms/:slug/messages", h.RoomMessages)
		api.POST("/rooms/:slug/clear", h.ClearChat)
		api.POST("/rooms/:slug/leave", h.LeaveRoom)

		api.POST("/dm/:username", h.StartDM)
	}

	r.GET("/ws/chat/:slug", AuthRequired(), func(c *gin.Context) {
		ctl.HandleChat(ctx, c)
	})

	return r
}

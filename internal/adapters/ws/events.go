package ws

import (
	"github.com/Zaiknown/chat-project/internal/chat"
	"github.com/Zaiknown/chat-project/internal/domain"
)

// Inbound event types. Every client payload carries an explicit type
// tag; anything else is discarded.
const (
	evMessage       = "message"
	evTyping        = "typing"
	evHeartbeat     = "heartbeat"
	evDeleteMessage = "delete_message"
	evAdminAction   = "admin_action"
	evChatSettings  = "chat_settings"
	evLeaveChat     = "leave_chat"
)

// Delete scopes.
const (
	scopeForMe       = "for_me"
	scopeForEveryone = "for_everyone"
	scopeAdminDelete = "admin_delete"
)

// Admin actions.
const (
	actionKick       = "kick"
	actionPromote    = "promote"
	actionDemote     = "demote"
	actionMuteUser   = "mute_user"
	actionToggleMute = "toggle_mute"
)

// inbound is the single envelope every client payload parses into; the
// Type tag decides which fields matter.
type inbound struct {
	Type string `json:"type"`

	Message string `json:"message,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`

	IsTyping *bool `json:"is_typing,omitempty"`

	MessageID string `json:"message_id,omitempty"`
	Scope     string `json:"scope,omitempty"`

	Action string `json:"action,omitempty"`
	Target string `json:"target,omitempty"`

	RoomName  string `json:"room_name,omitempty"`
	UserLimit *int   `json:"user_limit,omitempty"`
}

// Outbound events. Field names are the wire protocol; clients dispatch
// on "type".

type systemMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func systemNotice(msg string) systemMessage {
	return systemMessage{Type: "system_message", Message: msg}
}

type chatMessage struct {
	Type      string             `json:"type"`
	ID        string             `json:"id"`
	Message   string             `json:"message"`
	Username  string             `json:"username"`
	Timestamp string             `json:"timestamp"`
	AvatarURL string             `json:"avatar_url"`
	Parent    *domain.MessageRef `json:"parent"`
}

type typingSignal struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type heartbeatPong struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type roomStateUpdate struct {
	Type    string `json:"type"`
	IsMuted bool   `json:"is_muted"`
	IsAdmin bool   `json:"is_admin"`
}

type userListUpdate struct {
	Type  string             `json:"type"`
	Users []chat.RosterEntry `json:"users"`
}

type messageDeletedForMe struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

type messageDeletedForEveryone struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	DeletedByAdmin bool   `json:"deleted_by_admin"`
	AdminUsername  string `json:"admin_username,omitempty"`
}

type adminStatusUpdate struct {
	Type    string `json:"type"`
	IsAdmin bool   `json:"is_admin"`
}

type muteStatusUpdate struct {
	Type    string `json:"type"`
	IsMuted bool   `json:"is_muted"`
	Message string `json:"message"`
}

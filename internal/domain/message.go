package domain

import "time"

// DeleteWindow bounds "delete for everyone", for authors and admins
// alike. It is a lazy timestamp comparison, not a scheduled task.
const DeleteWindow = 300 * time.Second

// Message is a persisted chat line. Deletion is always soft: a global
// hide flag for everyone, or a per-viewer hide list. Hard deletes only
// happen when the whole room is deleted.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	RoomName  string    `json:"room_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	ParentID string      `json:"parent_id,omitempty"`
	Parent   *MessageRef `json:"parent,omitempty"`

	DeletedForEveryone bool   `json:"deleted_for_everyone"`
	DeletedByAdmin     string `json:"deleted_by_admin,omitempty"`
}

// MessageRef is the parent summary carried on threaded replies.
type MessageRef struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// Deletable reports whether the delete-for-everyone window is still open.
func (m *Message) Deletable(now time.Time) bool {
	return now.Sub(m.CreatedAt) <= DeleteWindow
}

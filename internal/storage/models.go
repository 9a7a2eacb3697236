package storage

import (
	"time"

	"github.com/uptrace/bun"
)

type userRecord struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Username     string    `bun:"username,pk"`
	PasswordHash string    `bun:"password_hash,notnull"`
	AvatarURL    string    `bun:"avatar_url"`
	LastSeen     time.Time `bun:"last_seen,nullzero"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

type roomRecord struct {
	bun.BaseModel `bun:"table:rooms,alias:r"`

	Slug      string    `bun:"slug,pk"`
	Name      string    `bun:"name,notnull,unique"`
	Creator   string    `bun:"creator,notnull"`
	Password  string    `bun:"password"`
	UserLimit int       `bun:"user_limit,notnull"`
	Muted     bool      `bun:"is_muted,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type roomAdminRecord struct {
	bun.BaseModel `bun:"table:room_admins,alias:ra"`

	RoomSlug string `bun:"room_slug,pk"`
	Username string `bun:"username,pk"`
}

type banRecord struct {
	bun.BaseModel `bun:"table:room_bans,alias:rb"`

	RoomSlug string    `bun:"room_slug,pk"`
	Username string    `bun:"username,pk"`
	BannedAt time.Time `bun:"banned_at,notnull"`
}

type muteRecord struct {
	bun.BaseModel `bun:"table:room_mutes,alias:rm"`

	RoomSlug string    `bun:"room_slug,pk"`
	Username string    `bun:"username,pk"`
	MutedAt  time.Time `bun:"muted_at,notnull"`
}

type messageRecord struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID        string    `bun:"id,pk"`
	Author    string    `bun:"author,notnull"`
	RoomName  string    `bun:"room_name,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`

	ParentID           string `bun:"parent_id,nullzero"`
	DeletedForEveryone bool   `bun:"deleted_for_everyone,notnull"`
	DeletedByAdmin     string `bun:"deleted_by_admin,nullzero"`
}

type messageHideRecord struct {
	bun.BaseModel `bun:"table:message_hides,alias:mh"`

	MessageID string `bun:"message_id,pk"`
	Username  string `bun:"username,pk"`
}

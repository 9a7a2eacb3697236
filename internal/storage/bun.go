package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/Zaiknown/chat-project/internal/domain"
)

// DB is the bun-backed Store over SQLite.
type DB struct {
	db *bun.DB
}

func Open(dsn string) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writes; one connection avoids lock contention.
	sqldb.SetMaxOpenConns(1)
	return &DB{db: bun.NewDB(sqldb, sqlitedialect.New())}, nil
}

func (s *DB) Migrate(ctx context.Context) error {
	models := []any{
		(*userRecord)(nil),
		(*roomRecord)(nil),
		(*roomAdminRecord)(nil),
		(*banRecord)(nil),
		(*muteRecord)(nil),
		(*messageRecord)(nil),
		(*messageHideRecord)(nil),
	}
	for _, m := range models {
		if _, err := s.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	log.Info().Str("module", "storage").Msg("schema ready")
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

// --- rooms ---

func (s *DB) CreateRoom(ctx context.Context, room *domain.Room) error {
	rec := &roomRecord{
		Slug:      room.Slug,
		Name:      room.Name,
		Creator:   room.Creator,
		Password:  room.Password,
		UserLimit: room.UserLimit,
		Muted:     room.Muted,
		CreatedAt: room.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		// slug is the primary key and the name is unique; either
		// collision means the caller should retry with a new slug.
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return ErrRoomExists
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (s *DB) GetRoom(ctx context.Context, slug string) (*domain.Room, error) {
	rec := new(roomRecord)
	err := s.db.NewSelect().Model(rec).Where("slug = ?", slug).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}

	var admins []string
	err = s.db.NewSelect().Model((*roomAdminRecord)(nil)).
		Column("username").
		Where("room_slug = ?", slug).
		Scan(ctx, &admins)
	if err != nil {
		return nil, fmt.Errorf("select room admins: %w", err)
	}

	return &domain.Room{
		Slug:      rec.Slug,
		Name:      rec.Name,
		Creator:   rec.Creator,
		Password:  rec.Password,
		UserLimit: rec.UserLimit,
		Muted:     rec.Muted,
		Admins:    admins,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *DB) SaveRoom(ctx context.Context, room *domain.Room) error {
	res, err := s.db.NewUpdate().Model((*roomRecord)(nil)).
		Set("name = ?", room.Name).
		Set("user_limit = ?", room.UserLimit).
		Set("is_muted = ?", room.Muted).
		Where("slug = ?", room.Slug).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DB) DeleteRoom(ctx context.Context, slug string) error {
	room, err := s.GetRoom(ctx, slug)
	if err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*messageHideRecord)(nil)).
			Where("message_id IN (SELECT id FROM messages WHERE room_name = ?)", room.Name).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete message hides: %w", err)
		}
		if _, err := tx.NewDelete().Model((*messageRecord)(nil)).
			Where("room_name = ?", room.Name).Exec(ctx); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		for _, m := range []any{(*banRecord)(nil), (*muteRecord)(nil), (*roomAdminRecord)(nil)} {
			if _, err := tx.NewDelete().Model(m).Where("room_slug = ?", slug).Exec(ctx); err != nil {
				return fmt.Errorf("delete room relations: %w", err)
			}
		}
		if _, err := tx.NewDelete().Model((*roomRecord)(nil)).
			Where("slug = ?", slug).Exec(ctx); err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
		return nil
	})
}

func (s *DB) ListRooms(ctx context.Context) ([]*domain.Room, error) {
	var recs []roomRecord
	err := s.db.NewSelect().Model(&recs).OrderExpr("created_at DESC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	out := make([]*domain.Room, 0, len(recs))
	for _, rec := range recs {
		out = append(out, &domain.Room{
			Slug:      rec.Slug,
			Name:      rec.Name,
			Creator:   rec.Creator,
			Password:  rec.Password,
			UserLimit: rec.UserLimit,
			Muted:     rec.Muted,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

func (s *DB) AddAdmin(ctx context.Context, slug, username string) error {
	rec := &roomAdminRecord{RoomSlug: slug, Username: username}
	_, err := s.db.NewInsert().Model(rec).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert room admin: %w", err)
	}
	return nil
}

func (s *DB) RemoveAdmin(ctx context.Context, slug, username string) error {
	_, err := s.db.NewDelete().Model((*roomAdminRecord)(nil)).
		Where("room_slug = ? AND username = ?", slug, username).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete room admin: %w", err)
	}
	return nil
}

// --- bans and mutes ---

func (s *DB) CreateBan(ctx context.Context, slug, username string) error {
	rec := &banRecord{RoomSlug: slug, Username: username, BannedAt: time.Now()}
	_, err := s.db.NewInsert().Model(rec).On("CONFLICT DO NOTHING").Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert ban: %w", err)
	}
	return nil
}

func (s *DB) IsBanned(ctx context.Context, slug, username string) (bool, error) {
	ok, err := s.db.NewSelect().Model((*banRecord)(nil)).
		Where("room_slug = ? AND username = ?", slug, username).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("select ban: %w", err)
	}
	return ok, nil
}

func (s *DB) ListBans(ctx context.Context, slug string) ([]string, error) {
	var names []string
	err := s.db.NewSelect().Model((*banRecord)(nil)).
		Column("username").
		Where("room_slug = ?", slug).
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("select bans: %w", err)
	}
	return names, nil
}

func (s *DB) ToggleMute(ctx context.Context, slug, username string) (bool, error) {
	exists, err := s.IsMuted(ctx, slug, username)
	if err != nil {
		return false, err
	}
	if exists {
		_, err := s.db.NewDelete().Model((*muteRecord)(nil)).
			Where("room_slug = ? AND username = ?", slug, username).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("delete mute: %w", err)
		}
		return false, nil
	}
	rec := &muteRecord{RoomSlug: slug, Username: username, MutedAt: time.Now()}
	if _, err := s.db.NewInsert().Model(rec).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return false, fmt.Errorf("insert mute: %w", err)
	}
	return true, nil
}

func (s *DB) IsMuted(ctx context.Context, slug, username string) (bool, error) {
	ok, err := s.db.NewSelect().Model((*muteRecord)(nil)).
		Where("room_slug = ? AND username = ?", slug, username).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("select mute: %w", err)
	}
	return ok, nil
}

func (s *DB) ListMutes(ctx context.Context, slug string) ([]string, error) {
	var names []string
	err := s.db.NewSelect().Model((*muteRecord)(nil)).
		Column("username").
		Where("room_slug = ?", slug).
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("select mutes: %w", err)
	}
	return names, nil
}

// --- messages ---

func (s *DB) CreateMessage(ctx context.Context, author, roomName, content, parentID string) (*domain.Message, error) {
	msg := &domain.Message{
		ID:        ulid.Make().String(),
		Author:    author,
		RoomName:  roomName,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if parentID != "" {
		parent, err := s.GetMessage(ctx, parentID)
		switch {
		case errors.Is(err, ErrNotFound):
			// vanished parent, save as a plain message
		case err != nil:
			return nil, err
		default:
			msg.ParentID = parent.ID
			msg.Parent = &domain.MessageRef{Author: parent.Author, Content: parent.Content}
		}
	}
	rec := &messageRecord{
		ID:        msg.ID,
		Author:    msg.Author,
		RoomName:  msg.RoomName,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		ParentID:  msg.ParentID,
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *DB) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	rec := new(messageRecord)
	err := s.db.NewSelect().Model(rec).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}
	return recordToMessage(rec), nil
}

func (s *DB) MarkDeletedForEveryone(ctx context.Context, id, adminName string) error {
	res, err := s.db.NewUpdate().Model((*messageRecord)(nil)).
		Set("deleted_for_everyone = ?", true).
		Set("deleted_by_admin = ?", adminName).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DB) HideMessage(ctx context.Context, id, username string) error {
	ok, err := s.db.NewSelect().Model((*messageRecord)(nil)).Where("id = ?", id).Exists(ctx)
	if err != nil {
		return fmt.Errorf("select message: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	rec := &messageHideRecord{MessageID: id, Username: username}
	if _, err := s.db.NewInsert().Model(rec).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert message hide: %w", err)
	}
	return nil
}

func (s *DB) HideRoomMessages(ctx context.Context, roomName, username string) error {
	var ids []string
	err := s.db.NewSelect().Model((*messageRecord)(nil)).
		Column("id").
		Where("room_name = ?", roomName).
		Scan(ctx, &ids)
	if err != nil {
		return fmt.Errorf("select message ids: %w", err)
	}
	for _, id := range ids {
		if err := s.HideMessage(ctx, id, username); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

func (s *DB) QueryMessages(ctx context.Context, roomName, viewer string, limit int) ([]*domain.Message, error) {
	var recs []messageRecord
	q := s.db.NewSelect().Model(&recs).
		Where("room_name = ?", roomName).
		OrderExpr("created_at ASC").
		Limit(limit)
	if viewer != "" {
		q = q.Where("NOT EXISTS (SELECT 1 FROM message_hides mh WHERE mh.message_id = m.id AND mh.username = ?)", viewer)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}

	out := make([]*domain.Message, 0, len(recs))
	for i := range recs {
		msg := recordToMessage(&recs[i])
		if msg.ParentID != "" {
			if parent, err := s.GetMessage(ctx, msg.ParentID); err == nil {
				msg.Parent = &domain.MessageRef{Author: parent.Author, Content: parent.Content}
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *DB) ListAuthors(ctx context.Context, roomName string) ([]string, error) {
	var names []string
	err := s.db.NewSelect().Model((*messageRecord)(nil)).
		ColumnExpr("DISTINCT author").
		Where("room_name = ?", roomName).
		Scan(ctx, &names)
	if err != nil {
		return nil, fmt.Errorf("select authors: %w", err)
	}
	return names, nil
}

func recordToMessage(rec *messageRecord) *domain.Message {
	return &domain.Message{
		ID:                 rec.ID,
		Author:             rec.Author,
		RoomName:           rec.RoomName,
		Content:            rec.Content,
		CreatedAt:          rec.CreatedAt,
		ParentID:           rec.ParentID,
		DeletedForEveryone: rec.DeletedForEveryone,
		DeletedByAdmin:     rec.DeletedByAdmin,
	}
}

// --- users ---

func (s *DB) CreateUser(ctx context.Context, username, passwordHash string) error {
	ok, err := s.db.NewSelect().Model((*userRecord)(nil)).
		Where("username = ?", username).Exists(ctx)
	if err != nil {
		return fmt.Errorf("select user: %w", err)
	}
	if ok {
		return ErrUserExists
	}
	rec := &userRecord{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *DB) GetUser(ctx context.Context, username string) (*domain.Profile, error) {
	rec := new(userRecord)
	err := s.db.NewSelect().Model(rec).Where("username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &domain.Profile{
		Username:  rec.Username,
		AvatarURL: rec.AvatarURL,
		LastSeen:  rec.LastSeen,
	}, nil
}

func (s *DB) Credentials(ctx context.Context, username string) (string, error) {
	rec := new(userRecord)
	err := s.db.NewSelect().Model(rec).
		Column("password_hash").
		Where("username = ?", username).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select credentials: %w", err)
	}
	return rec.PasswordHash, nil
}

func (s *DB) SetAvatar(ctx context.Context, username, avatarURL string) error {
	res, err := s.db.NewUpdate().Model((*userRecord)(nil)).
		Set("avatar_url = ?", avatarURL).
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update avatar: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DB) SetLastSeen(ctx context.Context, username string, t time.Time) error {
	_, err := s.db.NewUpdate().Model((*userRecord)(nil)).
		Set("last_seen = ?", t).
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Zaiknown/chat-project/internal/domain"
)

// MemStore is a map-backed Store used by tests and the "memory" database
// driver. Now is overridable so delete-window tests can move the clock.
type MemStore struct {
	mu sync.RWMutex

	Now func() time.Time

	users    map[string]*userRecord
	rooms    map[string]*domain.Room
	admins   map[string]map[string]bool // slug -> username
	bans     map[string]map[string]bool
	mutes    map[string]map[string]bool
	messages map[string]*domain.Message
	hides    map[string]map[string]bool // message id -> username
	order    []string                   // message ids in insertion order
}

func NewMemStore() *MemStore {
	return &MemStore{
		Now:      time.Now,
		users:    make(map[string]*userRecord),
		rooms:    make(map[string]*domain.Room),
		admins:   make(map[string]map[string]bool),
		bans:     make(map[string]map[string]bool),
		mutes:    make(map[string]map[string]bool),
		messages: make(map[string]*domain.Message),
		hides:    make(map[string]map[string]bool),
	}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) CreateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Slug]; ok {
		return ErrRoomExists
	}
	for _, r := range s.rooms {
		if r.Name == room.Name {
			return ErrRoomExists
		}
	}
	clone := *room
	s.rooms[room.Slug] = &clone
	return nil
}

func (s *MemStore) GetRoom(_ context.Context, slug string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[slug]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r
	out.Admins = sortedKeys(s.admins[slug])
	return &out, nil
}

func (s *MemStore) SaveRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[room.Slug]
	if !ok {
		return ErrNotFound
	}
	r.Name = room.Name
	r.UserLimit = room.UserLimit
	r.Muted = room.Muted
	return nil
}

func (s *MemStore) DeleteRoom(_ context.Context, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[slug]
	if !ok {
		return ErrNotFound
	}
	for id, m := range s.messages {
		if m.RoomName == r.Name {
			delete(s.messages, id)
			delete(s.hides, id)
		}
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.messages[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	delete(s.rooms, slug)
	delete(s.admins, slug)
	delete(s.bans, slug)
	delete(s.mutes, slug)
	return nil
}

func (s *MemStore) ListRooms(_ context.Context) ([]*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Room, 0, len(s.rooms))
	for slug, r := range s.rooms {
		room := *r
		room.Admins = sortedKeys(s.admins[slug])
		out = append(out, &room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) AddAdmin(_ context.Context, slug, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admins[slug] == nil {
		s.admins[slug] = make(map[string]bool)
	}
	s.admins[slug][username] = true
	return nil
}

func (s *MemStore) RemoveAdmin(_ context.Context, slug, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.admins[slug], username)
	return nil
}

func (s *MemStore) CreateBan(_ context.Context, slug, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bans[slug] == nil {
		s.bans[slug] = make(map[string]bool)
	}
	s.bans[slug][username] = true
	return nil
}

func (s *MemStore) IsBanned(_ context.Context, slug, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bans[slug][username], nil
}

func (s *MemStore) ListBans(_ context.Context, slug string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.bans[slug]), nil
}

func (s *MemStore) ToggleMute(_ context.Context, slug, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutes[slug][username] {
		delete(s.mutes[slug], username)
		return false, nil
	}
	if s.mutes[slug] == nil {
		s.mutes[slug] = make(map[string]bool)
	}
	s.mutes[slug][username] = true
	return true, nil
}

func (s *MemStore) IsMuted(_ context.Context, slug, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutes[slug][username], nil
}

func (s *MemStore) ListMutes(_ context.Context, slug string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.mutes[slug]), nil
}

func (s *MemStore) CreateMessage(_ context.Context, author, roomName, content, parentID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := &domain.Message{
		ID:        ulid.Make().String(),
		Author:    author,
		RoomName:  roomName,
		Content:   content,
		CreatedAt: s.Now(),
	}
	if parent, ok := s.messages[parentID]; ok {
		msg.ParentID = parent.ID
		msg.Parent = &domain.MessageRef{Author: parent.Author, Content: parent.Content}
	}
	s.messages[msg.ID] = msg
	s.order = append(s.order, msg.ID)
	return cloneMessage(msg), nil
}

func (s *MemStore) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *MemStore) MarkDeletedForEveryone(_ context.Context, id, adminName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return ErrNotFound
	}
	m.DeletedForEveryone = true
	m.DeletedByAdmin = adminName
	return nil
}

func (s *MemStore) HideMessage(_ context.Context, id, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return ErrNotFound
	}
	if s.hides[id] == nil {
		s.hides[id] = make(map[string]bool)
	}
	s.hides[id][username] = true
	return nil
}

func (s *MemStore) HideRoomMessages(_ context.Context, roomName, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range s.messages {
		if m.RoomName != roomName {
			continue
		}
		if s.hides[id] == nil {
			s.hides[id] = make(map[string]bool)
		}
		s.hides[id][username] = true
	}
	return nil
}

func (s *MemStore) QueryMessages(_ context.Context, roomName, viewer string, limit int) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Message
	for _, id := range s.order {
		m := s.messages[id]
		if m == nil || m.RoomName != roomName {
			continue
		}
		if viewer != "" && s.hides[id][viewer] {
			continue
		}
		out = append(out, cloneMessage(m))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemStore) ListAuthors(_ context.Context, roomName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, m := range s.messages {
		if m.RoomName == roomName {
			seen[m.Author] = true
		}
	}
	return sortedKeys(seen), nil
}

func (s *MemStore) CreateUser(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = &userRecord{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    s.Now(),
	}
	return nil
}

func (s *MemStore) GetUser(_ context.Context, username string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &domain.Profile{
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		LastSeen:  u.LastSeen,
	}, nil
}

func (s *MemStore) Credentials(_ context.Context, username string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return "", ErrNotFound
	}
	return u.PasswordHash, nil
}

func (s *MemStore) SetAvatar(_ context.Context, username, avatarURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	u.AvatarURL = avatarURL
	return nil
}

func (s *MemStore) SetLastSeen(_ context.Context, username string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[username]; ok {
		u.LastSeen = t
	}
	return nil
}

func cloneMessage(m *domain.Message) *domain.Message {
	out := *m
	if m.Parent != nil {
		ref := *m.Parent
		out.Parent = &ref
	}
	return &out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zaiknown/chat-project/internal/chat"
	"github.com/Zaiknown/chat-project/internal/config"
	"github.com/Zaiknown/chat-project/internal/core"
	"github.com/Zaiknown/chat-project/internal/domain"
	"github.com/Zaiknown/chat-project/internal/storage"
)

type fakeTransport struct {
	mu        sync.Mutex
	frames    []core.Frame
	closed    bool
	closeCode int
}

func (f *fakeTransport) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("closed")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeTransport) CloseWithCode(code int, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCode = code
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeTransport) events(t *testing.T, typ string) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		if typ == "" || m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeTransport) drain() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type fixture struct {
	ctl       *Controller
	store     *storage.MemStore
	directory *chat.Directory
	presence  *core.Presence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		ReadLimit:       32768,
		PingPeriod:      time.Minute,
		HistoryLimit:    50,
		MsgRateLimit:    1000,
		MsgRateInterval: time.Second,
	}
	store := storage.NewMemStore()
	presence := core.NewPresence()
	bus := core.NewBus()
	directory := chat.NewDirectory(store)
	moderation := chat.NewModeration(store)
	roster := chat.NewRoster(store, presence)
	ctl := NewController(cfg, store, directory, moderation, roster, presence, bus)

	ctx := context.Background()
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.CreateUser(ctx, name, "x"))
	}
	return &fixture{ctl: ctl, store: store, directory: directory, presence: presence}
}

func (f *fixture) createRoom(t *testing.T, name, creator string, limit int) *domain.Room {
	t.Helper()
	room, err := f.directory.Create(context.Background(), name, creator, "", limit)
	require.NoError(t, err)
	return room
}

func (f *fixture) connect(t *testing.T, username, slug string) (*session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	sess, rej := f.ctl.connect(context.Background(), username, slug, tr)
	require.Nil(t, rej, "expected successful connect for %s", username)
	return sess, tr
}

func (f *fixture) reject(t *testing.T, username, slug string) *rejection {
	t.Helper()
	tr := &fakeTransport{}
	sess, rej := f.ctl.connect(context.Background(), username, slug, tr)
	require.Nil(t, sess)
	require.NotNil(t, rej, "expected rejection for %s joining %s", username, slug)
	return rej
}

func send(sess *session, payload string) {
	sess.handleInbound(context.Background(), []byte(payload))
}

func TestConnectRejections(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 2)

	t.Run("unauthenticated", func(t *testing.T) {
		rej := f.reject(t, "", room.Slug)
		assert.Equal(t, 0, rej.code)
	})

	t.Run("unknown room", func(t *testing.T) {
		rej := f.reject(t, "alice", "no-such-room")
		assert.Equal(t, CloseRoomNotFound, rej.code)
	})

	t.Run("banned user never registers", func(t *testing.T) {
		require.NoError(t, f.store.CreateBan(context.Background(), room.Slug, "carol"))
		rej := f.reject(t, "carol", room.Slug)
		assert.Equal(t, CloseBanned, rej.code)
		assert.NotContains(t, f.presence.Snapshot(domain.RoomGroup(room.Slug)), "carol")
	})

	t.Run("capacity", func(t *testing.T) {
		f.connect(t, "alice", room.Slug)
		f.connect(t, "bob", room.Slug) // second of two fits
		rej := f.reject(t, "dave", room.Slug)
		assert.Equal(t, CloseRoomFull, rej.code)
	})

	t.Run("direct room excludes third parties", func(t *testing.T) {
		rej := f.reject(t, "carol", domain.DirectSlug("alice", "bob"))
		assert.Equal(t, CloseRoomNotFound, rej.code)
	})
}

func TestJoinSendsStateAndNotices(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	_, aliceTr := f.connect(t, "alice", room.Slug)

	states := aliceTr.events(t, "room_state_update")
	require.Len(t, states, 1)
	assert.Equal(t, false, states[0]["is_muted"])
	assert.Equal(t, true, states[0]["is_admin"], "creator sees admin state")

	aliceTr.drain()
	_, bobTr := f.connect(t, "bob", room.Slug)

	notices := aliceTr.events(t, "system_message")
	require.NotEmpty(t, notices)
	assert.Equal(t, "bob joined the room.", notices[0]["message"])
	assert.NotEmpty(t, aliceTr.events(t, "user_list_update"))

	bobStates := bobTr.events(t, "room_state_update")
	require.Len(t, bobStates, 1)
	assert.Equal(t, false, bobStates[0]["is_admin"])
}

func TestDirectRoomSuppressesJoinAndLeaveNotices(t *testing.T) {
	f := newFixture(t)
	slug := domain.DirectSlug("alice", "bob")

	aliceSess, aliceTr := f.connect(t, "alice", slug)
	_, bobTr := f.connect(t, "bob", slug)

	assert.Empty(t, aliceTr.events(t, "system_message"), "no join notices in direct rooms")
	assert.Empty(t, aliceTr.events(t, "room_state_update"), "no persisted state to snapshot")

	bobTr.drain()
	aliceSess.teardown(context.Background())
	assert.Empty(t, bobTr.events(t, "system_message"), "no leave notice in direct rooms")
	assert.NotEmpty(t, bobTr.events(t, "user_list_update"), "roster still refreshes")
}

// The end-to-end scenario: creation, join broadcast, messaging,
// promotion, room mute, and a muted bystander.
func TestRoomScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "general", "alice", 10)

	aliceSess, aliceTr := f.connect(t, "alice", room.Slug)
	_, bobTr := f.connect(t, "bob", room.Slug)

	joins := aliceTr.events(t, "system_message")
	require.NotEmpty(t, joins)
	assert.Contains(t, joins[len(joins)-1]["message"], "bob")

	// alice sends "hi"; bob receives it with author attribution
	send(aliceSess, `{"type":"message","message":"hi"}`)
	msgs := bobTr.events(t, "chat_message")
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice", msgs[0]["username"])
	assert.Equal(t, "hi", msgs[0]["message"])

	// alice promotes bob: targeted admin-status update plus notice
	send(aliceSess, `{"type":"admin_action","action":"promote","target":"bob"}`)
	statuses := bobTr.events(t, "admin_status_update")
	require.Len(t, statuses, 1)
	assert.Equal(t, true, statuses[0]["is_admin"])
	assert.Empty(t, aliceTr.events(t, "admin_status_update"), "targeted event reaches only bob")

	// bob, now admin, mutes the room
	bobSess, ok := f.presence.Lookup(domain.RoomGroup(room.Slug), "bob")
	require.True(t, ok)
	send(bobSess.(*session), `{"type":"admin_action","action":"toggle_mute"}`)
	mutes := aliceTr.events(t, "mute_status_update")
	require.Len(t, mutes, 1)
	assert.Equal(t, true, mutes[0]["is_muted"])

	// the creator still sends while the room is muted
	bobTr.drain()
	send(aliceSess, `{"type":"message","message":"still here"}`)
	require.Len(t, bobTr.events(t, "chat_message"), 1)

	// carol is neither admin nor creator: local denial, no broadcast
	carolSess, carolTr := f.connect(t, "carol", room.Slug)
	bobTr.drain()
	carolTr.drain()
	send(carolSess, `{"type":"message","message":"let me in"}`)
	denials := carolTr.events(t, "system_message")
	require.Len(t, denials, 1)
	assert.Empty(t, bobTr.events(t, "chat_message"), "bob receives nothing from carol")

	stored, err := f.store.QueryMessages(ctx, room.Name, "", 50)
	require.NoError(t, err)
	for _, m := range stored {
		assert.NotEqual(t, "let me in", m.Content, "denied message is never persisted")
	}
}

func TestKickPropagation(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	aliceSess, _ := f.connect(t, "alice", room.Slug)
	_, bobTr := f.connect(t, "bob", room.Slug)

	send(aliceSess, `{"type":"admin_action","action":"kick","target":"bob"}`)

	assert.Equal(t, CloseBanned, bobTr.closeCode, "kicked session closes with 4001")
	assert.NotContains(t, f.presence.Snapshot(domain.RoomGroup(room.Slug)), "bob")

	rej := f.reject(t, "bob", room.Slug)
	assert.Equal(t, CloseBanned, rej.code, "ban persists across reconnects")
}

func TestKickByNonAdminDenied(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	f.connect(t, "alice", room.Slug)
	bobSess, bobTr := f.connect(t, "bob", room.Slug)
	bobTr.drain()

	send(bobSess, `{"type":"admin_action","action":"kick","target":"alice"}`)
	denials := bobTr.events(t, "system_message")
	require.Len(t, denials, 1)
	assert.Contains(t, denials[0]["message"], "admin permission")
	assert.Contains(t, f.presence.Snapshot(domain.RoomGroup(room.Slug)), "alice")
}

func TestUserMuteToggle(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	aliceSess, aliceTr := f.connect(t, "alice", room.Slug)
	carolSess, carolTr := f.connect(t, "carol", room.Slug)

	send(aliceSess, `{"type":"admin_action","action":"mute_user","target":"carol"}`)

	carolTr.drain()
	send(carolSess, `{"type":"message","message":"hello?"}`)
	denials := carolTr.events(t, "system_message")
	require.Len(t, denials, 1)
	assert.Contains(t, denials[0]["message"], "muted")

	// toggle again unmutes
	send(aliceSess, `{"type":"admin_action","action":"mute_user","target":"carol"}`)
	carolTr.drain()
	send(carolSess, `{"type":"message","message":"hello!"}`)
	assert.Len(t, carolTr.events(t, "chat_message"), 1)

	aliceTr.drain()
	send(aliceSess, `{"type":"admin_action","action":"mute_user","target":"ghost"}`)
	errs := aliceTr.events(t, "system_message")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0]["message"], "not found")
}

func TestDeleteScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.createRoom(t, "General", "alice", 10)

	aliceSess, aliceTr := f.connect(t, "alice", room.Slug)
	bobSess, bobTr := f.connect(t, "bob", room.Slug)

	msg, err := f.store.CreateMessage(ctx, "bob", room.Name, "delete me", "")
	require.NoError(t, err)

	t.Run("for_me is local only", func(t *testing.T) {
		aliceTr.drain()
		bobTr.drain()
		send(aliceSess, fmt.Sprintf(`{"type":"delete_message","scope":"for_me","message_id":%q}`, msg.ID))
		require.Len(t, aliceTr.events(t, "message_deleted_for_me"), 1)
		assert.Empty(t, bobTr.events(t, "message_deleted_for_me"))
	})

	t.Run("for_everyone by non-author is denied", func(t *testing.T) {
		aliceTr.drain()
		bobTr.drain()
		send(aliceSess, fmt.Sprintf(`{"type":"delete_message","scope":"for_everyone","message_id":%q}`, msg.ID))
		denials := aliceTr.events(t, "system_message")
		require.Len(t, denials, 1)
		assert.Contains(t, denials[0]["message"], "own messages")
		assert.Empty(t, bobTr.events(t, "message_deleted_for_everyone"))
	})

	t.Run("for_everyone by author broadcasts", func(t *testing.T) {
		aliceTr.drain()
		send(bobSess, fmt.Sprintf(`{"type":"delete_message","scope":"for_everyone","message_id":%q}`, msg.ID))
		deletions := aliceTr.events(t, "message_deleted_for_everyone")
		require.Len(t, deletions, 1)
		assert.Equal(t, false, deletions[0]["deleted_by_admin"])
	})

	t.Run("admin_delete carries attribution", func(t *testing.T) {
		second, err := f.store.CreateMessage(ctx, "bob", room.Name, "rude", "")
		require.NoError(t, err)
		bobTr.drain()
		send(aliceSess, fmt.Sprintf(`{"type":"delete_message","scope":"admin_delete","message_id":%q}`, second.ID))
		deletions := bobTr.events(t, "message_deleted_for_everyone")
		require.Len(t, deletions, 1)
		assert.Equal(t, true, deletions[0]["deleted_by_admin"])
		assert.Equal(t, "alice", deletions[0]["admin_username"])
	})

	t.Run("admin_delete by non-admin is denied", func(t *testing.T) {
		third, err := f.store.CreateMessage(ctx, "alice", room.Name, "untouchable", "")
		require.NoError(t, err)
		bobTr.drain()
		send(bobSess, fmt.Sprintf(`{"type":"delete_message","scope":"admin_delete","message_id":%q}`, third.ID))
		denials := bobTr.events(t, "system_message")
		require.Len(t, denials, 1)
		assert.Contains(t, denials[0]["message"], "admin permission")
	})

	t.Run("vanished message", func(t *testing.T) {
		bobTr.drain()
		send(bobSess, `{"type":"delete_message","scope":"for_everyone","message_id":"missing"}`)
		denials := bobTr.events(t, "system_message")
		require.Len(t, denials, 1)
		assert.Contains(t, denials[0]["message"], "not found")
	})
}

func TestLeaveNoticeNotDuplicated(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	_, aliceTr := f.connect(t, "alice", room.Slug)
	bobSess, _ := f.connect(t, "bob", room.Slug)

	aliceTr.drain()
	send(bobSess, `{"type":"leave_chat"}`)
	bobSess.teardown(context.Background())

	var leaves int
	for _, e := range aliceTr.events(t, "system_message") {
		if e["message"] == "bob left the room." {
			leaves++
		}
	}
	assert.Equal(t, 1, leaves, "explicit leave suppresses the disconnect notice")
	assert.NotContains(t, f.presence.Snapshot(domain.RoomGroup(room.Slug)), "bob")
}

func TestTypingAndHeartbeat(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	aliceSess, aliceTr := f.connect(t, "alice", room.Slug)
	_, bobTr := f.connect(t, "bob", room.Slug)

	send(aliceSess, `{"type":"typing","is_typing":true}`)
	signals := bobTr.events(t, "typing_signal")
	require.Len(t, signals, 1)
	assert.Equal(t, "alice", signals[0]["username"])
	assert.Equal(t, true, signals[0]["is_typing"])

	aliceTr.drain()
	bobTr.drain()
	send(aliceSess, `{"type":"heartbeat"}`)
	pongs := aliceTr.events(t, "heartbeat")
	require.Len(t, pongs, 1)
	assert.Equal(t, "pong", pongs[0]["status"])
	assert.Empty(t, bobTr.events(t, "heartbeat"), "pong is local")
	assert.NotEmpty(t, bobTr.events(t, "user_list_update"), "heartbeat refreshes the roster")

	profile, err := f.store.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, profile.Online(time.Now()))
}

func TestSettingsUpdate(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	aliceSess, aliceTr := f.connect(t, "alice", room.Slug)
	bobSess, bobTr := f.connect(t, "bob", room.Slug)

	t.Run("non-admin denied locally", func(t *testing.T) {
		bobTr.drain()
		aliceTr.drain()
		send(bobSess, `{"type":"chat_settings","user_limit":5}`)
		denials := bobTr.events(t, "system_message")
		require.Len(t, denials, 1)
		assert.Contains(t, denials[0]["message"], "permission")
		assert.Empty(t, aliceTr.events(t, "system_message"), "denial is never broadcast")
	})

	t.Run("invalid limit rejected", func(t *testing.T) {
		aliceTr.drain()
		send(aliceSess, `{"type":"chat_settings","user_limit":0}`)
		denials := aliceTr.events(t, "system_message")
		require.Len(t, denials, 1)
		assert.Contains(t, denials[0]["message"], "Invalid user limit")
	})

	t.Run("creator updates and room is notified", func(t *testing.T) {
		bobTr.drain()
		send(aliceSess, `{"type":"chat_settings","room_name":"General v2","user_limit":20}`)
		notices := bobTr.events(t, "system_message")
		require.Len(t, notices, 1)
		assert.Contains(t, notices[0]["message"], "updated by alice")

		fresh, err := f.directory.Lookup(context.Background(), room.Slug)
		require.NoError(t, err)
		assert.Equal(t, "General v2", fresh.Name)
		assert.Equal(t, 20, fresh.UserLimit)
	})
}

func TestMalformedPayloadsAreDiscarded(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	aliceSess, aliceTr := f.connect(t, "alice", room.Slug)
	aliceTr.drain()

	send(aliceSess, `{not json`)
	send(aliceSess, `{"type":"warp_drive"}`)
	send(aliceSess, `{"type":"typing"}`)
	assert.Empty(t, aliceTr.events(t, ""), "bad payloads get no reply")

	// the session is still active afterwards
	send(aliceSess, `{"type":"message","message":"still alive"}`)
	assert.Len(t, aliceTr.events(t, "chat_message"), 1)
}

func TestClosedSessionIgnoresEvents(t *testing.T) {
	f := newFixture(t)
	room := f.createRoom(t, "General", "alice", 10)

	aliceSess, aliceTr := f.connect(t, "alice", room.Slug)
	aliceSess.teardown(context.Background())
	aliceTr.drain()

	send(aliceSess, `{"type":"message","message":"ghost"}`)
	assert.Empty(t, aliceTr.events(t, ""))

	msgs, err := f.store.QueryMessages(context.Background(), room.Name, "", 50)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDirectRoomMessageFlow(t *testing.T) {
	f := newFixture(t)
	slug := domain.DirectSlug("alice", "bob")

	aliceSess, _ := f.connect(t, "alice", slug)
	_, bobTr := f.connect(t, "bob", slug)
	bobTr.drain()

	send(aliceSess, `{"type":"message","message":"psst"}`)
	msgs := bobTr.events(t, "chat_message")
	require.Len(t, msgs, 1)
	assert.Equal(t, "psst", msgs[0]["message"])

	stored, err := f.store.QueryMessages(context.Background(), slug, "", 50)
	require.NoError(t, err)
	require.Len(t, stored, 1, "direct messages are scoped by the slug")
}

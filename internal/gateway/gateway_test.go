package gateway_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ShedrackAmodu/school-comm-service/internal/config"
	"github.com/ShedrackAmodu/school-comm-service/internal/directory"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/gateway"
	"github.com/ShedrackAmodu/school-comm-service/internal/middleware"
	"github.com/ShedrackAmodu/school-comm-service/internal/notify"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/internal/repository"
	"github.com/ShedrackAmodu/school-comm-service/internal/room"
	"github.com/ShedrackAmodu/school-comm-service/internal/router"
	pkgjwt "github.com/ShedrackAmodu/school-comm-service/pkg/jwt"
)

const frameWait = 2 * time.Second

type fixture struct {
	t      *testing.T
	key    *rsa.PrivateKey
	server *httptest.Server
	reg    *registry.Registry
	rooms  room.Service
	notes  notify.Service
	room   *domain.ChatRoom
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	reg := registry.New()
	rt := router.NewLocal(reg, router.Config{SendTimeout: time.Second, InstanceID: "test"})

	dir := directory.NewStaticDirectory(
		directory.Entry{ID: "u1", Name: "Ada Obi", Roles: []string{domain.RoleTeacher}, Active: true},
		directory.Entry{ID: "u2", Name: "Ben Eze", Roles: []string{domain.RoleStudent}, Active: true},
		directory.Entry{ID: "u3", Name: "Chi Ibe", Roles: []string{domain.RoleStudent}, Active: true},
	)

	roomSvc := room.NewService(
		repository.NewMemoryRoomRepository(),
		repository.NewMemoryMessageRepository(),
		rt, reg, dir, nil,
		room.Config{},
	)
	notifySvc := notify.NewService(
		repository.NewMemoryNotificationRepository(),
		repository.NewMemoryPreferenceRepository(),
		dir, rt,
		notify.Config{},
	)

	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      5 * time.Second,
		MaxMessageSize: 4096,
		SendTimeout:    time.Second,
		SendBuffer:     32,
	}
	gw := gateway.New(reg, roomSvc, notifySvc, dir, wsCfg)

	r := mux.NewRouter()
	gw.RegisterRoutes(r, middleware.NewAuth(pkgjwt.NewVerifier(&key.PublicKey)))

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	created, err := roomSvc.CreateRoom(context.Background(), room.CreateRoomInput{
		Name:    "Physics 101",
		Kind:    domain.RoomKindClass,
		Members: []string{"u1", "u2"},
		Admins:  []string{"u1"},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	return &fixture{
		t:      t,
		key:    key,
		server: server,
		reg:    reg,
		rooms:  roomSvc,
		notes:  notifySvc,
		room:   created,
	}
}

func (f *fixture) token(userID, name string, roles ...string) string {
	now := time.Now()
	claims := pkgjwt.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		UserID:      userID,
		Username:    userID,
		DisplayName: name,
		Roles:       roles,
		Type:        "access",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(f.key)
	if err != nil {
		f.t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *fixture) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + path
}

func (f *fixture) dial(path, token string) (*websocket.Conn, *http.Response, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(f.wsURL(path), header)
}

func (f *fixture) connect(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := f.dial(path, token)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// frameEnvelope decodes any outbound frame. The message key is raw
// because it carries an object on message frames and a string on error
// frames.
type frameEnvelope struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message"`
	Count     int             `json:"count"`
	MessageID string          `json:"message_id"`
	IsTyping  bool            `json:"is_typing"`
	User      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
	Room struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Kind         string `json:"room_type"`
		MemberCount  int    `json:"member_count"`
		Participants []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"participants"`
	} `json:"room"`
	Notification struct {
		ID       string `json:"id"`
		Kind     string `json:"notification_type"`
		Title    string `json:"title"`
		Body     string `json:"message"`
		Priority string `json:"priority"`
	} `json:"notification"`
}

type messageBody struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Kind     string `json:"message_type"`
	Seq      uint64 `json:"seq"`
	IsRead   bool   `json:"is_read"`
	IsEdited bool   `json:"is_edited"`
	ReplyTo  string `json:"reply_to"`
	Sender   struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"sender"`
}

func (f frameEnvelope) message(t *testing.T) messageBody {
	t.Helper()
	var m messageBody
	if err := json.Unmarshal(f.Message, &m); err != nil {
		t.Fatalf("decode message body: %v", err)
	}
	return m
}

func (f frameEnvelope) errorText(t *testing.T) string {
	t.Helper()
	var s string
	if err := json.Unmarshal(f.Message, &s); err != nil {
		t.Fatalf("decode error text: %v", err)
	}
	return s
}

func readFrame(t *testing.T, conn *websocket.Conn) frameEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(frameWait))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var env frameEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("decode frame %q: %v", payload, err)
	}
	return env
}

func expectFrame(t *testing.T, conn *websocket.Conn, wantType string) frameEnvelope {
	t.Helper()
	env := readFrame(t, conn)
	if env.Type != wantType {
		t.Fatalf("frame type = %q, want %q", env.Type, wantType)
	}
	return env
}

// expectSilence asserts no frame arrives within the window. The read
// deadline poisons the connection, so call it last on a given conn.
func expectSilence(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(window))
	_, payload, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected frame %q", payload)
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("read failed: %v", err)
	}
}

func writeCommand(t *testing.T, conn *websocket.Conn, cmd any) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(frameWait)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestChatConnectReplaysRoomSnapshotAndHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.rooms.SendMessage(ctx, f.room.ID, "u1", "first", "", "")
	if err != nil {
		t.Fatalf("seed first: %v", err)
	}
	if _, err := f.rooms.SendMessage(ctx, f.room.ID, "u1", "second", "", ""); err != nil {
		t.Fatalf("seed second: %v", err)
	}
	if err := f.rooms.MarkRead(ctx, []string{first.ID}, "u2"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	conn := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u2", "Ben Eze", domain.RoleStudent))

	info := expectFrame(t, conn, "room_info")
	if info.Room.ID != f.room.ID || info.Room.Name != "Physics 101" {
		t.Fatalf("room snapshot = %+v", info.Room)
	}
	if info.Room.Kind != "class" || info.Room.MemberCount != 2 {
		t.Fatalf("room kind/members = %q/%d", info.Room.Kind, info.Room.MemberCount)
	}
	if len(info.Room.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(info.Room.Participants))
	}

	m1 := expectFrame(t, conn, "message").message(t)
	m2 := expectFrame(t, conn, "message").message(t)
	if m1.Seq != 1 || m2.Seq != 2 {
		t.Fatalf("replay seqs = %d,%d, want 1,2", m1.Seq, m2.Seq)
	}
	if m1.Content != "first" || m2.Content != "second" {
		t.Fatalf("replay bodies = %q,%q", m1.Content, m2.Content)
	}
	if m1.Sender.Name != "Ada Obi" {
		t.Fatalf("sender name = %q, want Ada Obi", m1.Sender.Name)
	}
	if !m1.IsRead {
		t.Fatalf("first message should be read by viewer")
	}
	if m2.IsRead {
		t.Fatalf("second message should be unread")
	}
}

func TestChatMessageLifecycleBroadcast(t *testing.T) {
	f := newFixture(t)

	sender := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u1", "Ada Obi", domain.RoleTeacher))
	expectFrame(t, sender, "room_info")
	peer := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u2", "Ben Eze", domain.RoleStudent))
	expectFrame(t, peer, "room_info")

	writeCommand(t, sender, map[string]any{"type": "chat_message", "content": "hello class"})

	got := expectFrame(t, sender, "message").message(t)
	echo := expectFrame(t, peer, "message").message(t)
	if got.ID == "" || got.ID != echo.ID {
		t.Fatalf("broadcast ids diverge: %q vs %q", got.ID, echo.ID)
	}
	if got.Seq != 1 || got.Content != "hello class" || got.Kind != "text" {
		t.Fatalf("message = %+v", got)
	}
	if echo.Sender.ID != "u1" || echo.Sender.Name != "Ada Obi" {
		t.Fatalf("sender ref = %+v", echo.Sender)
	}

	writeCommand(t, sender, map[string]any{
		"type": "edit_message", "message_id": got.ID, "content": "hello everyone",
	})
	edited := expectFrame(t, peer, "message_edited").message(t)
	if edited.ID != got.ID || edited.Content != "hello everyone" || !edited.IsEdited {
		t.Fatalf("edited = %+v", edited)
	}
	expectFrame(t, sender, "message_edited")

	writeCommand(t, sender, map[string]any{"type": "delete_message", "message_id": got.ID})
	deleted := expectFrame(t, peer, "message_deleted")
	if deleted.MessageID != got.ID {
		t.Fatalf("deleted id = %q, want %q", deleted.MessageID, got.ID)
	}
	expectFrame(t, sender, "message_deleted")
}

func TestChatCommandRejectionsStayPrivate(t *testing.T) {
	f := newFixture(t)

	sender := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u1", "Ada Obi", domain.RoleTeacher))
	expectFrame(t, sender, "room_info")
	peer := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u2", "Ben Eze", domain.RoleStudent))
	expectFrame(t, peer, "room_info")

	writeCommand(t, sender, map[string]any{"type": "chat_message", "content": "mine"})
	posted := expectFrame(t, sender, "message").message(t)
	expectFrame(t, peer, "message")

	// Editing someone else's message fails on the editor's socket only.
	writeCommand(t, peer, map[string]any{
		"type": "edit_message", "message_id": posted.ID, "content": "hijack",
	})
	if msg := expectFrame(t, peer, "error").errorText(t); !strings.Contains(msg, "not the sender") {
		t.Fatalf("error text = %q", msg)
	}

	if err := peer.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	if msg := expectFrame(t, peer, "error").errorText(t); msg != "invalid command format" {
		t.Fatalf("error text = %q", msg)
	}

	writeCommand(t, peer, map[string]any{"type": "warp_drive"})
	if msg := expectFrame(t, peer, "error").errorText(t); msg != "unknown command type" {
		t.Fatalf("error text = %q", msg)
	}

	writeCommand(t, peer, map[string]any{"type": "chat_message", "content": "   "})
	if msg := expectFrame(t, peer, "error").errorText(t); !strings.Contains(msg, "empty") {
		t.Fatalf("error text = %q", msg)
	}

	expectSilence(t, sender, 300*time.Millisecond)
}

func TestChatHandshakeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed, err := f.rooms.CreateRoom(ctx, room.CreateRoomInput{
		Name: "Archived", Members: []string{"u1"}, Admins: []string{"u1"},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := f.rooms.Deactivate(ctx, closed.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	cases := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"missing token", "/ws/chat/" + f.room.ID, "", http.StatusUnauthorized},
		{"not a member", "/ws/chat/" + f.room.ID, f.token("u3", "Chi Ibe", domain.RoleStudent), http.StatusForbidden},
		{"unknown room", "/ws/chat/no-such-room", f.token("u1", "Ada Obi", domain.RoleTeacher), http.StatusNotFound},
		{"inactive room", "/ws/chat/" + closed.ID, f.token("u1", "Ada Obi", domain.RoleTeacher), http.StatusGone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := f.dial(tc.path, tc.token)
			if err == nil {
				conn.Close()
				t.Fatalf("handshake unexpectedly accepted")
			}
			if resp == nil {
				t.Fatalf("no handshake response: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestTypingIndicatorRelay(t *testing.T) {
	f := newFixture(t)

	typist := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u1", "Ada Obi", domain.RoleTeacher))
	expectFrame(t, typist, "room_info")
	watcher := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u2", "Ben Eze", domain.RoleStudent))
	expectFrame(t, watcher, "room_info")

	writeCommand(t, typist, map[string]any{"type": "typing_start"})
	frame := expectFrame(t, watcher, "typing")
	if frame.User.ID != "u1" || frame.User.Name != "Ada Obi" || !frame.IsTyping {
		t.Fatalf("typing frame = %+v", frame)
	}

	writeCommand(t, typist, map[string]any{"type": "typing_stop"})
	frame = expectFrame(t, watcher, "typing")
	if frame.User.ID != "u1" || frame.IsTyping {
		t.Fatalf("typing stop frame = %+v", frame)
	}
}

func TestNotificationReplayAndLiveDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older, err := f.notes.Create(ctx, notify.CreateInput{
		RecipientID: "u2", Type: domain.NotificationAssignment,
		Title: "Homework", Body: "Due Friday",
	})
	if err != nil {
		t.Fatalf("seed older: %v", err)
	}
	if _, err := f.notes.Create(ctx, notify.CreateInput{
		RecipientID: "u2", Type: domain.NotificationGrade,
		Title: "Grade posted", Body: "Physics quiz", Priority: domain.PriorityHigh,
	}); err != nil {
		t.Fatalf("seed newer: %v", err)
	}

	conn := f.connect(t, "/ws/notifications", f.token("u2", "Ben Eze", domain.RoleStudent))

	if count := expectFrame(t, conn, "unread_count"); count.Count != 2 {
		t.Fatalf("replay unread = %d, want 2", count.Count)
	}
	newest := expectFrame(t, conn, "notification")
	if newest.Notification.Title != "Grade posted" || newest.Notification.Priority != "high" {
		t.Fatalf("newest replay = %+v", newest.Notification)
	}
	if got := expectFrame(t, conn, "notification"); got.Notification.Title != "Homework" {
		t.Fatalf("older replay = %+v", got.Notification)
	}

	if _, err := f.notes.Create(ctx, notify.CreateInput{
		RecipientID: "u2", Type: domain.NotificationAlert,
		Title: "Gate closes", Body: "5pm sharp",
	}); err != nil {
		t.Fatalf("live create: %v", err)
	}
	live := expectFrame(t, conn, "notification")
	if live.Notification.Title != "Gate closes" || live.Notification.Kind != "alert" {
		t.Fatalf("live push = %+v", live.Notification)
	}
	if count := expectFrame(t, conn, "unread_count"); count.Count != 3 {
		t.Fatalf("live unread = %d, want 3", count.Count)
	}

	writeCommand(t, conn, map[string]any{"type": "get_unread_count"})
	if count := expectFrame(t, conn, "unread_count"); count.Count != 3 {
		t.Fatalf("queried unread = %d, want 3", count.Count)
	}

	writeCommand(t, conn, map[string]any{
		"type": "mark_read", "notification_ids": []string{older.ID},
	})
	if count := expectFrame(t, conn, "unread_count"); count.Count != 2 {
		t.Fatalf("unread after mark_read = %d, want 2", count.Count)
	}

	writeCommand(t, conn, map[string]any{"type": "mark_all_read"})
	if count := expectFrame(t, conn, "unread_count"); count.Count != 0 {
		t.Fatalf("unread after mark_all_read = %d, want 0", count.Count)
	}
}

func TestChatSocketReceivesUserTargetedNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u2", "Ben Eze", domain.RoleStudent))
	expectFrame(t, conn, "room_info")

	if _, err := f.notes.Create(ctx, notify.CreateInput{
		RecipientID: "u2", Type: domain.NotificationMessage,
		Title: "New message", Body: "From Ada",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	note := expectFrame(t, conn, "notification")
	if note.Notification.Title != "New message" {
		t.Fatalf("notification = %+v", note.Notification)
	}
	if count := expectFrame(t, conn, "unread_count"); count.Count != 1 {
		t.Fatalf("unread = %d, want 1", count.Count)
	}
}

func TestBulkSocketRejectsNonStaffAtHandshake(t *testing.T) {
	f := newFixture(t)

	conn, resp, err := f.dial("/ws/notifications/bulk", f.token("u2", "Ben Eze", domain.RoleStudent))
	if err == nil {
		conn.Close()
		t.Fatalf("handshake unexpectedly accepted")
	}
	if resp == nil {
		t.Fatalf("no handshake response: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestBulkNotificationFanout(t *testing.T) {
	f := newFixture(t)

	staff := f.connect(t, "/ws/notifications/bulk", f.token("u1", "Ada Obi", domain.RoleTeacher))
	student := f.connect(t, "/ws/notifications", f.token("u2", "Ben Eze", domain.RoleStudent))
	expectFrame(t, student, "unread_count")

	// The bulk tag belongs to the bulk socket, not the plain one.
	writeCommand(t, student, map[string]any{
		"type": "send_bulk_notification", "title": "Nope", "message": "Nope",
	})
	if msg := expectFrame(t, student, "error").errorText(t); msg != "unknown command type" {
		t.Fatalf("plain socket error = %q", msg)
	}

	writeCommand(t, staff, map[string]any{
		"type": "send_bulk_notification", "title": "Bad",
	})
	if msg := expectFrame(t, staff, "error").errorText(t); !strings.Contains(msg, "title and message") {
		t.Fatalf("validation error = %q", msg)
	}

	writeCommand(t, staff, map[string]any{
		"type":         "send_bulk_notification",
		"title":        "Assembly",
		"message":      "Hall at 9am",
		"target_users": []string{"u2"},
	})

	note := expectFrame(t, student, "notification")
	if note.Notification.Title != "Assembly" || note.Notification.Kind != "announcement" {
		t.Fatalf("fanout notification = %+v", note.Notification)
	}
	if count := expectFrame(t, student, "unread_count"); count.Count != 1 {
		t.Fatalf("student unread = %d, want 1", count.Count)
	}

	sent := expectFrame(t, staff, "bulk_notification_sent")
	if sent.Count != 1 {
		t.Fatalf("bulk count = %d, want 1", sent.Count)
	}
}

func TestDisconnectDeregistersSession(t *testing.T) {
	f := newFixture(t)

	conn := f.connect(t, "/ws/chat/"+f.room.ID, f.token("u1", "Ada Obi", domain.RoleTeacher))
	expectFrame(t, conn, "room_info")

	waitFor(t, func() bool { return f.reg.Len() == 1 }, "session registration")
	if size := f.reg.GroupSize(domain.RoomGroup(f.room.ID)); size != 1 {
		t.Fatalf("room group size = %d, want 1", size)
	}

	conn.Close()

	waitFor(t, func() bool { return f.reg.Len() == 0 }, "session deregistration")
	if size := f.reg.GroupSize(domain.RoomGroup(f.room.ID)); size != 0 {
		t.Fatalf("room group size after close = %d, want 0", size)
	}
}

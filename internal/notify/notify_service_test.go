package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/directory"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/internal/repository"
	"github.com/ShedrackAmodu/school-comm-service/internal/router"
)

type captureSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *captureSink) Send(frame []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(frame))
	copy(buf, frame)
	s.frames = append(s.frames, buf)
	return nil
}

func (s *captureSink) Close() {}

func (s *captureSink) snapshot() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

type wireFrame struct {
	Type         string `json:"type"`
	Count        int    `json:"count"`
	Notification struct {
		ID    string `json:"id"`
		Kind  string `json:"notification_type"`
		Title string `json:"title"`
	} `json:"notification"`
}

func decodeFrames(t *testing.T, raw [][]byte) []wireFrame {
	t.Helper()
	out := make([]wireFrame, len(raw))
	for i, b := range raw {
		if err := json.Unmarshal(b, &out[i]); err != nil {
			t.Fatalf("failed to decode frame %d: %v", i, err)
		}
	}
	return out
}

// flakyNotificationRepo fails Create for chosen recipients.
type flakyNotificationRepo struct {
	repository.NotificationRepository
	failFor map[string]bool
}

func (r *flakyNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if r.failFor[n.RecipientID] {
		return errors.New("storage unavailable")
	}
	return r.NotificationRepository.Create(ctx, n)
}

type fixture struct {
	svc   Service
	reg   *registry.Registry
	repo  repository.NotificationRepository
	prefs repository.PreferenceRepository
	dir   *directory.StaticDirectory
}

func newFixture(t *testing.T, wrap func(repository.NotificationRepository) repository.NotificationRepository) *fixture {
	t.Helper()

	reg := registry.New()
	var repo repository.NotificationRepository = repository.NewMemoryNotificationRepository()
	if wrap != nil {
		repo = wrap(repo)
	}
	prefs := repository.NewMemoryPreferenceRepository()
	dir := directory.NewStaticDirectory(
		directory.Entry{ID: "alice", Name: "Alice", Roles: []string{domain.RoleTeacher}, Active: true},
		directory.Entry{ID: "bob", Name: "Bob", Roles: []string{domain.RoleStudent}, Active: true},
	)
	local := router.NewLocal(reg, router.Config{SendTimeout: time.Second, InstanceID: "test"})
	svc := NewService(repo, prefs, dir, local, Config{})

	return &fixture{svc: svc, reg: reg, repo: repo, prefs: prefs, dir: dir}
}

func (f *fixture) connect(sessionID, userID string) *captureSink {
	sink := &captureSink{}
	f.reg.Register(sessionID, domain.Identity{UserID: userID, Username: userID}, sink)
	f.reg.JoinGroup(sessionID, domain.UserGroup(userID))
	return sink
}

func TestCreateDeliversImmediately(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sink := f.connect("sess-1", "alice")

	n, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice",
		Type:        domain.NotificationGrade,
		Title:       "Grade posted",
		Body:        "Your physics grade is available",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if n.Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority medium, got %s", n.Priority)
	}

	frames := decodeFrames(t, sink.snapshot())
	if len(frames) != 2 {
		t.Fatalf("expected notification and unread_count frames, got %d", len(frames))
	}
	if frames[0].Type != domain.FrameNotification || frames[0].Notification.ID != n.ID {
		t.Fatalf("unexpected first frame: %+v", frames[0])
	}
	if frames[1].Type != domain.FrameUnreadCount || frames[1].Count != 1 {
		t.Fatalf("expected unread count 1, got %+v", frames[1])
	}

	stored, err := f.repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if stored.DeliveredAt == nil {
		t.Fatalf("expected delivered_at to be stamped")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{"missing recipient", CreateInput{Type: domain.NotificationAlert, Title: "t", Body: "b"}, ErrMissingRecipient},
		{"missing title", CreateInput{RecipientID: "alice", Type: domain.NotificationAlert, Body: "b"}, ErrMissingContent},
		{"invalid type", CreateInput{RecipientID: "alice", Type: "spam", Title: "t", Body: "b"}, ErrInvalidType},
		{"invalid priority", CreateInput{RecipientID: "alice", Type: domain.NotificationAlert, Title: "t", Body: "b", Priority: "extreme"}, ErrInvalidPriority},
	}
	for _, tc := range cases {
		if _, err := f.svc.Create(ctx, tc.input); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestScheduledNotificationWaitsForDeliverDue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sink := f.connect("sess-1", "alice")

	future := time.Now().UTC().Add(time.Hour)
	n, err := f.svc.Create(ctx, CreateInput{
		RecipientID:  "alice",
		Type:         domain.NotificationReminder,
		Title:        "Exam soon",
		Body:         "Physics exam tomorrow",
		ScheduledFor: &future,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("expected no frames before schedule, got %d", got)
	}

	// Not yet visible as unread and not yet due.
	count, err := f.svc.UnreadCount(ctx, "alice")
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected unread count 0 before schedule, got %d", count)
	}
	delivered, err := f.svc.DeliverDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("deliver due failed: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected nothing due yet, got %d", delivered)
	}

	delivered, err = f.svc.DeliverDue(ctx, future.Add(time.Minute))
	if err != nil {
		t.Fatalf("deliver due failed: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 due delivery, got %d", delivered)
	}

	frames := decodeFrames(t, sink.snapshot())
	if len(frames) != 2 || frames[0].Notification.ID != n.ID {
		t.Fatalf("expected delivery frames after due, got %+v", frames)
	}

	stored, err := f.repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if stored.DeliveredAt == nil {
		t.Fatalf("expected delivered_at after deliver due")
	}

	// A second pass finds nothing.
	delivered, err = f.svc.DeliverDue(ctx, future.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("deliver due failed: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected no redelivery, got %d", delivered)
	}
}

func TestUnreadCountExcludesExpiredAndRead(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice", Type: domain.NotificationEvent,
		Title: "Old event", Body: "already over", ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice", Type: domain.NotificationMessage,
		Title: "Hello", Body: "hi",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice", Type: domain.NotificationAlert,
		Title: "Heads up", Body: "check this",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	count, err := f.svc.UnreadCount(ctx, "alice")
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 unread (expired excluded), got %d", count)
	}

	changed, err := f.svc.MarkRead(ctx, []string{first.ID}, "alice")
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected 1 change, got %d", changed)
	}

	count, err = f.svc.UnreadCount(ctx, "alice")
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unread after mark read, got %d", count)
	}

	recent, err := f.svc.RecentUnread(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("recent unread failed: %v", err)
	}
	if len(recent) != 1 || recent[0].Title != "Heads up" {
		t.Fatalf("expected only the alert to remain unread, got %+v", recent)
	}

	count, err = f.svc.UnreadCount(ctx, "nobody")
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for user with no notifications, got %d", count)
	}
}

func TestMarkReadIgnoresForeignIDs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	n, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice", Type: domain.NotificationMessage,
		Title: "Private", Body: "for alice",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	changed, err := f.svc.MarkRead(ctx, []string{n.ID, "missing"}, "bob")
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected no changes for foreign ids, got %d", changed)
	}

	stored, err := f.repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if stored.Read {
		t.Fatalf("expected notification to stay unread")
	}

	changed, err = f.svc.MarkAllRead(ctx, "bob")
	if err != nil {
		t.Fatalf("mark all read failed: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected mark all read to change nothing, got %d", changed)
	}
}

func TestBulkPartialFailureKeepsGoing(t *testing.T) {
	flaky := &flakyNotificationRepo{failFor: map[string]bool{"u13": true}}
	f := newFixture(t, func(inner repository.NotificationRepository) repository.NotificationRepository {
		flaky.NotificationRepository = inner
		return flaky
	})
	ctx := context.Background()

	targets := make([]string, 0, 50)
	for i := 1; i <= 50; i++ {
		targets = append(targets, fmt.Sprintf("u%02d", i))
	}

	sent, err := f.svc.BulkCreateAndDeliver(ctx, BulkInput{
		Title:       "Assembly",
		Body:        "Hall A at noon",
		TargetUsers: targets,
	})
	if err != nil {
		t.Fatalf("bulk failed: %v", err)
	}
	if sent != 49 {
		t.Fatalf("expected 49 successes out of 50, got %d", sent)
	}

	// The survivors were really persisted.
	count, err := f.svc.UnreadCount(ctx, "u01")
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected u01 to have the bulk notification, got %d", count)
	}
	count, err = f.svc.UnreadCount(ctx, "u13")
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected u13 to have nothing, got %d", count)
	}
}

func TestBulkAudienceResolution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// Roles resolve through the directory and merge with explicit ids,
	// deduplicated.
	sent, err := f.svc.BulkCreateAndDeliver(ctx, BulkInput{
		Title:       "Staff meeting",
		Body:        "Room 4",
		TargetUsers: []string{"alice"},
		TargetRoles: []string{domain.RoleTeacher},
	})
	if err != nil {
		t.Fatalf("bulk failed: %v", err)
	}
	if sent != 1 {
		t.Fatalf("expected 1 recipient after dedup, got %d", sent)
	}

	// Empty audience falls back to every active user.
	sent, err = f.svc.BulkCreateAndDeliver(ctx, BulkInput{
		Title: "School closed",
		Body:  "Reopening Monday",
	})
	if err != nil {
		t.Fatalf("bulk failed: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected all-active fallback to reach 2 users, got %d", sent)
	}

	if _, err := f.svc.BulkCreateAndDeliver(ctx, BulkInput{Title: "", Body: "x"}); !errors.Is(err, ErrMissingContent) {
		t.Fatalf("expected ErrMissingContent, got %v", err)
	}
}

func TestQuietHoursVetoSkipsPushButStampsDelivery(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sink := f.connect("sess-1", "alice")

	prefs := domain.DefaultPreferences("alice")
	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "00:00"
	prefs.QuietHoursEnd = "23:59"
	if err := f.svc.SavePreferences(ctx, &prefs); err != nil {
		t.Fatalf("save preferences failed: %v", err)
	}

	n, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice", Type: domain.NotificationAnnouncement,
		Title: "Night notice", Body: "quiet please",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("expected quiet hours to veto the push, got %d frames", got)
	}

	stored, err := f.repo.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("failed to reload notification: %v", err)
	}
	if stored.DeliveredAt == nil {
		t.Fatalf("expected delivered_at stamped despite veto")
	}
	if stored.Read {
		t.Fatalf("expected notification to stay unread")
	}

	count, err := f.svc.UnreadCount(ctx, "alice")
	if err != nil {
		t.Fatalf("unread count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected vetoed notification to count as unread, got %d", count)
	}
}

func TestPerTypeToggleVeto(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sink := f.connect("sess-1", "alice")

	prefs := domain.DefaultPreferences("alice")
	prefs.MessageEnabled = false
	if err := f.svc.SavePreferences(ctx, &prefs); err != nil {
		t.Fatalf("save preferences failed: %v", err)
	}

	if _, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice", Type: domain.NotificationMessage,
		Title: "Chat", Body: "new message",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if got := len(sink.snapshot()); got != 0 {
		t.Fatalf("expected message type to be vetoed, got %d frames", got)
	}

	// Types without a toggle always pass.
	if _, err := f.svc.Create(ctx, CreateInput{
		RecipientID: "alice", Type: domain.NotificationAchievement,
		Title: "Badge", Body: "well done",
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	frames := decodeFrames(t, sink.snapshot())
	if len(frames) != 2 || frames[0].Notification.Kind != string(domain.NotificationAchievement) {
		t.Fatalf("expected untoggled type to be pushed, got %+v", frames)
	}
}

func TestPreferencesDefaultsWhenUnsaved(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	prefs, err := f.svc.Preferences(ctx, "ghost")
	if err != nil {
		t.Fatalf("preferences failed: %v", err)
	}
	if !prefs.EnableRealtime || prefs.QuietHoursEnabled {
		t.Fatalf("expected permissive defaults, got %+v", prefs)
	}
	if prefs.UserID != "ghost" {
		t.Fatalf("expected defaults bound to the user, got %q", prefs.UserID)
	}
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

// ErrNotFound is returned when the requested entity does not exist.
// Services translate it into the domain error taxonomy.
var ErrNotFound = errors.New("entity not found")

// RoomRepository persists chat rooms and participant bookkeeping.
// Create also seeds participant records for the room's initial members.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.ChatRoom) error
	GetByID(ctx context.Context, id string) (*domain.ChatRoom, error)
	// FindDirect looks a direct room up by its canonical pair key.
	FindDirect(ctx context.Context, directKey string) (*domain.ChatRoom, error)
	AddMember(ctx context.Context, roomID, userID string, role domain.ParticipantRole, at time.Time) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	SetActive(ctx context.Context, roomID string, active bool) error
	TouchLastSeen(ctx context.Context, roomID, userID string, at time.Time) error
	Participants(ctx context.Context, roomID string) ([]domain.Participant, error)
}

// MessageRepository persists room message history. ListRecent returns
// the newest limit messages in ascending order, read-by sets included.
// MarkRead only grows read-by sets; marking twice is a no-op.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
	GetByID(ctx context.Context, id string) (*domain.ChatMessage, error)
	UpdateBody(ctx context.Context, msg *domain.ChatMessage) error
	Delete(ctx context.Context, id string) error
	ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	MarkRead(ctx context.Context, messageIDs []string, userID string, at time.Time) error
	// LatestSeq returns the highest sequence number in the room, 0 when
	// the room has no messages.
	LatestSeq(ctx context.Context, roomID string) (uint64, error)
}

// NotificationRepository persists realtime notifications. Read and
// unread queries exclude expired and not-yet-scheduled notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	// MarkRead flips the recipient's own unread notifications among ids
	// and reports how many changed. Foreign and already-read ids are
	// skipped silently.
	MarkRead(ctx context.Context, ids []string, userID string, at time.Time) (int, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	UnreadCount(ctx context.Context, userID string, now time.Time) (int, error)
	// ListRecentUnread returns the newest unread notifications first.
	ListRecentUnread(ctx context.Context, userID string, limit int, now time.Time) ([]domain.Notification, error)
	// ListDue returns undelivered notifications whose scheduled time has
	// arrived, oldest first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error)
}

// PreferenceRepository persists per-user notification preferences.
type PreferenceRepository interface {
	Get(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	Save(ctx context.Context, prefs *domain.NotificationPreferences) error
}

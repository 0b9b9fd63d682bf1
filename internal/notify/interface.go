package notify

import (
	"context"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

// CreateInput carries the fields for one notification.
type CreateInput struct {
	RecipientID  string
	Type         domain.NotificationType
	Title        string
	Body         string
	Priority     domain.Priority
	ActionURL    string
	ActionLabel  string
	RefType      string
	RefID        string
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
}

// BulkInput targets a bulk send. The audience is the union of
// TargetUsers and the members of TargetRoles; when both are empty every
// active user is addressed.
type BulkInput struct {
	Title       string
	Body        string
	Type        domain.NotificationType
	Priority    domain.Priority
	TargetUsers []string
	TargetRoles []string
}

// Service owns notification state and realtime delivery. Pushed frames
// go to the recipient's user group; persistence never depends on a
// recipient being connected.
type Service interface {
	// Create persists the notification and delivers it immediately
	// unless scheduled for the future. Delivery failures do not fail
	// the create.
	Create(ctx context.Context, input CreateInput) (*domain.Notification, error)
	// Deliver pushes the notification frame and the recipient's new
	// unread count, then stamps delivered_at. The recipient's
	// preferences may veto the push; the stamp still happens.
	Deliver(ctx context.Context, notificationID string) error
	MarkRead(ctx context.Context, ids []string, userID string) (int, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	// RecentUnread returns the newest unread notifications for replay
	// on connect. limit <= 0 selects the configured default.
	RecentUnread(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	// BulkCreateAndDeliver fans one notification out to the audience.
	// Each recipient is created and delivered in isolation; the return
	// value counts the successes.
	BulkCreateAndDeliver(ctx context.Context, input BulkInput) (int, error)
	// DeliverDue delivers notifications whose schedule has arrived.
	DeliverDue(ctx context.Context, now time.Time) (int, error)
	// Preferences returns the user's saved preferences, or the
	// defaults when nothing is saved.
	Preferences(ctx context.Context, userID string) (*domain.NotificationPreferences, error)
	SavePreferences(ctx context.Context, prefs *domain.NotificationPreferences) error
}

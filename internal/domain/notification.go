package domain

import (
	"time"
)

// NotificationType classifies a notification.
type NotificationType string

const (
	NotificationMessage      NotificationType = "message"
	NotificationAssignment   NotificationType = "assignment"
	NotificationGrade        NotificationType = "grade"
	NotificationAnnouncement NotificationType = "announcement"
	NotificationEvent        NotificationType = "event"
	NotificationAlert        NotificationType = "alert"
	NotificationReminder     NotificationType = "reminder"
	NotificationAchievement  NotificationType = "achievement"
	NotificationWarning      NotificationType = "warning"
	NotificationMeeting      NotificationType = "meeting"
)

// Valid reports whether the type is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationAssignment, NotificationGrade,
		NotificationAnnouncement, NotificationEvent, NotificationAlert,
		NotificationReminder, NotificationAchievement, NotificationWarning,
		NotificationMeeting:
		return true
	}
	return false
}

// Priority ranks a notification's urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is one of the known levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is a realtime notification addressed to one recipient.
// ScheduledFor defers delivery until that time; ExpiresAt removes the
// notification from unread counts and replay once passed. RefType and
// RefID optionally point at the entity the notification is about.
type Notification struct {
	ID           string
	RecipientID  string
	Type         NotificationType
	Title        string
	Body         string
	Priority     Priority
	Read         bool
	ReadAt       *time.Time
	DeliveredAt  *time.Time
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
	ActionURL    string
	ActionLabel  string
	RefType      string
	RefID        string
	CreatedAt    time.Time
}

// Expired reports whether the notification's expiry has passed.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// ScheduledAfter reports whether delivery is deferred beyond now.
func (n *Notification) ScheduledAfter(now time.Time) bool {
	return n.ScheduledFor != nil && n.ScheduledFor.After(now)
}

// NotificationPreferences controls realtime delivery for one user.
// EnableRealtime is the master switch; the per-type toggles cover the six
// common types, and quiet hours suppress pushes inside a daily window
// that may wrap past midnight.
type NotificationPreferences struct {
	UserID              string
	EnableRealtime      bool
	MessageEnabled      bool
	AssignmentEnabled   bool
	GradeEnabled        bool
	AnnouncementEnabled bool
	EventEnabled        bool
	AlertEnabled        bool
	QuietHoursEnabled   bool
	QuietHoursStart     string
	QuietHoursEnd       string
	UpdatedAt           time.Time
}

// DefaultPreferences returns the preferences applied when a user has
// never saved any: everything on, quiet hours off.
func DefaultPreferences(userID string) NotificationPreferences {
	return NotificationPreferences{
		UserID:              userID,
		EnableRealtime:      true,
		MessageEnabled:      true,
		AssignmentEnabled:   true,
		GradeEnabled:        true,
		AnnouncementEnabled: true,
		EventEnabled:        true,
		AlertEnabled:        true,
	}
}

// AllowsRealtime reports whether a notification of the given type may be
// pushed to the user's sockets at the given moment. Persistence is never
// gated by preferences, only the realtime push.
func (p *NotificationPreferences) AllowsRealtime(t NotificationType, now time.Time) bool {
	if !p.EnableRealtime {
		return false
	}
	if !p.typeEnabled(t) {
		return false
	}
	if p.inQuietHours(now) {
		return false
	}
	return true
}

func (p *NotificationPreferences) typeEnabled(t NotificationType) bool {
	switch t {
	case NotificationMessage:
		return p.MessageEnabled
	case NotificationAssignment:
		return p.AssignmentEnabled
	case NotificationGrade:
		return p.GradeEnabled
	case NotificationAnnouncement:
		return p.AnnouncementEnabled
	case NotificationEvent:
		return p.EventEnabled
	case NotificationAlert:
		return p.AlertEnabled
	}
	// Types without a dedicated toggle are always allowed.
	return true
}

func (p *NotificationPreferences) inQuietHours(now time.Time) bool {
	if !p.QuietHoursEnabled || p.QuietHoursStart == "" || p.QuietHoursEnd == "" {
		return false
	}

	start, err := minuteOfDay(p.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := minuteOfDay(p.QuietHoursEnd)
	if err != nil {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute <= end
	}
	// Window wraps past midnight, e.g. 22:00-07:00.
	return minute >= start || minute <= end
}

func minuteOfDay(clock string) (int, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

package domain

import (
	"time"

	"github.com/ShedrackAmodu/school-comm-service/pkg/database"
)

// RoomModel is the GORM model for the chat_rooms table. DirectKey holds
// the canonical sorted user pair for direct rooms and is empty otherwise.
type RoomModel struct {
	ID          string               `gorm:"type:varchar(36);primaryKey"`
	Name        string               `gorm:"type:varchar(100);not null"`
	Kind        string               `gorm:"type:varchar(20);index;not null"`
	Description string               `gorm:"type:text"`
	Active      bool                 `gorm:"not null;default:true"`
	DirectKey   string               `gorm:"type:varchar(80);index"`
	Members     database.StringArray `gorm:"type:text"`
	Admins      database.StringArray `gorm:"type:text"`
	CreatedAt   time.Time            `gorm:"autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to domain ChatRoom.
func (m *RoomModel) ToDomain() *ChatRoom {
	return &ChatRoom{
		ID:          m.ID,
		Name:        m.Name,
		Kind:        RoomKind(m.Kind),
		Description: m.Description,
		Active:      m.Active,
		Members:     []string(m.Members),
		Admins:      []string(m.Admins),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// RoomToModel converts domain ChatRoom to RoomModel.
func RoomToModel(r *ChatRoom) *RoomModel {
	m := &RoomModel{
		ID:          r.ID,
		Name:        r.Name,
		Kind:        string(r.Kind),
		Description: r.Description,
		Active:      r.Active,
		Members:     database.StringArray(r.Members),
		Admins:      database.StringArray(r.Admins),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Kind == RoomKindDirect && len(r.Members) == 2 {
		m.DirectKey = DirectKey(r.Members[0], r.Members[1])
	}
	return m
}

// ParticipantModel is the GORM model for the chat_participants table.
type ParticipantModel struct {
	RoomID     string    `gorm:"type:varchar(36);primaryKey"`
	UserID     string    `gorm:"type:varchar(36);primaryKey"`
	Role       string    `gorm:"type:varchar(20);not null;default:'member'"`
	JoinedAt   time.Time `gorm:"autoCreateTime"`
	LastSeenAt time.Time
}

// TableName specifies the table name for ParticipantModel.
func (ParticipantModel) TableName() string {
	return "chat_participants"
}

// ToDomain converts ParticipantModel to domain Participant.
func (m *ParticipantModel) ToDomain() *Participant {
	return &Participant{
		RoomID:     m.RoomID,
		UserID:     m.UserID,
		Role:       ParticipantRole(m.Role),
		JoinedAt:   m.JoinedAt,
		LastSeenAt: m.LastSeenAt,
	}
}

// ParticipantToModel converts domain Participant to ParticipantModel.
func ParticipantToModel(p *Participant) *ParticipantModel {
	return &ParticipantModel{
		RoomID:     p.RoomID,
		UserID:     p.UserID,
		Role:       string(p.Role),
		JoinedAt:   p.JoinedAt,
		LastSeenAt: p.LastSeenAt,
	}
}

// MessageModel is the GORM model for the chat_messages table. The read-by
// set lives in chat_message_reads and is loaded separately.
type MessageModel struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	RoomID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_room_seq,priority:1"`
	Seq       uint64 `gorm:"not null;uniqueIndex:idx_room_seq,priority:2"`
	SenderID  string `gorm:"type:varchar(36);index;not null"`
	Kind      string `gorm:"type:varchar(20);not null;default:'text'"`
	Body      string `gorm:"type:text;not null"`
	ReplyTo   string `gorm:"type:varchar(36)"`
	Edited    bool   `gorm:"not null;default:false"`
	EditedAt  *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "chat_messages"
}

// ToDomain converts MessageModel to domain ChatMessage without the
// read-by set.
func (m *MessageModel) ToDomain() *ChatMessage {
	return &ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Body:      m.Body,
		Kind:      MessageKind(m.Kind),
		Seq:       m.Seq,
		ReplyTo:   m.ReplyTo,
		Edited:    m.Edited,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
	}
}

// MessageToModel converts domain ChatMessage to MessageModel.
func MessageToModel(msg *ChatMessage) *MessageModel {
	return &MessageModel{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Seq:       msg.Seq,
		SenderID:  msg.SenderID,
		Kind:      string(msg.Kind),
		Body:      msg.Body,
		ReplyTo:   msg.ReplyTo,
		Edited:    msg.Edited,
		EditedAt:  msg.EditedAt,
		CreatedAt: msg.CreatedAt,
	}
}

// MessageReadModel is the GORM model for the chat_message_reads table.
// The composite key makes repeated reads by the same user no-ops.
type MessageReadModel struct {
	MessageID string `gorm:"type:varchar(36);primaryKey"`
	UserID    string `gorm:"type:varchar(36);primaryKey"`
	ReadAt    time.Time
}

// TableName specifies the table name for MessageReadModel.
func (MessageReadModel) TableName() string {
	return "chat_message_reads"
}

// NotificationModel is the GORM model for the realtime_notifications table.
type NotificationModel struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	RecipientID  string `gorm:"type:varchar(36);not null;index:idx_recipient_read,priority:1"`
	Kind         string `gorm:"column:notification_type;type:varchar(20);not null"`
	Title        string `gorm:"type:varchar(200);not null"`
	Body         string `gorm:"type:text;not null"`
	Priority     string `gorm:"type:varchar(10);not null;default:'medium'"`
	Read         bool   `gorm:"column:is_read;not null;default:false;index:idx_recipient_read,priority:2"`
	ReadAt       *time.Time
	DeliveredAt  *time.Time `gorm:"index"`
	ScheduledFor *time.Time `gorm:"index"`
	ExpiresAt    *time.Time `gorm:"index"`
	ActionURL    string     `gorm:"type:varchar(500)"`
	ActionLabel  string     `gorm:"type:varchar(50)"`
	RefType      string     `gorm:"type:varchar(50)"`
	RefID        string     `gorm:"type:varchar(36)"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index"`
}

// TableName specifies the table name for NotificationModel.
func (NotificationModel) TableName() string {
	return "realtime_notifications"
}

// ToDomain converts NotificationModel to domain Notification.
func (m *NotificationModel) ToDomain() *Notification {
	return &Notification{
		ID:           m.ID,
		RecipientID:  m.RecipientID,
		Type:         NotificationType(m.Kind),
		Title:        m.Title,
		Body:         m.Body,
		Priority:     Priority(m.Priority),
		Read:         m.Read,
		ReadAt:       m.ReadAt,
		DeliveredAt:  m.DeliveredAt,
		ScheduledFor: m.ScheduledFor,
		ExpiresAt:    m.ExpiresAt,
		ActionURL:    m.ActionURL,
		ActionLabel:  m.ActionLabel,
		RefType:      m.RefType,
		RefID:        m.RefID,
		CreatedAt:    m.CreatedAt,
	}
}

// NotificationToModel converts domain Notification to NotificationModel.
func NotificationToModel(n *Notification) *NotificationModel {
	return &NotificationModel{
		ID:           n.ID,
		RecipientID:  n.RecipientID,
		Kind:         string(n.Type),
		Title:        n.Title,
		Body:         n.Body,
		Priority:     string(n.Priority),
		Read:         n.Read,
		ReadAt:       n.ReadAt,
		DeliveredAt:  n.DeliveredAt,
		ScheduledFor: n.ScheduledFor,
		ExpiresAt:    n.ExpiresAt,
		ActionURL:    n.ActionURL,
		ActionLabel:  n.ActionLabel,
		RefType:      n.RefType,
		RefID:        n.RefID,
		CreatedAt:    n.CreatedAt,
	}
}

// PreferencesModel is the GORM model for the notification_preferences table.
type PreferencesModel struct {
	UserID              string `gorm:"type:varchar(36);primaryKey"`
	EnableRealtime      bool   `gorm:"not null;default:true"`
	MessageEnabled      bool   `gorm:"not null;default:true"`
	AssignmentEnabled   bool   `gorm:"not null;default:true"`
	GradeEnabled        bool   `gorm:"not null;default:true"`
	AnnouncementEnabled bool   `gorm:"not null;default:true"`
	EventEnabled        bool   `gorm:"not null;default:true"`
	AlertEnabled        bool   `gorm:"not null;default:true"`
	QuietHoursEnabled   bool   `gorm:"not null;default:false"`
	QuietHoursStart     string `gorm:"type:varchar(5)"`
	QuietHoursEnd       string `gorm:"type:varchar(5)"`
	UpdatedAt           time.Time
}

// TableName specifies the table name for PreferencesModel.
func (PreferencesModel) TableName() string {
	return "notification_preferences"
}

// ToDomain converts PreferencesModel to domain NotificationPreferences.
func (m *PreferencesModel) ToDomain() *NotificationPreferences {
	return &NotificationPreferences{
		UserID:              m.UserID,
		EnableRealtime:      m.EnableRealtime,
		MessageEnabled:      m.MessageEnabled,
		AssignmentEnabled:   m.AssignmentEnabled,
		GradeEnabled:        m.GradeEnabled,
		AnnouncementEnabled: m.AnnouncementEnabled,
		EventEnabled:        m.EventEnabled,
		AlertEnabled:        m.AlertEnabled,
		QuietHoursEnabled:   m.QuietHoursEnabled,
		QuietHoursStart:     m.QuietHoursStart,
		QuietHoursEnd:       m.QuietHoursEnd,
		UpdatedAt:           m.UpdatedAt,
	}
}

// PreferencesToModel converts domain NotificationPreferences to PreferencesModel.
func PreferencesToModel(p *NotificationPreferences) *PreferencesModel {
	return &PreferencesModel{
		UserID:              p.UserID,
		EnableRealtime:      p.EnableRealtime,
		MessageEnabled:      p.MessageEnabled,
		AssignmentEnabled:   p.AssignmentEnabled,
		GradeEnabled:        p.GradeEnabled,
		AnnouncementEnabled: p.AnnouncementEnabled,
		EventEnabled:        p.EventEnabled,
		AlertEnabled:        p.AlertEnabled,
		QuietHoursEnabled:   p.QuietHoursEnabled,
		QuietHoursStart:     p.QuietHoursStart,
		QuietHoursEnd:       p.QuietHoursEnd,
		UpdatedAt:           p.UpdatedAt,
	}
}

package domain

import (
	"time"
)

// Outbound frame types.
const (
	FrameMessage        = "message"
	FrameMessageEdited  = "message_edited"
	FrameMessageDeleted = "message_deleted"
	FrameTyping         = "typing"
	FrameRoomInfo       = "room_info"
	FrameNotification   = "notification"
	FrameUnreadCount    = "unread_count"
	FrameBulkSent       = "bulk_notification_sent"
	FrameError          = "error"
)

// Frame is an outbound event written to client sockets. FrameType returns
// the wire discriminator, duplicated in each frame's type field.
type Frame interface {
	FrameType() string
}

// UserRef identifies a user in outbound frames.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MessageView is the wire shape of one chat message. IsRead is computed
// per viewer and only meaningful on history replay.
type MessageView struct {
	ID       string      `json:"id"`
	Content  string      `json:"content"`
	Kind     MessageKind `json:"message_type"`
	Sender   UserRef     `json:"sender"`
	Seq      uint64      `json:"seq"`
	SentAt   time.Time   `json:"timestamp"`
	IsEdited bool        `json:"is_edited"`
	EditedAt *time.Time  `json:"edited_at,omitempty"`
	ReplyTo  string      `json:"reply_to,omitempty"`
	IsRead   bool        `json:"is_read"`
}

// ParticipantView is the wire shape of one room participant.
type ParticipantView struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Role     ParticipantRole `json:"role"`
	LastSeen time.Time       `json:"last_seen"`
}

// RoomView is the wire shape of room metadata sent on connect.
type RoomView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Kind         RoomKind          `json:"room_type"`
	MemberCount  int               `json:"member_count"`
	Participants []ParticipantView `json:"participants"`
}

// NotificationView is the wire shape of one notification.
type NotificationView struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"notification_type"`
	Title       string           `json:"title"`
	Body        string           `json:"message"`
	Priority    Priority         `json:"priority"`
	CreatedAt   time.Time        `json:"created_at"`
	ActionURL   string           `json:"action_url,omitempty"`
	ActionLabel string           `json:"action_text,omitempty"`
	RefType     string           `json:"ref_type,omitempty"`
	RefID       string           `json:"ref_id,omitempty"`
}

// BuildMessageView renders a message for the wire. viewerID drives the
// per-viewer read flag on history replay; pass "" for broadcast frames,
// where the message is new and unread by definition.
func BuildMessageView(msg *ChatMessage, senderName, viewerID string) MessageView {
	view := MessageView{
		ID:       msg.ID,
		Content:  msg.Body,
		Kind:     msg.Kind,
		Sender:   UserRef{ID: msg.SenderID, Name: senderName},
		Seq:      msg.Seq,
		SentAt:   msg.CreatedAt,
		IsEdited: msg.Edited,
		EditedAt: msg.EditedAt,
		ReplyTo:  msg.ReplyTo,
	}
	if viewerID != "" {
		view.IsRead = msg.SenderID == viewerID || msg.ReadByUser(viewerID)
	}
	return view
}

// BuildNotificationView renders a notification for the wire.
func BuildNotificationView(n *Notification) NotificationView {
	return NotificationView{
		ID:          n.ID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		Priority:    n.Priority,
		CreatedAt:   n.CreatedAt,
		ActionURL:   n.ActionURL,
		ActionLabel: n.ActionLabel,
		RefType:     n.RefType,
		RefID:       n.RefID,
	}
}

// MessageFrame carries a newly posted message.
type MessageFrame struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

func NewMessageFrame(view MessageView) MessageFrame {
	return MessageFrame{Type: FrameMessage, Message: view}
}

func (f MessageFrame) FrameType() string { return FrameMessage }

// MessageEditedFrame carries the updated view of an edited message.
type MessageEditedFrame struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

func NewMessageEditedFrame(view MessageView) MessageEditedFrame {
	return MessageEditedFrame{Type: FrameMessageEdited, Message: view}
}

func (f MessageEditedFrame) FrameType() string { return FrameMessageEdited }

// MessageDeletedFrame announces a message removal.
type MessageDeletedFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

func NewMessageDeletedFrame(messageID string) MessageDeletedFrame {
	return MessageDeletedFrame{Type: FrameMessageDeleted, MessageID: messageID}
}

func (f MessageDeletedFrame) FrameType() string { return FrameMessageDeleted }

// TypingFrame reports a typing state change for one user.
type TypingFrame struct {
	Type     string  `json:"type"`
	User     UserRef `json:"user"`
	IsTyping bool    `json:"is_typing"`
}

func NewTypingFrame(user UserRef, isTyping bool) TypingFrame {
	return TypingFrame{Type: FrameTyping, User: user, IsTyping: isTyping}
}

func (f TypingFrame) FrameType() string { return FrameTyping }

// RoomInfoFrame carries room metadata on connect.
type RoomInfoFrame struct {
	Type string   `json:"type"`
	Room RoomView `json:"room"`
}

func NewRoomInfoFrame(room RoomView) RoomInfoFrame {
	return RoomInfoFrame{Type: FrameRoomInfo, Room: room}
}

func (f RoomInfoFrame) FrameType() string { return FrameRoomInfo }

// NotificationFrame pushes one notification to its recipient.
type NotificationFrame struct {
	Type         string           `json:"type"`
	Notification NotificationView `json:"notification"`
}

func NewNotificationFrame(view NotificationView) NotificationFrame {
	return NotificationFrame{Type: FrameNotification, Notification: view}
}

func (f NotificationFrame) FrameType() string { return FrameNotification }

// UnreadCountFrame reports the recipient's current unread total.
type UnreadCountFrame struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func NewUnreadCountFrame(count int) UnreadCountFrame {
	return UnreadCountFrame{Type: FrameUnreadCount, Count: count}
}

func (f UnreadCountFrame) FrameType() string { return FrameUnreadCount }

// BulkSentFrame confirms a bulk send with the delivered recipient count.
type BulkSentFrame struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func NewBulkSentFrame(count int) BulkSentFrame {
	return BulkSentFrame{Type: FrameBulkSent, Count: count}
}

func (f BulkSentFrame) FrameType() string { return FrameBulkSent }

// ErrorFrame reports a rejected command to the originating session only.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: FrameError, Message: message}
}

func (f ErrorFrame) FrameType() string { return FrameError }

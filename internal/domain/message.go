package domain

import (
	"time"
)

// MessageKind classifies a chat message body.
type MessageKind string

const (
	MessageKindText   MessageKind = "text"
	MessageKindFile   MessageKind = "file"
	MessageKindImage  MessageKind = "image"
	MessageKindSystem MessageKind = "system"
)

// Valid reports whether the kind is one of the known message kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindFile, MessageKindImage, MessageKindSystem:
		return true
	}
	return false
}

// ChatMessage is one message in a room's history. Seq is the room-scoped
// sequence number: strictly increasing per room, assigned at send time,
// preserved across edits.
type ChatMessage struct {
	ID        string
	RoomID    string
	SenderID  string
	Body      string
	Kind      MessageKind
	Seq       uint64
	ReplyTo   string
	Edited    bool
	EditedAt  *time.Time
	ReadBy    []string
	CreatedAt time.Time
}

// ReadByUser reports whether the user appears in the read-by set.
func (m *ChatMessage) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

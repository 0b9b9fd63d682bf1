package room

import (
	"context"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

// CreateRoomInput carries the fields for a new chat room. Admins are
// added to the member list when missing from it.
type CreateRoomInput struct {
	Name        string
	Kind        domain.RoomKind
	Description string
	Members     []string
	Admins      []string
}

// Service owns chat room state: membership, message history, read
// tracking and typing indicators. Mutations publish the matching frame
// to the room's broadcast group.
type Service interface {
	CreateRoom(ctx context.Context, input CreateRoomInput) (*domain.ChatRoom, error)
	// EnsureDirectRoom returns the one-to-one room for the pair,
	// creating it on first use.
	EnsureDirectRoom(ctx context.Context, userA, userB string) (*domain.ChatRoom, error)
	// CheckAccess is the join-time gate: the room must exist, the user
	// must be a member and the room must be active.
	CheckAccess(ctx context.Context, roomID, userID string) (*domain.ChatRoom, error)
	SendMessage(ctx context.Context, roomID, senderID, body string, kind domain.MessageKind, replyTo string) (*domain.ChatMessage, error)
	EditMessage(ctx context.Context, messageID, editorID, newBody string) (*domain.ChatMessage, error)
	DeleteMessage(ctx context.Context, messageID, requesterID string) error
	// MarkRead grows read-by sets idempotently. Ids that do not exist
	// or live in rooms the reader is not a member of are skipped.
	MarkRead(ctx context.Context, messageIDs []string, readerID string) error
	SetTyping(ctx context.Context, roomID, userID string, isTyping bool) error
	// RecentHistory returns the newest limit messages in ascending
	// order. limit <= 0 selects the configured default.
	RecentHistory(ctx context.Context, roomID, viewerID string, limit int) ([]domain.ChatMessage, error)
	RoomInfo(ctx context.Context, roomID string) (*domain.RoomView, error)
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	Deactivate(ctx context.Context, roomID string) error
	TouchLastSeen(ctx context.Context, roomID, userID string) error
	// RunTypingSweeper clears expired typing indicators and publishes
	// the implied stop frames. Blocks until ctx is done.
	RunTypingSweeper(ctx context.Context)
}

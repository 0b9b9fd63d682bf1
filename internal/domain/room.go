package domain

import (
	"time"
)

// RoomKind classifies a chat room.
type RoomKind string

const (
	RoomKindDirect       RoomKind = "direct"
	RoomKindGroup        RoomKind = "group"
	RoomKindClass        RoomKind = "class"
	RoomKindAnnouncement RoomKind = "announcement"
)

// Valid reports whether the kind is one of the known room kinds.
func (k RoomKind) Valid() bool {
	switch k {
	case RoomKindDirect, RoomKindGroup, RoomKindClass, RoomKindAnnouncement:
		return true
	}
	return false
}

// ParticipantRole is a user's role inside a single room.
type ParticipantRole string

const (
	ParticipantMember    ParticipantRole = "member"
	ParticipantAdmin     ParticipantRole = "admin"
	ParticipantModerator ParticipantRole = "moderator"
)

// ChatRoom is a conversation with a fixed member list. Members and Admins
// hold user IDs; Admins is a subset of Members.
type ChatRoom struct {
	ID          string
	Name        string
	Kind        RoomKind
	Description string
	Active      bool
	Members     []string
	Admins      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsMember reports whether the user belongs to the room.
func (r *ChatRoom) IsMember(userID string) bool {
	for _, id := range r.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user administers the room.
func (r *ChatRoom) IsAdmin(userID string) bool {
	for _, id := range r.Admins {
		if id == userID {
			return true
		}
	}
	return false
}

// MemberCount returns the number of room members.
func (r *ChatRoom) MemberCount() int {
	return len(r.Members)
}

// Participant tracks one user's membership bookkeeping in a room.
type Participant struct {
	RoomID     string
	UserID     string
	Role       ParticipantRole
	JoinedAt   time.Time
	LastSeenAt time.Time
}

// DirectKey returns the canonical identity of a direct room between two
// users, independent of argument order.
func DirectKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

package domain

import "errors"

// Core error taxonomy. The gateway turns the validation errors into an
// error frame for the originating connection only; nothing here ever
// reaches other room members.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotAMember   = errors.New("not a member of this room")
	ErrRoomInactive = errors.New("room is inactive")
	ErrNotOwner     = errors.New("not the sender of this message")
	ErrNotFound     = errors.New("not found")

	// ErrSendTimeout is internal: a session that cannot drain its
	// outbound queue within the send timeout is force-deregistered.
	// It is never written to the wire.
	ErrSendTimeout = errors.New("session send timeout")
)

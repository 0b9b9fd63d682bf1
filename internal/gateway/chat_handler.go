package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ShedrackAmodu/school-comm-service/internal/audit"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/middleware"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// HandleChat serves /ws/chat/{roomID}. Access is checked before the
// upgrade so rejected users get a plain HTTP status instead of a
// hijacked connection. After the upgrade the session joins the room
// group and its own user group, receives the room snapshot and recent
// history, and then exchanges live frames until the socket dies.
func (g *Gateway) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		writeHTTPError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	roomID := mux.Vars(r)["roomID"]

	if _, err := g.rooms.CheckAccess(ctx, roomID, identity.UserID); err != nil {
		g.rejectChat(ctx, w, roomID, identity.UserID, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	sessionID := uuid.New().String()
	client := NewClient(sessionID, identity, conn, g.cfg)

	g.registry.Register(sessionID, identity, client)
	g.registry.JoinGroup(sessionID, domain.RoomGroup(roomID))
	g.registry.JoinGroup(sessionID, domain.UserGroup(identity.UserID))

	if err := g.rooms.TouchLastSeen(ctx, roomID, identity.UserID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to update last seen")
	}
	audit.LogWithDetail(ctx, audit.ActionConnect, identity.UserID, roomID, "chat session connected")

	go client.WritePump()
	g.replayRoom(ctx, client, roomID)

	client.ReadPump(func(c *Client, raw []byte) {
		g.handleChatCommand(ctx, c, roomID, raw)
	})

	g.registry.Deregister(sessionID)
	if err := g.rooms.TouchLastSeen(ctx, roomID, identity.UserID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to update last seen")
	}
	audit.LogWithDetail(ctx, audit.ActionDisconnect, identity.UserID, roomID, "chat session disconnected")
}

// rejectChat turns an access failure into an HTTP response.
func (g *Gateway) rejectChat(ctx context.Context, w http.ResponseWriter, roomID, userID string, err error) {
	var status int
	var message string

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, message = http.StatusNotFound, "room not found"
	case errors.Is(err, domain.ErrNotAMember):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrRoomInactive):
		status, message = http.StatusGone, err.Error()
	default:
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("room access check failed")
		writeHTTPError(w, http.StatusInternalServerError, "internal error")
		return
	}

	audit.LogWithDetail(ctx, audit.ActionAccessDenied, userID, roomID, "chat access denied")
	writeHTTPError(w, status, message)
}

// replayRoom sends the room snapshot followed by recent history, oldest
// first, so the client renders the transcript before live traffic.
func (g *Gateway) replayRoom(ctx context.Context, client *Client, roomID string) {
	info, err := g.rooms.RoomInfo(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load room info")
	} else if !g.sendFrame(ctx, client, domain.NewRoomInfoFrame(*info)) {
		return
	}

	history, err := g.rooms.RecentHistory(ctx, roomID, client.Identity.UserID, 0)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to load history")
		return
	}

	names := make(map[string]string, 4)
	for i := range history {
		msg := &history[i]
		name, ok := names[msg.SenderID]
		if !ok {
			name = g.senderName(ctx, msg.SenderID)
			names[msg.SenderID] = name
		}
		view := domain.BuildMessageView(msg, name, client.Identity.UserID)
		if !g.sendFrame(ctx, client, domain.NewMessageFrame(view)) {
			return
		}
	}
}

// senderName resolves a display name, falling back to the raw id.
func (g *Gateway) senderName(ctx context.Context, userID string) string {
	name, err := g.directory.DisplayName(ctx, userID)
	if err != nil || name == "" {
		return userID
	}
	return name
}

func (g *Gateway) handleChatCommand(ctx context.Context, client *Client, roomID string, raw []byte) {
	decoded, err := domain.DecodeChatCommand(raw)
	if err != nil {
		g.sendFrame(ctx, client, domain.NewErrorFrame(err.Error()))
		return
	}

	userID := client.Identity.UserID

	switch cmd := decoded.(type) {
	case domain.ChatMessageCommand:
		msg, err := g.rooms.SendMessage(ctx, roomID, userID, cmd.Content, "", cmd.ReplyTo)
		if err != nil {
			g.sendError(ctx, client, err)
			return
		}
		audit.LogWithDetail(ctx, audit.ActionSendMessage, userID, msg.ID, "message sent")

	case domain.TypingStartCommand:
		if err := g.rooms.SetTyping(ctx, roomID, userID, true); err != nil {
			g.sendError(ctx, client, err)
		}

	case domain.TypingStopCommand:
		if err := g.rooms.SetTyping(ctx, roomID, userID, false); err != nil {
			g.sendError(ctx, client, err)
		}

	case domain.MarkReadCommand:
		if err := g.rooms.MarkRead(ctx, cmd.MessageIDs, userID); err != nil {
			g.sendError(ctx, client, err)
		}

	case domain.EditMessageCommand:
		if _, err := g.rooms.EditMessage(ctx, cmd.MessageID, userID, cmd.Content); err != nil {
			g.sendError(ctx, client, err)
			return
		}
		audit.LogWithDetail(ctx, audit.ActionEditMessage, userID, cmd.MessageID, "message edited")

	case domain.DeleteMessageCommand:
		if err := g.rooms.DeleteMessage(ctx, cmd.MessageID, userID); err != nil {
			g.sendError(ctx, client, err)
			return
		}
		audit.LogWithDetail(ctx, audit.ActionDeleteMessage, userID, cmd.MessageID, "message deleted")

	default:
		g.sendFrame(ctx, client, domain.NewErrorFrame("unknown command type"))
	}
}

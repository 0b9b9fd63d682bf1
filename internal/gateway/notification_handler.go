package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ShedrackAmodu/school-comm-service/internal/audit"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/middleware"
	"github.com/ShedrackAmodu/school-comm-service/internal/notify"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// HandleNotifications serves /ws/notifications. Every authenticated
// user may connect; the session joins its user group plus the
// platform-wide broadcast group. On connect the client receives its
// unread counter and the newest unread notifications, then live pushes
// as they happen.
func (g *Gateway) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		writeHTTPError(w, http.StatusUnauthorized, "missing identity")
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
	g.registry.JoinGroup(sessionID, domain.UserGroup(identity.UserID))
	g.registry.JoinGroup(sessionID, domain.GroupAllUsers)
	audit.Log(ctx, audit.ActionConnect, identity.UserID, "notification session connected")

	go client.WritePump()
	g.replayNotifications(ctx, client)

	client.ReadPump(func(c *Client, raw []byte) {
		g.handleNotifyCommand(ctx, c, raw)
	})

	g.registry.Deregister(sessionID)
	audit.Log(ctx, audit.ActionDisconnect, identity.UserID, "notification session disconnected")
}

// HandleBulkNotifications serves /ws/notifications/bulk, the staff
// broadcast console. Non-staff callers are turned away before the
// upgrade, so they never hold a socket.
func (g *Gateway) HandleBulkNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		writeHTTPError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	if !identity.IsStaff() {
		audit.Log(ctx, audit.ActionAccessDenied, identity.UserID, "bulk socket denied")
		writeHTTPError(w, http.StatusForbidden, domain.ErrUnauthorized.Error())
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
	g.registry.JoinGroup(sessionID, domain.GroupBulkSenders)
	audit.Log(ctx, audit.ActionConnect, identity.UserID, "bulk sender connected")

	go client.WritePump()
	client.ReadPump(func(c *Client, raw []byte) {
		g.handleBulkCommand(ctx, c, raw)
	})

	g.registry.Deregister(sessionID)
	audit.Log(ctx, audit.ActionDisconnect, identity.UserID, "bulk sender disconnected")
}

// replayNotifications sends the unread counter first, then the newest
// unread notifications, so a reconnecting client catches up on what it
// missed while offline.
func (g *Gateway) replayNotifications(ctx context.Context, client *Client) {
	userID := client.Identity.UserID

	count, err := g.notify.UnreadCount(ctx, userID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to load unread count")
	} else if !g.sendFrame(ctx, client, domain.NewUnreadCountFrame(count)) {
		return
	}

	unread, err := g.notify.RecentUnread(ctx, userID, 0)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("failed to load unread notifications")
		return
	}
	for i := range unread {
		view := domain.BuildNotificationView(&unread[i])
		if !g.sendFrame(ctx, client, domain.NewNotificationFrame(view)) {
			return
		}
	}
}

func (g *Gateway) handleNotifyCommand(ctx context.Context, client *Client, raw []byte) {
	decoded, err := domain.DecodeNotificationCommand(raw)
	if err != nil {
		g.sendFrame(ctx, client, domain.NewErrorFrame(err.Error()))
		return
	}

	userID := client.Identity.UserID

	switch cmd := decoded.(type) {
	case domain.NotificationMarkReadCommand:
		if _, err := g.notify.MarkRead(ctx, cmd.NotificationIDs, userID); err != nil {
			g.sendError(ctx, client, err)
		}

	case domain.MarkAllReadCommand:
		if _, err := g.notify.MarkAllRead(ctx, userID); err != nil {
			g.sendError(ctx, client, err)
		}

	case domain.GetUnreadCountCommand:
		count, err := g.notify.UnreadCount(ctx, userID)
		if err != nil {
			g.sendError(ctx, client, err)
			return
		}
		g.sendFrame(ctx, client, domain.NewUnreadCountFrame(count))

	default:
		g.sendFrame(ctx, client, domain.NewErrorFrame("unknown command type"))
	}
}

func (g *Gateway) handleBulkCommand(ctx context.Context, client *Client, raw []byte) {
	decoded, err := domain.DecodeBulkCommand(raw)
	if err != nil {
		g.sendFrame(ctx, client, domain.NewErrorFrame(err.Error()))
		return
	}

	userID := client.Identity.UserID

	switch cmd := decoded.(type) {
	case domain.BulkNotificationCommand:
		count, err := g.notify.BulkCreateAndDeliver(ctx, notify.BulkInput{
			Title:       cmd.Title,
			Body:        cmd.Message,
			Type:        domain.NotificationType(cmd.NotificationType),
			Priority:    domain.Priority(cmd.Priority),
			TargetUsers: cmd.TargetUsers,
			TargetRoles: cmd.TargetRoles,
		})
		if err != nil {
			g.sendError(ctx, client, err)
			return
		}
		audit.LogWithDetail(ctx, audit.ActionBulkNotify, userID, strconv.Itoa(count), "bulk notification sent")
		g.sendFrame(ctx, client, domain.NewBulkSentFrame(count))

	default:
		g.sendFrame(ctx, client, domain.NewErrorFrame("unknown command type"))
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ShedrackAmodu/school-comm-service/internal/config"
	"github.com/ShedrackAmodu/school-comm-service/internal/directory"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/middleware"
	"github.com/ShedrackAmodu/school-comm-service/internal/notify"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/internal/room"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway upgrades authenticated requests into live sessions and
// translates wire commands into service calls. Auth middleware runs in
// front of it, so both routes expect an identity in the request
// context; room access is checked here before the upgrade.
type Gateway struct {
	registry  *registry.Registry
	rooms     room.Service
	notify    notify.Service
	directory directory.Directory
	cfg       config.WebSocketConfig
}

// New wires the gateway over its collaborators.
func New(reg *registry.Registry, rooms room.Service, notifications notify.Service, dir directory.Directory, cfg config.WebSocketConfig) *Gateway {
	return &Gateway{
		registry:  reg,
		rooms:     rooms,
		notify:    notifications,
		directory: dir,
		cfg:       cfg,
	}
}

// RegisterRoutes mounts the WebSocket endpoints behind the auth gate.
func (g *Gateway) RegisterRoutes(r *mux.Router, auth *middleware.Auth) {
	r.Handle("/ws/chat/{roomID}", auth.Require(http.HandlerFunc(g.HandleChat)))
	r.Handle("/ws/notifications", auth.Require(http.HandlerFunc(g.HandleNotifications)))
	r.Handle("/ws/notifications/bulk", auth.Require(http.HandlerFunc(g.HandleBulkNotifications)))
}

// sendFrame writes one frame to a single session, bypassing the group
// router. Used for replay and for command replies.
func (g *Gateway) sendFrame(ctx context.Context, client *Client, frame domain.Frame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldSessionID, client.ID).
			Msg("failed to encode frame")
		return false
	}
	if err := client.Send(payload, g.cfg.SendTimeout); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).
			Str(log.FieldSessionID, client.ID).
			Msg("failed to queue frame")
		return false
	}
	return true
}

// sendError answers a rejected command on the originating session only.
func (g *Gateway) sendError(ctx context.Context, client *Client, err error) {
	g.sendFrame(ctx, client, domain.NewErrorFrame(wireMessage(ctx, err)))
}

// clientErrors are safe to echo back to the client verbatim.
var clientErrors = []error{
	domain.ErrNotFound,
	domain.ErrNotAMember,
	domain.ErrRoomInactive,
	domain.ErrNotOwner,
	domain.ErrUnauthorized,
	room.ErrEmptyMessage,
	room.ErrInvalidMessageKind,
	notify.ErrMissingRecipient,
	notify.ErrMissingContent,
	notify.ErrInvalidType,
	notify.ErrInvalidPriority,
}

// wireMessage maps an error to the message written on the wire.
// Anything outside the known set is logged and masked.
func wireMessage(ctx context.Context, err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	l := log.Ctx(ctx)
	l.Error().Err(err).Msg("command failed")
	return "internal error"
}

// writeHTTPError rejects a handshake before the upgrade.
func writeHTTPError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

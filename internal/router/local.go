package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

const defaultSendTimeout = 5 * time.Second

// Config tunes frame delivery.
type Config struct {
	// SendTimeout bounds how long one session may block a broadcast
	// before it is evicted.
	SendTimeout time.Duration
	// InstanceID identifies this process on the bridge bus.
	InstanceID string
}

// Local delivers frames to sessions registered on this instance. A slow
// session never stalls a broadcast: once its sink misses the send
// timeout it is deregistered and its connection closed, and delivery
// continues with the remaining members.
type Local struct {
	registry *registry.Registry
	cfg      Config
	bridge   Bridge
}

// NewLocal creates a router over the given registry.
func NewLocal(reg *registry.Registry, cfg Config) *Local {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Local{registry: reg, cfg: cfg}
}

// AttachBridge connects the router to peer instances. Must be called
// during wiring, before traffic is served.
func (r *Local) AttachBridge(b Bridge) {
	r.bridge = b
}

// Publish implements Router.
func (r *Local) Publish(ctx context.Context, group string, frame domain.Frame) (int, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s frame: %w", frame.FrameType(), err)
	}

	delivered := r.DeliverLocal(ctx, group, payload)

	if r.bridge != nil {
		if err := r.bridge.Broadcast(ctx, group, frame.FrameType(), payload); err != nil {
			// Local members already have the frame; peers miss it until
			// the bus recovers.
			l := log.Ctx(ctx)
			l.Warn().Err(err).
				Str(log.FieldGroup, group).
				Msg("bridge broadcast failed, frame delivered locally only")
		}
	}

	return delivered, nil
}

var (
	_ Router         = (*Local)(nil)
	_ LocalDeliverer = (*Local)(nil)
)

// DeliverLocal writes an encoded frame to every local member of the
// group and returns how many sessions accepted it.
func (r *Local) DeliverLocal(ctx context.Context, group string, payload []byte) int {
	sessions := r.registry.MembersOf(group)
	delivered := 0

	for _, s := range sessions {
		if err := s.Send(payload, r.cfg.SendTimeout); err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).
				Str(log.FieldSessionID, s.ID).
				Str(log.FieldUserID, s.Identity.UserID).
				Str(log.FieldGroup, group).
				Msg("evicting session that cannot keep up")
			r.registry.Deregister(s.ID)
			continue
		}
		delivered++
	}

	return delivered
}

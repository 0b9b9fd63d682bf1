package router

import (
	"context"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

// Router fans an outbound frame out to every member of a group.
type Router interface {
	// Publish encodes the frame once, delivers it to every local member
	// of the group and forwards it to peer instances when a bridge is
	// attached. It returns the local delivery count.
	Publish(ctx context.Context, group string, frame domain.Frame) (int, error)
}

// Bridge links this instance's router to its peers. Broadcast forwards
// a locally published frame to the bus; Run consumes peer frames and
// feeds them back into local delivery until ctx is cancelled.
type Bridge interface {
	Broadcast(ctx context.Context, group, frameType string, payload []byte) error
	Run(ctx context.Context)
	Done() <-chan struct{}
	Close() error
}

// LocalDeliverer is the slice of the router a bridge needs to hand
// remote frames to local sessions.
type LocalDeliverer interface {
	DeliverLocal(ctx context.Context, group string, payload []byte) int
}

package router

import (
	"context"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
	"github.com/ShedrackAmodu/school-comm-service/pkg/pubsub"
)

const reconnectDelay = 2 * time.Second

// PubSubBridge replicates group frames between instances over the
// configured bus (Redis Pub/Sub or Kafka). Frames published by this
// instance are skipped on receive so sessions never see duplicates.
type PubSubBridge struct {
	bus        pubsub.PubSub
	instanceID string
	local      LocalDeliverer
	done       chan struct{}
}

// NewPubSubBridge creates a bridge over the given bus.
func NewPubSubBridge(bus pubsub.PubSub, instanceID string, local LocalDeliverer) *PubSubBridge {
	return &PubSubBridge{
		bus:        bus,
		instanceID: instanceID,
		local:      local,
		done:       make(chan struct{}),
	}
}

// Broadcast implements Bridge.
func (b *PubSubBridge) Broadcast(ctx context.Context, group, frameType string, payload []byte) error {
	event := pubsub.NewEvent(frameType, group, b.instanceID, payload)
	return b.bus.Publish(ctx, group, event)
}

// Run consumes peer frames until ctx is cancelled, resubscribing with a
// fixed backoff when the bus connection drops.
func (b *PubSubBridge) Run(ctx context.Context) {
	defer close(b.done)

	l := log.Ctx(ctx)
	for {
		events, err := b.bus.SubscribeGroups(ctx)
		if err != nil {
			l.Error().Err(err).Msg("bridge subscribe failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		l.Info().Msg("bridge subscribed to group frames")
		b.consume(ctx, events)

		if ctx.Err() != nil {
			return
		}
		l.Warn().Msg("bridge stream closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (b *PubSubBridge) consume(ctx context.Context, events <-chan *pubsub.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Origin == b.instanceID {
				continue
			}
			if ev.Group == "" || len(ev.Payload) == 0 {
				continue
			}
			b.local.DeliverLocal(ctx, ev.Group, ev.Payload)
		}
	}
}

// Done is closed once Run has fully stopped.
func (b *PubSubBridge) Done() <-chan struct{} {
	return b.done
}

// Close shuts the underlying bus down.
func (b *PubSubBridge) Close() error {
	return b.bus.Close()
}

var _ Bridge = (*PubSubBridge)(nil)

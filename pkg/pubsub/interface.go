package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Event is a frame envelope published to the group fan-out bus. Payload
// carries the encoded client frame exactly as it is written to sockets;
// Origin identifies the publishing instance so subscribers can skip
// frames they produced themselves.
type Event struct {
	Type      string          `json:"type"`
	Group     string          `json:"group"`
	Origin    string          `json:"origin"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType, group, origin string, payload json.RawMessage) *Event {
	return &Event{
		Type:      eventType,
		Group:     group,
		Origin:    origin,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// PubSub is the transport behind cross-instance group fan-out. Publish
// sends one event to a group channel; SubscribeGroups yields every group
// event published by any instance, including this one.
type PubSub interface {
	Publish(ctx context.Context, group string, event *Event) error
	SubscribeGroups(ctx context.Context) (<-chan *Event, error)
	Close() error
}

package router

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/pkg/pubsub"
)

type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed int
}

func (s *recordingSink) Send(frame []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) lastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// stuckSink simulates a connection whose outbound queue never drains.
type stuckSink struct {
	recordingSink
}

func (s *stuckSink) Send(frame []byte, timeout time.Duration) error {
	return domain.ErrSendTimeout
}

func newTestRegistry(t *testing.T) (*registry.Registry, *recordingSink, *recordingSink) {
	t.Helper()
	reg := registry.New()
	a := &recordingSink{}
	b := &recordingSink{}
	reg.Register("sa", domain.Identity{UserID: "alice"}, a)
	reg.Register("sb", domain.Identity{UserID: "bob"}, b)
	reg.JoinGroup("sa", "room:1")
	reg.JoinGroup("sb", "room:1")
	return reg, a, b
}

func TestPublishDeliversToAllGroupMembers(t *testing.T) {
	reg, a, b := newTestRegistry(t)
	r := NewLocal(reg, Config{SendTimeout: time.Second})

	frame := domain.NewErrorFrame("hello")
	delivered, err := r.Publish(context.Background(), "room:1", frame)
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}

	want, _ := json.Marshal(frame)
	if string(a.lastFrame()) != string(want) || string(b.lastFrame()) != string(want) {
		t.Fatalf("expected both members to receive the identical encoded frame")
	}
}

func TestPublishToUnknownGroupDeliversNothing(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	r := NewLocal(reg, Config{})

	delivered, err := r.Publish(context.Background(), "room:absent", domain.NewErrorFrame("x"))
	if err != nil {
		t.Fatalf("unexpected error publishing to empty group: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("expected no deliveries, got %d", delivered)
	}
}

func TestSlowSessionIsEvictedAndOthersStillReceive(t *testing.T) {
	reg := registry.New()
	healthy := &recordingSink{}
	stuck := &stuckSink{}
	reg.Register("healthy", domain.Identity{UserID: "alice"}, healthy)
	reg.Register("stuck", domain.Identity{UserID: "bob"}, stuck)
	reg.JoinGroup("healthy", "room:1")
	reg.JoinGroup("stuck", "room:1")

	r := NewLocal(reg, Config{SendTimeout: 10 * time.Millisecond})

	delivered, err := r.Publish(context.Background(), "room:1", domain.NewErrorFrame("x"))
	if err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 delivery past the stuck session, got %d", delivered)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected the stuck session to be deregistered, %d sessions remain", reg.Len())
	}
	if stuck.closed == 0 {
		t.Fatalf("expected the stuck session's sink to be closed")
	}

	delivered, _ = r.Publish(context.Background(), "room:1", domain.NewErrorFrame("y"))
	if delivered != 1 {
		t.Fatalf("expected 1 delivery after eviction, got %d", delivered)
	}
	if healthy.frameCount() != 2 {
		t.Fatalf("expected healthy session to receive both frames, got %d", healthy.frameCount())
	}
}

type failingBridge struct{}

func (failingBridge) Broadcast(ctx context.Context, group, frameType string, payload []byte) error {
	return errors.New("bus down")
}
func (failingBridge) Run(ctx context.Context) {}
func (failingBridge) Done() <-chan struct{}   { return nil }
func (failingBridge) Close() error            { return nil }

func TestBridgeFailureDegradesToLocalDelivery(t *testing.T) {
	reg, a, b := newTestRegistry(t)
	r := NewLocal(reg, Config{SendTimeout: time.Second})
	r.AttachBridge(failingBridge{})

	delivered, err := r.Publish(context.Background(), "room:1", domain.NewErrorFrame("x"))
	if err != nil {
		t.Fatalf("bridge failure must not fail the publish, got %v", err)
	}
	if delivered != 2 {
		t.Fatalf("expected local delivery to both members, got %d", delivered)
	}
	if a.frameCount() != 1 || b.frameCount() != 1 {
		t.Fatalf("expected both sinks to receive the frame")
	}
}

// fakeBus is an in-memory pubsub.PubSub for bridge tests.
type fakeBus struct {
	mu        sync.Mutex
	published []*pubsub.Event
	events    chan *pubsub.Event
}

func newFakeBus() *fakeBus {
	return &fakeBus{events: make(chan *pubsub.Event, 16)}
}

func (b *fakeBus) Publish(ctx context.Context, group string, event *pubsub.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	return nil
}

func (b *fakeBus) SubscribeGroups(ctx context.Context) (<-chan *pubsub.Event, error) {
	return b.events, nil
}

func (b *fakeBus) Close() error { return nil }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestPubSubBridgeSkipsOwnFramesAndDeliversPeerFrames(t *testing.T) {
	reg, a, _ := newTestRegistry(t)
	r := NewLocal(reg, Config{SendTimeout: time.Second, InstanceID: "node-a"})

	bus := newFakeBus()
	bridge := NewPubSubBridge(bus, "node-a", r)
	r.AttachBridge(bridge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	// Locally published frames reach the bus tagged with our origin.
	if _, err := r.Publish(ctx, "room:1", domain.NewErrorFrame("local")); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}
	bus.mu.Lock()
	if len(bus.published) != 1 || bus.published[0].Origin != "node-a" {
		bus.mu.Unlock()
		t.Fatalf("expected one bus event tagged with the local origin")
	}
	bus.mu.Unlock()

	// A frame echoed back with our own origin must not be re-delivered.
	bus.events <- pubsub.NewEvent("error", "room:1", "node-a", []byte(`{"type":"error"}`))
	// A peer frame must reach local members.
	bus.events <- pubsub.NewEvent("error", "room:1", "node-b", []byte(`{"type":"error","message":"remote"}`))

	waitFor(t, func() bool { return a.frameCount() == 2 }, "peer frame delivery")
	if got := a.frameCount(); got != 2 {
		t.Fatalf("expected exactly the local and the peer frame, got %d frames", got)
	}
}

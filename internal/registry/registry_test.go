package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed int
}

func (s *fakeSink) Send(frame []byte, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
}

func (s *fakeSink) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func ident(userID string) domain.Identity {
	return domain.Identity{UserID: userID, Username: userID, DisplayName: userID}
}

func TestJoinAndLeaveGroup(t *testing.T) {
	r := New()
	r.Register("s1", ident("alice"), &fakeSink{})
	r.Register("s2", ident("bob"), &fakeSink{})

	r.JoinGroup("s1", "room:1")
	r.JoinGroup("s2", "room:1")
	r.JoinGroup("s2", "room:1")

	if got := r.GroupSize("room:1"); got != 2 {
		t.Fatalf("expected 2 members after duplicate join, got %d", got)
	}

	r.LeaveGroup("s1", "room:1")
	r.LeaveGroup("s1", "room:1")
	if got := r.GroupSize("room:1"); got != 1 {
		t.Fatalf("expected 1 member after leave, got %d", got)
	}

	members := r.MembersOf("room:1")
	if len(members) != 1 || members[0].ID != "s2" {
		t.Fatalf("expected only s2 to remain in the group")
	}
}

func TestDeregisterRemovesMembershipsAndClosesSink(t *testing.T) {
	r := New()
	sink := &fakeSink{}
	r.Register("s1", ident("alice"), sink)
	r.JoinGroup("s1", "room:1")
	r.JoinGroup("s1", "user:alice")

	r.Deregister("s1")

	if got := r.GroupSize("room:1"); got != 0 {
		t.Fatalf("expected empty room group after deregister, got %d", got)
	}
	if got := r.GroupSize("user:alice"); got != 0 {
		t.Fatalf("expected empty user group after deregister, got %d", got)
	}
	if got := sink.closeCount(); got != 1 {
		t.Fatalf("expected sink closed exactly once, got %d", got)
	}
	if got := r.Len(); got != 0 {
		t.Fatalf("expected no live sessions, got %d", got)
	}
}

func TestDeregisterIsIdempotentUnderConcurrency(t *testing.T) {
	r := New()
	sink := &fakeSink{}
	r.Register("s1", ident("alice"), sink)
	r.JoinGroup("s1", "room:1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Deregister("s1")
		}()
	}
	wg.Wait()

	if got := sink.closeCount(); got != 1 {
		t.Fatalf("expected sink closed exactly once, got %d", got)
	}
}

func TestRegisterReplacesExistingSession(t *testing.T) {
	r := New()
	oldSink := &fakeSink{}
	newSink := &fakeSink{}

	r.Register("s1", ident("alice"), oldSink)
	r.JoinGroup("s1", "room:1")
	r.Register("s1", ident("alice"), newSink)

	if got := oldSink.closeCount(); got != 1 {
		t.Fatalf("expected replaced sink to be closed, got %d closes", got)
	}
	if got := r.GroupSize("room:1"); got != 0 {
		t.Fatalf("expected memberships not to carry over, got %d", got)
	}
	if got := r.Len(); got != 1 {
		t.Fatalf("expected one live session, got %d", got)
	}
}

func TestSessionsOfUserAndLeaveGroupByUser(t *testing.T) {
	r := New()
	r.Register("s1", ident("alice"), &fakeSink{})
	r.Register("s2", ident("alice"), &fakeSink{})
	r.Register("s3", ident("bob"), &fakeSink{})

	r.JoinGroup("s1", "room:1")
	r.JoinGroup("s2", "room:1")
	r.JoinGroup("s3", "room:1")

	if got := len(r.SessionsOfUser("alice")); got != 2 {
		t.Fatalf("expected two sessions for alice, got %d", got)
	}

	r.LeaveGroupByUser("alice", "room:1")

	if got := r.GroupSize("room:1"); got != 1 {
		t.Fatalf("expected only bob's session to remain, got %d", got)
	}
	if got := len(r.SessionsOfUser("alice")); got != 2 {
		t.Fatalf("expected alice's sessions to stay registered, got %d", got)
	}
}

func TestTouchUpdatesLastActive(t *testing.T) {
	r := New()
	s := r.Register("s1", ident("alice"), &fakeSink{})

	before := s.LastActive()
	time.Sleep(5 * time.Millisecond)
	r.Touch("s1")

	if !s.LastActive().After(before) {
		t.Fatalf("expected touch to advance last active time")
	}
}

func TestConcurrentJoinsAndBroadcastSnapshot(t *testing.T) {
	r := New()
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		r.Register(id, ident("u-"+id), &fakeSink{})
	}

	var wg sync.WaitGroup
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.JoinGroup(id, "room:1")
				r.MembersOf("room:1")
				r.LeaveGroup(id, "room:1")
			}
			r.JoinGroup(id, "room:1")
		}(id)
	}
	wg.Wait()

	if got := r.GroupSize("room:1"); got != 4 {
		t.Fatalf("expected all sessions in the group, got %d", got)
	}
}

package registry

import (
	"sync"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

// Sink delivers encoded frames to a single connection. Implementations
// must be safe for concurrent use: Send blocks at most timeout and
// returns domain.ErrSendTimeout when the frame cannot be accepted in
// time, and Close is idempotent.
type Sink interface {
	Send(frame []byte, timeout time.Duration) error
	Close()
}

// Session is one live connection together with its registry bookkeeping.
// The registry owns group membership; the gateway owns the sink.
type Session struct {
	ID       string
	Identity domain.Identity

	sink Sink

	mu         sync.RWMutex
	groups     map[string]struct{}
	lastActive time.Time
	createdAt  time.Time
}

// Send forwards an encoded frame to the session's sink.
func (s *Session) Send(frame []byte, timeout time.Duration) error {
	return s.sink.Send(frame, timeout)
}

// Groups returns a snapshot of the session's group memberships.
func (s *Session) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.groups))
	for g := range s.groups {
		out = append(out, g)
	}
	return out
}

// LastActive returns the time of the session's last observed activity.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// CreatedAt returns when the session was registered.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) addGroup(key string) {
	s.mu.Lock()
	s.groups[key] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeGroup(key string) {
	s.mu.Lock()
	delete(s.groups, key)
	s.mu.Unlock()
}

// group owns one fan-out member set.
type group struct {
	mu      sync.RWMutex
	members map[string]*Session
}

func (g *group) snapshot() []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Session, 0, len(g.members))
	for _, s := range g.members {
		out = append(out, s)
	}
	return out
}

// Registry tracks every live session on this instance and the named
// groups they belong to. All methods are safe for concurrent use, and
// membership operations are idempotent. The registry never performs
// network I/O itself beyond closing sinks it evicts.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]*Session
	groups   map[string]*group
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
		groups:   make(map[string]*group),
	}
}

// Register adds a session for the identity. Registering an ID that is
// already present replaces the old session and closes its sink.
func (r *Registry) Register(sessionID string, identity domain.Identity, sink Sink) *Session {
	now := time.Now()
	session := &Session{
		ID:         sessionID,
		Identity:   identity,
		sink:       sink,
		groups:     make(map[string]struct{}),
		lastActive: now,
		createdAt:  now,
	}

	r.mu.Lock()
	replaced := r.removeLocked(sessionID)
	r.sessions[sessionID] = session
	userSessions, ok := r.byUser[identity.UserID]
	if !ok {
		userSessions = make(map[string]*Session)
		r.byUser[identity.UserID] = userSessions
	}
	userSessions[sessionID] = session
	r.mu.Unlock()

	if replaced != nil {
		replaced.sink.Close()
	}
	return session
}

// Deregister removes the session and all of its group memberships, then
// closes its sink. Unknown IDs are ignored, so it is safe to call from
// both the router's eviction path and the gateway's disconnect path.
func (r *Registry) Deregister(sessionID string) {
	r.mu.Lock()
	removed := r.removeLocked(sessionID)
	r.mu.Unlock()

	if removed != nil {
		removed.sink.Close()
	}
}

// removeLocked detaches a session from every index. Caller holds r.mu.
func (r *Registry) removeLocked(sessionID string) *Session {
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	delete(r.sessions, sessionID)

	if userSessions, ok := r.byUser[session.Identity.UserID]; ok {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(r.byUser, session.Identity.UserID)
		}
	}

	for _, key := range session.Groups() {
		r.leaveLocked(session, key)
	}
	return session
}

// leaveLocked removes one membership and drops the group once empty.
// Caller holds r.mu.
func (r *Registry) leaveLocked(session *Session, key string) {
	g, ok := r.groups[key]
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.members, session.ID)
	empty := len(g.members) == 0
	g.mu.Unlock()

	session.removeGroup(key)
	if empty {
		delete(r.groups, key)
	}
}

// JoinGroup adds the session to a group, creating the group on first
// use. Joining twice is a no-op; unknown sessions are ignored.
func (r *Registry) JoinGroup(sessionID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	g, ok := r.groups[key]
	if !ok {
		g = &group{members: make(map[string]*Session)}
		r.groups[key] = g
	}
	g.mu.Lock()
	g.members[sessionID] = session
	g.mu.Unlock()

	session.addGroup(key)
}

// LeaveGroup removes the session from a group. Leaving a group the
// session is not in is a no-op.
func (r *Registry) LeaveGroup(sessionID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	r.leaveLocked(session, key)
}

// LeaveGroupByUser removes every session of the user from a group. The
// sessions themselves stay registered.
func (r *Registry) LeaveGroupByUser(userID, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.byUser[userID] {
		r.leaveLocked(session, key)
	}
}

// MembersOf returns a snapshot of the group's sessions. Sends performed
// on the snapshot happen outside all registry locks.
func (r *Registry) MembersOf(key string) []*Session {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return g.snapshot()
}

// SessionsOfUser returns a snapshot of the user's live sessions.
func (r *Registry) SessionsOfUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userSessions, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(userSessions))
	for _, s := range userSessions {
		out = append(out, s)
	}
	return out
}

// Touch records activity on a session for idle bookkeeping.
func (r *Registry) Touch(sessionID string) {
	r.mu.RLock()
	session, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		session.touch(time.Now())
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// GroupSize returns the current member count of a group.
func (r *Registry) GroupSize(key string) int {
	r.mu.RLock()
	g, ok := r.groups[key]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

package room

import (
	"sync"
	"time"
)

// typingEntry is one live typing indicator: room+user plus the display
// name captured at set time so expiry frames need no extra lookup.
type typingEntry struct {
	roomID    string
	userID    string
	name      string
	expiresAt time.Time
}

// typingTable holds at most one indicator per room+user. Re-setting an
// indicator replaces it, pushing the expiry forward.
type typingTable struct {
	mu      sync.Mutex
	entries map[string]map[string]typingEntry
}

func newTypingTable() *typingTable {
	return &typingTable{entries: make(map[string]map[string]typingEntry)}
}

func (t *typingTable) set(roomID, userID, name string, expiresAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byUser, ok := t.entries[roomID]
	if !ok {
		byUser = make(map[string]typingEntry)
		t.entries[roomID] = byUser
	}
	byUser[userID] = typingEntry{
		roomID:    roomID,
		userID:    userID,
		name:      name,
		expiresAt: expiresAt,
	}
}

// clear removes the indicator and reports whether one existed.
func (t *typingTable) clear(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	byUser, ok := t.entries[roomID]
	if !ok {
		return false
	}
	if _, ok := byUser[userID]; !ok {
		return false
	}
	delete(byUser, userID)
	if len(byUser) == 0 {
		delete(t.entries, roomID)
	}
	return true
}

// sweep removes indicators that expired at or before now and returns
// them so the caller can publish the implied stop frames.
func (t *typingTable) sweep(now time.Time) []typingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []typingEntry
	for roomID, byUser := range t.entries {
		for userID, e := range byUser {
			if e.expiresAt.After(now) {
				continue
			}
			expired = append(expired, e)
			delete(byUser, userID)
		}
		if len(byUser) == 0 {
			delete(t.entries, roomID)
		}
	}
	return expired
}

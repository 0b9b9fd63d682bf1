package directory

import (
	"context"
	"sort"
	"sync"
)

// Entry is one user in the static directory.
type Entry struct {
	ID     string
	Name   string
	Roles  []string
	Active bool
}

// StaticDirectory serves lookups from a fixed in-memory set. It backs
// single-node deployments seeded from config and the test suites.
type StaticDirectory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewStaticDirectory(entries ...Entry) *StaticDirectory {
	d := &StaticDirectory{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		d.entries[e.ID] = e
	}
	return d
}

// Put adds or replaces an entry.
func (d *StaticDirectory) Put(e Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[e.ID] = e
}

func (d *StaticDirectory) ResolveRoleMembers(ctx context.Context, roles []string) ([]string, error) {
	wanted := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		wanted[r] = struct{}{}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, e := range d.entries {
		if !e.Active {
			continue
		}
		for _, r := range e.Roles {
			if _, ok := wanted[r]; ok {
				ids = append(ids, e.ID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *StaticDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	if e.Name == "" {
		return e.ID, nil
	}
	return e.Name, nil
}

func (d *StaticDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[userID]
	if !ok {
		return false, ErrUserNotFound
	}
	return e.Active, nil
}

func (d *StaticDirectory) ActiveUserIDs(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, e := range d.entries {
		if e.Active {
			ids = append(ids, e.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Directory = (*StaticDirectory)(nil)

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
)

// In-memory repositories back the default single-process deployment and
// the test suites. They hold the same contracts as the database-backed
// implementations, including clone-on-read so callers never alias
// internal state.

// MemoryRoomRepository implements RoomRepository in process memory.
type MemoryRoomRepository struct {
	mu           sync.RWMutex
	rooms        map[string]*domain.ChatRoom
	direct       map[string]string
	participants map[string]map[string]*domain.Participant
}

// NewMemoryRoomRepository creates an empty in-memory room repository.
func NewMemoryRoomRepository() *MemoryRoomRepository {
	return &MemoryRoomRepository{
		rooms:        make(map[string]*domain.ChatRoom),
		direct:       make(map[string]string),
		participants: make(map[string]map[string]*domain.Participant),
	}
}

// Create persists the room and seeds its participant records.
func (r *MemoryRoomRepository) Create(ctx context.Context, room *domain.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneRoom(room)
	r.rooms[room.ID] = stored
	if room.Kind == domain.RoomKindDirect && len(room.Members) == 2 {
		r.direct[domain.DirectKey(room.Members[0], room.Members[1])] = room.ID
	}

	seats := make(map[string]*domain.Participant, len(room.Members))
	for _, userID := range room.Members {
		role := domain.ParticipantMember
		if stored.IsAdmin(userID) {
			role = domain.ParticipantAdmin
		}
		seats[userID] = &domain.Participant{
			RoomID:     room.ID,
			UserID:     userID,
			Role:       role,
			JoinedAt:   stored.CreatedAt,
			LastSeenAt: stored.CreatedAt,
		}
	}
	r.participants[room.ID] = seats
	return nil
}

// GetByID returns a copy of the room.
func (r *MemoryRoomRepository) GetByID(ctx context.Context, id string) (*domain.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(room), nil
}

// FindDirect looks a direct room up by its canonical pair key.
func (r *MemoryRoomRepository) FindDirect(ctx context.Context, directKey string) (*domain.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.direct[directKey]
	if !ok {
		return nil, ErrNotFound
	}
	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoom(room), nil
}

// AddMember adds the user to the room and upserts their participant record.
func (r *MemoryRoomRepository) AddMember(ctx context.Context, roomID, userID string, role domain.ParticipantRole, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	if !room.IsMember(userID) {
		room.Members = append(room.Members, userID)
	}
	if role == domain.ParticipantAdmin && !room.IsAdmin(userID) {
		room.Admins = append(room.Admins, userID)
	}
	room.UpdatedAt = at

	seats, ok := r.participants[roomID]
	if !ok {
		seats = make(map[string]*domain.Participant)
		r.participants[roomID] = seats
	}
	if _, ok := seats[userID]; !ok {
		seats[userID] = &domain.Participant{
			RoomID:     roomID,
			UserID:     userID,
			Role:       role,
			JoinedAt:   at,
			LastSeenAt: at,
		}
	}
	return nil
}

// RemoveMember removes the user from the room and drops their record.
func (r *MemoryRoomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.Members = removeString(room.Members, userID)
	room.Admins = removeString(room.Admins, userID)
	room.UpdatedAt = time.Now()

	if seats, ok := r.participants[roomID]; ok {
		delete(seats, userID)
	}
	return nil
}

// SetActive flips the room's active flag.
func (r *MemoryRoomRepository) SetActive(ctx context.Context, roomID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.Active = active
	room.UpdatedAt = time.Now()
	return nil
}

// TouchLastSeen updates the participant's last-seen time. Unknown
// participants are ignored.
func (r *MemoryRoomRepository) TouchLastSeen(ctx context.Context, roomID, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seats, ok := r.participants[roomID]; ok {
		if p, ok := seats[userID]; ok {
			p.LastSeenAt = at
		}
	}
	return nil
}

// Participants returns the room's participant records, oldest join first.
func (r *MemoryRoomRepository) Participants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seats, ok := r.participants[roomID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Participant, 0, len(seats))
	for _, p := range seats {
		out = append(out, *p)
	}
	sortParticipants(out)
	return out, nil
}

// MemoryMessageRepository implements MessageRepository in process memory.
type MemoryMessageRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.ChatMessage
	byRoom  map[string][]*domain.ChatMessage
	highSeq map[string]uint64
}

// NewMemoryMessageRepository creates an empty in-memory message repository.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		byID:    make(map[string]*domain.ChatMessage),
		byRoom:  make(map[string][]*domain.ChatMessage),
		highSeq: make(map[string]uint64),
	}
}

// Create appends the message to its room's history.
func (r *MemoryMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneMessage(msg)
	r.byID[msg.ID] = stored
	r.byRoom[msg.RoomID] = append(r.byRoom[msg.RoomID], stored)
	if msg.Seq > r.highSeq[msg.RoomID] {
		r.highSeq[msg.RoomID] = msg.Seq
	}
	return nil
}

// GetByID returns a copy of the message.
func (r *MemoryMessageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(msg), nil
}

// UpdateBody persists an edit: body, edited flag and edit time.
func (r *MemoryMessageRepository) UpdateBody(ctx context.Context, msg *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[msg.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Body = msg.Body
	stored.Edited = msg.Edited
	stored.EditedAt = msg.EditedAt
	return nil
}

// Delete removes the message from the room history.
func (r *MemoryMessageRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)

	history := r.byRoom[msg.RoomID]
	for i, m := range history {
		if m.ID == id {
			r.byRoom[msg.RoomID] = append(history[:i], history[i+1:]...)
			break
		}
	}
	return nil
}

// ListRecent returns the newest limit messages in ascending order.
func (r *MemoryMessageRepository) ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byRoom[roomID]
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}
	out := make([]domain.ChatMessage, 0, len(history)-start)
	for _, m := range history[start:] {
		out = append(out, *cloneMessage(m))
	}
	return out, nil
}

// MarkRead grows the read-by sets of the given messages. Unknown ids and
// repeated reads are skipped.
func (r *MemoryMessageRepository) MarkRead(ctx context.Context, messageIDs []string, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range messageIDs {
		msg, ok := r.byID[id]
		if !ok {
			continue
		}
		if !msg.ReadByUser(userID) {
			msg.ReadBy = append(msg.ReadBy, userID)
		}
	}
	return nil
}

// LatestSeq returns the room's sequence high-water mark.
func (r *MemoryMessageRepository) LatestSeq(ctx context.Context, roomID string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.highSeq[roomID], nil
}

// MemoryNotificationRepository implements NotificationRepository in
// process memory.
type MemoryNotificationRepository struct {
	mu          sync.RWMutex
	byID        map[string]*domain.Notification
	byRecipient map[string][]*domain.Notification
}

// NewMemoryNotificationRepository creates an empty in-memory notification
// repository.
func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{
		byID:        make(map[string]*domain.Notification),
		byRecipient: make(map[string][]*domain.Notification),
	}
}

// Create persists the notification.
func (r *MemoryNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneNotification(n)
	r.byID[n.ID] = stored
	r.byRecipient[n.RecipientID] = append(r.byRecipient[n.RecipientID], stored)
	return nil
}

// GetByID returns a copy of the notification.
func (r *MemoryNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

// MarkDelivered stamps the delivery time.
func (r *MemoryNotificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	stamp := at
	n.DeliveredAt = &stamp
	return nil
}

// MarkRead flips the recipient's own unread notifications among ids.
func (r *MemoryNotificationRepository) MarkRead(ctx context.Context, ids []string, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, id := range ids {
		n, ok := r.byID[id]
		if !ok || n.RecipientID != userID || n.Read {
			continue
		}
		stamp := at
		n.Read = true
		n.ReadAt = &stamp
		changed++
	}
	return changed, nil
}

// MarkAllRead flips every unread notification of the user.
func (r *MemoryNotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, n := range r.byRecipient[userID] {
		if n.Read {
			continue
		}
		stamp := at
		n.Read = true
		n.ReadAt = &stamp
		changed++
	}
	return changed, nil
}

// UnreadCount counts live unread notifications for the user.
func (r *MemoryNotificationRepository) UnreadCount(ctx context.Context, userID string, now time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.byRecipient[userID] {
		if countsAsUnread(n, now) {
			count++
		}
	}
	return count, nil
}

// ListRecentUnread returns the newest live unread notifications first.
func (r *MemoryNotificationRepository) ListRecentUnread(ctx context.Context, userID string, limit int, now time.Time) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byRecipient[userID]
	out := make([]domain.Notification, 0, limit)
	for i := len(list) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if countsAsUnread(list[i], now) {
			out = append(out, *cloneNotification(list[i]))
		}
	}
	return out, nil
}

// ListDue returns undelivered scheduled notifications whose time has
// arrived, oldest schedule first.
func (r *MemoryNotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Notification, 0)
	for _, n := range r.byID {
		if n.DeliveredAt != nil || n.ScheduledFor == nil {
			continue
		}
		if n.ScheduledFor.After(now) || n.Expired(now) {
			continue
		}
		out = append(out, *cloneNotification(n))
	}
	sortNotificationsBySchedule(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryPreferenceRepository implements PreferenceRepository in process
// memory.
type MemoryPreferenceRepository struct {
	mu    sync.RWMutex
	prefs map[string]*domain.NotificationPreferences
}

// NewMemoryPreferenceRepository creates an empty in-memory preference
// repository.
func NewMemoryPreferenceRepository() *MemoryPreferenceRepository {
	return &MemoryPreferenceRepository{
		prefs: make(map[string]*domain.NotificationPreferences),
	}
}

// Get returns the user's saved preferences.
func (r *MemoryPreferenceRepository) Get(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

// Save upserts the user's preferences.
func (r *MemoryPreferenceRepository) Save(ctx context.Context, prefs *domain.NotificationPreferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *prefs
	r.prefs[prefs.UserID] = &copied
	return nil
}

func countsAsUnread(n *domain.Notification, now time.Time) bool {
	return !n.Read && !n.Expired(now) && !n.ScheduledAfter(now)
}

func cloneRoom(room *domain.ChatRoom) *domain.ChatRoom {
	copied := *room
	copied.Members = append([]string(nil), room.Members...)
	copied.Admins = append([]string(nil), room.Admins...)
	return &copied
}

func cloneMessage(msg *domain.ChatMessage) *domain.ChatMessage {
	copied := *msg
	copied.ReadBy = append([]string(nil), msg.ReadBy...)
	if msg.EditedAt != nil {
		at := *msg.EditedAt
		copied.EditedAt = &at
	}
	return &copied
}

func cloneNotification(n *domain.Notification) *domain.Notification {
	copied := *n
	copied.ReadAt = cloneTime(n.ReadAt)
	copied.DeliveredAt = cloneTime(n.DeliveredAt)
	copied.ScheduledFor = cloneTime(n.ScheduledFor)
	copied.ExpiresAt = cloneTime(n.ExpiresAt)
	return &copied
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}

func sortParticipants(list []domain.Participant) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].UserID < list[j].UserID
		}
		return list[i].JoinedAt.Before(list[j].JoinedAt)
	})
}

func sortNotificationsBySchedule(list []domain.Notification) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].ScheduledFor.Before(*list[j].ScheduledFor)
	})
}

var (
	_ RoomRepository         = (*MemoryRoomRepository)(nil)
	_ MessageRepository      = (*MemoryMessageRepository)(nil)
	_ NotificationRepository = (*MemoryNotificationRepository)(nil)
	_ PreferenceRepository   = (*MemoryPreferenceRepository)(nil)
)

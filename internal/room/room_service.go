package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/ShedrackAmodu/school-comm-service/internal/cache"
	"github.com/ShedrackAmodu/school-comm-service/internal/directory"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/registry"
	"github.com/ShedrackAmodu/school-comm-service/internal/repository"
	"github.com/ShedrackAmodu/school-comm-service/internal/router"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

var (
	ErrEmptyMessage       = errors.New("message body is empty")
	ErrInvalidMessageKind = errors.New("invalid message kind")
	ErrInvalidRoomKind    = errors.New("invalid room kind")
	ErrSameUser           = errors.New("direct room requires two distinct users")
)

// Config carries the room service tunables.
type Config struct {
	HistoryLimit  int
	TypingTTL     time.Duration
	SweepInterval time.Duration
	CacheTTL      time.Duration
}

// roomLock serializes writes to one room. seq is the room's sequence
// high-water mark, seeded lazily from the message store.
type roomLock struct {
	mu     sync.Mutex
	seq    uint64
	seeded bool
}

type serviceImpl struct {
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	router    router.Router
	registry  *registry.Registry
	directory directory.Directory
	cache     cache.HistoryCache
	cfg       Config
	typing    *typingTable
	sf        singleflight.Group

	mu    sync.Mutex
	locks map[string]*roomLock
}

// NewService creates the room service. historyCache may be nil, which
// disables the cache-aside read path.
func NewService(
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	r router.Router,
	reg *registry.Registry,
	dir directory.Directory,
	historyCache cache.HistoryCache,
	cfg Config,
) Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 5 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}

	return &serviceImpl{
		rooms:     rooms,
		messages:  messages,
		router:    r,
		registry:  reg,
		directory: dir,
		cache:     historyCache,
		cfg:       cfg,
		typing:    newTypingTable(),
		locks:     make(map[string]*roomLock),
	}
}

// CreateRoom creates a chat room and seeds its participant records.
func (s *serviceImpl) CreateRoom(ctx context.Context, input CreateRoomInput) (*domain.ChatRoom, error) {
	kind := input.Kind
	if kind == "" {
		kind = domain.RoomKindGroup
	}
	if !kind.Valid() {
		return nil, ErrInvalidRoomKind
	}

	now := time.Now().UTC()
	room := &domain.ChatRoom{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Kind:        kind,
		Description: input.Description,
		Active:      true,
		Members:     uniqueStrings(append(append([]string{}, input.Members...), input.Admins...)),
		Admins:      uniqueStrings(input.Admins),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.rooms.Create(ctx, room); err != nil {
		return nil, err
	}

	return room, nil
}

func (s *serviceImpl) EnsureDirectRoom(ctx context.Context, userA, userB string) (*domain.ChatRoom, error) {
	if userA == userB {
		return nil, ErrSameUser
	}

	existing, err := s.rooms.FindDirect(ctx, domain.DirectKey(userA, userB))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return s.CreateRoom(ctx, CreateRoomInput{
		Kind:    domain.RoomKindDirect,
		Members: []string{userA, userB},
	})
}

func (s *serviceImpl) CheckAccess(ctx context.Context, roomID, userID string) (*domain.ChatRoom, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if !room.IsMember(userID) {
		return nil, domain.ErrNotAMember
	}
	if !room.Active {
		return nil, domain.ErrRoomInactive
	}
	return room, nil
}

func (s *serviceImpl) SendMessage(ctx context.Context, roomID, senderID, body string, kind domain.MessageKind, replyTo string) (*domain.ChatMessage, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if kind == "" {
		kind = domain.MessageKindText
	}
	if !kind.Valid() {
		return nil, ErrInvalidMessageKind
	}

	if _, err := s.CheckAccess(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	// A dangling reply target degrades to a plain message.
	if replyTo != "" {
		if _, err := s.messages.GetByID(ctx, replyTo); err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			replyTo = ""
		}
	}

	// The room lock is held through the publish so members observe
	// messages in sequence order.
	lock := s.lockFor(roomID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if !lock.seeded {
		seq, err := s.messages.LatestSeq(ctx, roomID)
		if err != nil {
			return nil, err
		}
		lock.seq = seq
		lock.seeded = true
	}

	lock.seq++
	msg := &domain.ChatMessage{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  senderID,
		Body:      body,
		Kind:      kind,
		Seq:       lock.seq,
		ReplyTo:   replyTo,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		lock.seq--
		return nil, err
	}

	s.invalidateHistory(ctx, roomID)

	view := domain.BuildMessageView(msg, s.displayName(ctx, senderID), "")
	s.publish(ctx, domain.RoomGroup(roomID), domain.NewMessageFrame(view))

	return msg, nil
}

func (s *serviceImpl) EditMessage(ctx context.Context, messageID, editorID, newBody string) (*domain.ChatMessage, error) {
	newBody = strings.TrimSpace(newBody)
	if newBody == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if msg.SenderID != editorID {
		return nil, domain.ErrNotOwner
	}

	lock := s.lockFor(msg.RoomID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	now := time.Now().UTC()
	msg.Body = newBody
	msg.Edited = true
	msg.EditedAt = &now

	if err := s.messages.UpdateBody(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	s.invalidateHistory(ctx, msg.RoomID)

	view := domain.BuildMessageView(msg, s.displayName(ctx, msg.SenderID), "")
	s.publish(ctx, domain.RoomGroup(msg.RoomID), domain.NewMessageEditedFrame(view))

	return msg, nil
}

func (s *serviceImpl) DeleteMessage(ctx context.Context, messageID, requesterID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	if msg.SenderID != requesterID {
		return domain.ErrNotOwner
	}

	lock := s.lockFor(msg.RoomID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	if err := s.messages.Delete(ctx, messageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	s.invalidateHistory(ctx, msg.RoomID)

	s.publish(ctx, domain.RoomGroup(msg.RoomID), domain.NewMessageDeletedFrame(messageID))

	return nil
}

func (s *serviceImpl) MarkRead(ctx context.Context, messageIDs []string, readerID string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	// Membership is checked once per room; ineligible ids are dropped
	// without error.
	memberOf := make(map[string]bool)
	eligible := make([]string, 0, len(messageIDs))
	touched := make(map[string]struct{})

	for _, id := range messageIDs {
		msg, err := s.messages.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return err
		}

		member, seen := memberOf[msg.RoomID]
		if !seen {
			room, err := s.rooms.GetByID(ctx, msg.RoomID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					memberOf[msg.RoomID] = false
					continue
				}
				return err
			}
			member = room.IsMember(readerID)
			memberOf[msg.RoomID] = member
		}
		if !member {
			continue
		}

		eligible = append(eligible, id)
		touched[msg.RoomID] = struct{}{}
	}

	if len(eligible) == 0 {
		return nil
	}

	if err := s.messages.MarkRead(ctx, eligible, readerID, time.Now().UTC()); err != nil {
		return err
	}

	for roomID := range touched {
		s.invalidateHistory(ctx, roomID)
	}

	return nil
}

func (s *serviceImpl) SetTyping(ctx context.Context, roomID, userID string, isTyping bool) error {
	name := s.displayName(ctx, userID)

	if isTyping {
		s.typing.set(roomID, userID, name, time.Now().Add(s.cfg.TypingTTL))
	} else {
		s.typing.clear(roomID, userID)
	}

	s.publish(ctx, domain.RoomGroup(roomID), domain.NewTypingFrame(domain.UserRef{ID: userID, Name: name}, isTyping))

	return nil
}

func (s *serviceImpl) RecentHistory(ctx context.Context, roomID, viewerID string, limit int) ([]domain.ChatMessage, error) {
	if _, err := s.CheckAccess(ctx, roomID, viewerID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}

	// Only the default page size is cached; other limits go straight to
	// the store.
	if s.cache == nil || limit != s.cfg.HistoryLimit {
		return s.messages.ListRecent(ctx, roomID, limit)
	}

	cacheKey := s.cache.BuildKey(roomID, limit)

	result, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		return s.fetchWithCache(ctx, roomID, limit, cacheKey)
	})
	if err != nil {
		return nil, err
	}

	hit, ok := result.(*cache.HistoryResult)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	return hit.Messages, nil
}

func (s *serviceImpl) fetchWithCache(ctx context.Context, roomID string, limit int, cacheKey string) (*cache.HistoryResult, error) {
	cached, err := s.cache.Get(ctx, cacheKey)
	if err == nil {
		return cached, nil
	}

	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	messages, err := s.messages.ListRecent(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}

	result := &cache.HistoryResult{Messages: messages}

	// Store in cache (async to avoid blocking response)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, cacheKey, result, s.cfg.CacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return result, nil
}

func (s *serviceImpl) RoomInfo(ctx context.Context, roomID string) (*domain.RoomView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	participants, err := s.rooms.Participants(ctx, roomID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.ParticipantView, len(participants))
	for i, p := range participants {
		views[i] = domain.ParticipantView{
			ID:       p.UserID,
			Name:     s.displayName(ctx, p.UserID),
			Role:     p.Role,
			LastSeen: p.LastSeenAt,
		}
	}

	return &domain.RoomView{
		ID:           room.ID,
		Name:         room.Name,
		Description:  room.Description,
		Kind:         room.Kind,
		MemberCount:  room.MemberCount(),
		Participants: views,
	}, nil
}

func (s *serviceImpl) AddMember(ctx context.Context, roomID, userID string) error {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	return s.rooms.AddMember(ctx, roomID, userID, domain.ParticipantMember, time.Now().UTC())
}

// RemoveMember drops the participant and revokes the room group for
// every live session of that user.
func (s *serviceImpl) RemoveMember(ctx context.Context, roomID, userID string) error {
	if err := s.rooms.RemoveMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	s.registry.LeaveGroupByUser(userID, domain.RoomGroup(roomID))

	return nil
}

// Deactivate marks the room inactive and revokes its group from every
// member's sessions. Message history stays readable through the store.
func (s *serviceImpl) Deactivate(ctx context.Context, roomID string) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	if err := s.rooms.SetActive(ctx, roomID, false); err != nil {
		return err
	}

	for _, member := range room.Members {
		s.registry.LeaveGroupByUser(member, domain.RoomGroup(roomID))
	}

	return nil
}

func (s *serviceImpl) TouchLastSeen(ctx context.Context, roomID, userID string) error {
	return s.rooms.TouchLastSeen(ctx, roomID, userID, time.Now().UTC())
}

func (s *serviceImpl) RunTypingSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range s.typing.sweep(time.Now()) {
				s.publish(ctx, domain.RoomGroup(e.roomID),
					domain.NewTypingFrame(domain.UserRef{ID: e.userID, Name: e.name}, false))
			}
		}
	}
}

func (s *serviceImpl) lockFor(roomID string) *roomLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[roomID]
	if !ok {
		lock = &roomLock{}
		s.locks[roomID] = lock
	}
	return lock
}

func (s *serviceImpl) displayName(ctx context.Context, userID string) string {
	name, err := s.directory.DisplayName(ctx, userID)
	if err != nil {
		return userID
	}
	return name
}

func (s *serviceImpl) publish(ctx context.Context, group string, frame domain.Frame) {
	if _, err := s.router.Publish(ctx, group, frame); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldGroup, group).Msg("failed to publish room event")
	}
}

func (s *serviceImpl) invalidateHistory(ctx context.Context, roomID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.cache.BuildKey(roomID, s.cfg.HistoryLimit)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to invalidate history cache")
	}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var _ Service = (*serviceImpl)(nil)

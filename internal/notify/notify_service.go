package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShedrackAmodu/school-comm-service/internal/directory"
	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/internal/repository"
	"github.com/ShedrackAmodu/school-comm-service/internal/router"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

var (
	ErrMissingRecipient = errors.New("notification recipient is required")
	ErrMissingContent   = errors.New("notification title and message are required")
	ErrInvalidType      = errors.New("invalid notification type")
	ErrInvalidPriority  = errors.New("invalid priority")
)

// Config carries the notification service tunables.
type Config struct {
	// ReplayLimit caps RecentUnread when the caller passes no limit.
	ReplayLimit int
	// DueBatch caps how many scheduled notifications one DeliverDue
	// pass picks up.
	DueBatch int
}

type serviceImpl struct {
	notifications repository.NotificationRepository
	preferences   repository.PreferenceRepository
	directory     directory.Directory
	router        router.Router
	cfg           Config
}

func NewService(
	notifications repository.NotificationRepository,
	preferences repository.PreferenceRepository,
	dir directory.Directory,
	r router.Router,
	cfg Config,
) Service {
	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = 10
	}
	if cfg.DueBatch <= 0 {
		cfg.DueBatch = 200
	}

	return &serviceImpl{
		notifications: notifications,
		preferences:   preferences,
		directory:     dir,
		router:        r,
		cfg:           cfg,
	}
}

func (s *serviceImpl) Create(ctx context.Context, input CreateInput) (*domain.Notification, error) {
	if input.RecipientID == "" {
		return nil, ErrMissingRecipient
	}
	title := strings.TrimSpace(input.Title)
	body := strings.TrimSpace(input.Body)
	if title == "" || body == "" {
		return nil, ErrMissingContent
	}
	if !input.Type.Valid() {
		return nil, ErrInvalidType
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, ErrInvalidPriority
	}

	now := time.Now().UTC()
	n := &domain.Notification{
		ID:           uuid.New().String(),
		RecipientID:  input.RecipientID,
		Type:         input.Type,
		Title:        title,
		Body:         body,
		Priority:     priority,
		ActionURL:    input.ActionURL,
		ActionLabel:  input.ActionLabel,
		RefType:      input.RefType,
		RefID:        input.RefID,
		ScheduledFor: input.ScheduledFor,
		ExpiresAt:    input.ExpiresAt,
		CreatedAt:    now,
	}

	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	// Future-scheduled notifications wait for DeliverDue.
	if n.ScheduledAfter(now) {
		return n, nil
	}

	if err := s.deliver(ctx, n); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldNotificationID, n.ID).Msg("notification created but not delivered")
	}

	return n, nil
}

func (s *serviceImpl) Deliver(ctx context.Context, notificationID string) error {
	n, err := s.notifications.GetByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	return s.deliver(ctx, n)
}

// deliver pushes the frame unless expired or vetoed, then stamps
// delivered_at. Vetoed and expired rows are stamped too so DeliverDue
// does not pick them up again.
func (s *serviceImpl) deliver(ctx context.Context, n *domain.Notification) error {
	now := time.Now().UTC()

	if !n.Expired(now) && s.allowsRealtime(ctx, n.RecipientID, n.Type, now) {
		group := domain.UserGroup(n.RecipientID)
		s.publish(ctx, group, domain.NewNotificationFrame(domain.BuildNotificationView(n)))
		s.pushUnreadCount(ctx, n.RecipientID)
	}

	if err := s.notifications.MarkDelivered(ctx, n.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrNotFound
		}
		return err
	}

	return nil
}

func (s *serviceImpl) MarkRead(ctx context.Context, ids []string, userID string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	changed, err := s.notifications.MarkRead(ctx, ids, userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		s.pushUnreadCount(ctx, userID)
	}

	return changed, nil
}

func (s *serviceImpl) MarkAllRead(ctx context.Context, userID string) (int, error) {
	changed, err := s.notifications.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		s.pushUnreadCount(ctx, userID)
	}

	return changed, nil
}

func (s *serviceImpl) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.notifications.UnreadCount(ctx, userID, time.Now().UTC())
}

func (s *serviceImpl) RecentUnread(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = s.cfg.ReplayLimit
	}
	return s.notifications.ListRecentUnread(ctx, userID, limit, time.Now().UTC())
}

func (s *serviceImpl) BulkCreateAndDeliver(ctx context.Context, input BulkInput) (int, error) {
	l := log.Ctx(ctx)

	title := strings.TrimSpace(input.Title)
	body := strings.TrimSpace(input.Body)
	if title == "" || body == "" {
		return 0, ErrMissingContent
	}

	kind := input.Type
	if kind == "" {
		kind = domain.NotificationAnnouncement
	}
	if !kind.Valid() {
		return 0, ErrInvalidType
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return 0, ErrInvalidPriority
	}

	audience := append([]string{}, input.TargetUsers...)
	if len(input.TargetRoles) > 0 {
		resolved, err := s.directory.ResolveRoleMembers(ctx, input.TargetRoles)
		if err != nil {
			return 0, err
		}
		audience = append(audience, resolved...)
	}
	if len(audience) == 0 {
		all, err := s.directory.ActiveUserIDs(ctx)
		if err != nil {
			return 0, err
		}
		audience = all
	}
	audience = uniqueStrings(audience)

	// One bad recipient never rolls back the rest.
	sent := 0
	for _, recipient := range audience {
		_, err := s.Create(ctx, CreateInput{
			RecipientID: recipient,
			Type:        kind,
			Title:       title,
			Body:        body,
			Priority:    priority,
		})
		if err != nil {
			l.Warn().Err(err).Str(log.FieldRecipientID, recipient).Msg("bulk notification failed for recipient")
			continue
		}
		sent++
	}

	l.Info().Int("audience", len(audience)).Int("sent", sent).Msg("bulk notification processed")

	return sent, nil
}

func (s *serviceImpl) DeliverDue(ctx context.Context, now time.Time) (int, error) {
	l := log.Ctx(ctx)

	due, err := s.notifications.ListDue(ctx, now, s.cfg.DueBatch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range due {
		if err := s.deliver(ctx, &due[i]); err != nil {
			l.Warn().Err(err).Str(log.FieldNotificationID, due[i].ID).Msg("failed to deliver scheduled notification")
			continue
		}
		delivered++
	}

	return delivered, nil
}

func (s *serviceImpl) Preferences(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	prefs, err := s.preferences.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			defaults := domain.DefaultPreferences(userID)
			return &defaults, nil
		}
		return nil, err
	}
	return prefs, nil
}

func (s *serviceImpl) SavePreferences(ctx context.Context, prefs *domain.NotificationPreferences) error {
	if prefs.UserID == "" {
		return ErrMissingRecipient
	}
	prefs.UpdatedAt = time.Now().UTC()
	return s.preferences.Save(ctx, prefs)
}

// allowsRealtime applies the recipient's preference predicate. Missing
// rows mean the defaults; a store error fails open so an outage never
// silences delivery.
func (s *serviceImpl) allowsRealtime(ctx context.Context, userID string, t domain.NotificationType, now time.Time) bool {
	prefs, err := s.preferences.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to load notification preferences")
		}
		return true
	}
	return prefs.AllowsRealtime(t, now)
}

func (s *serviceImpl) pushUnreadCount(ctx context.Context, userID string) {
	count, err := s.notifications.UnreadCount(ctx, userID, time.Now().UTC())
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("failed to count unread notifications")
		return
	}
	s.publish(ctx, domain.UserGroup(userID), domain.NewUnreadCountFrame(count))
}

func (s *serviceImpl) publish(ctx context.Context, group string, frame domain.Frame) {
	if _, err := s.router.Publish(ctx, group, frame); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldGroup, group).Msg("failed to publish notification event")
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

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// GormNotificationRepository implements NotificationRepository using GORM.
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewGormNotificationRepository creates a new GORM-based notification
// repository.
func NewGormNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// Create persists a new notification.
func (r *GormNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	l := log.Ctx(ctx)

	model := domain.NotificationToModel(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldNotificationID, n.ID).Msg("failed to create notification in db")
		return err
	}
	n.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a notification by ID.
func (r *GormNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	l := log.Ctx(ctx)

	var model domain.NotificationModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldNotificationID, id).Msg("failed to get notification")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// MarkDelivered stamps the delivery time.
func (r *GormNotificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.NotificationModel{}).
		Where("id = ?", id).
		Update("delivered_at", at)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldNotificationID, id).Msg("failed to mark notification delivered")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRead flips the recipient's own unread notifications among ids.
func (r *GormNotificationRepository) MarkRead(ctx context.Context, ids []string, userID string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.NotificationModel{}).
		Where("id IN ? AND recipient_id = ? AND is_read = ?", ids, userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to mark notifications read")
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// MarkAllRead flips every unread notification of the user.
func (r *GormNotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to mark all notifications read")
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

// UnreadCount counts live unread notifications for the user.
func (r *GormNotificationRepository) UnreadCount(ctx context.Context, userID string, now time.Time) (int, error) {
	l := log.Ctx(ctx)

	var count int64
	err := r.liveUnread(ctx, userID, now).Count(&count).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to count unread notifications")
		return 0, err
	}
	return int(count), nil
}

// ListRecentUnread returns the newest live unread notifications first.
func (r *GormNotificationRepository) ListRecentUnread(ctx context.Context, userID string, limit int, now time.Time) ([]domain.Notification, error) {
	l := log.Ctx(ctx)

	query := r.liveUnread(ctx, userID, now).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []domain.NotificationModel
	if err := query.Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to list unread notifications")
		return nil, err
	}

	out := make([]domain.Notification, 0, len(models))
	for i := range models {
		out = append(out, *models[i].ToDomain())
	}
	return out, nil
}

// ListDue returns undelivered scheduled notifications whose time has
// arrived, oldest schedule first.
func (r *GormNotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	l := log.Ctx(ctx)

	query := r.db.WithContext(ctx).Model(&domain.NotificationModel{}).
		Where("delivered_at IS NULL AND scheduled_for IS NOT NULL AND scheduled_for <= ?", now).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("scheduled_for ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []domain.NotificationModel
	if err := query.Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list due notifications")
		return nil, err
	}

	out := make([]domain.Notification, 0, len(models))
	for i := range models {
		out = append(out, *models[i].ToDomain())
	}
	return out, nil
}

// liveUnread scopes a query to the user's unread notifications that are
// neither expired nor still scheduled for the future.
func (r *GormNotificationRepository) liveUnread(ctx context.Context, userID string, now time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.NotificationModel{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("scheduled_for IS NULL OR scheduled_for <= ?", now)
}

var _ NotificationRepository = (*GormNotificationRepository)(nil)

package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM. The
// read-by set is stored as rows in chat_message_reads whose composite
// key makes repeated marks no-ops.
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-based message repository.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

// Create persists a new message.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to create message in db")
		return err
	}
	msg.CreatedAt = model.CreatedAt
	return nil
}

// GetByID retrieves a message with its read-by set.
func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, result.Error
	}

	msg := model.ToDomain()
	readers, err := r.loadReaders(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	msg.ReadBy = readers[id]
	return msg, nil
}

// UpdateBody persists an edit: body, edited flag and edit time.
func (r *GormMessageRepository) UpdateBody(ctx context.Context, msg *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id = ?", msg.ID).
		Updates(map[string]interface{}{
			"body":      msg.Body,
			"edited":    msg.Edited,
			"edited_at": msg.EditedAt,
		})
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldMessageID, msg.ID).Msg("failed to update message body")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the message and its read records.
func (r *GormMessageRepository) Delete(ctx context.Context, id string) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&domain.MessageReadModel{}, "message_id = ?", id).Error; err != nil {
			return err
		}
		result := tx.Delete(&domain.MessageModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		l.Error().Err(err).Str(log.FieldMessageID, id).Msg("failed to delete message")
	}
	return err
}

// ListRecent returns the newest limit messages in ascending order, with
// read-by sets attached.
func (r *GormMessageRepository) ListRecent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	l := log.Ctx(ctx)

	query := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []domain.MessageModel
	if err := query.Find(&models).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to list recent messages")
		return nil, err
	}

	ids := make([]string, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}
	readers, err := r.loadReaders(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Reverse into ascending order for replay.
	out := make([]domain.ChatMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msg := models[i].ToDomain()
		msg.ReadBy = readers[msg.ID]
		out = append(out, *msg)
	}
	return out, nil
}

// MarkRead inserts read records; the composite primary key deduplicates
// repeated marks.
func (r *GormMessageRepository) MarkRead(ctx context.Context, messageIDs []string, userID string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	l := log.Ctx(ctx)

	rows := make([]domain.MessageReadModel, 0, len(messageIDs))
	for _, id := range messageIDs {
		rows = append(rows, domain.MessageReadModel{
			MessageID: id,
			UserID:    userID,
			ReadAt:    at,
		})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to mark messages read")
	}
	return err
}

// LatestSeq returns the highest sequence number stored for the room.
func (r *GormMessageRepository) LatestSeq(ctx context.Context, roomID string) (uint64, error) {
	l := log.Ctx(ctx)

	var seq *uint64
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("room_id = ?", roomID).
		Select("MAX(seq)").
		Scan(&seq).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to read latest message seq")
		return 0, err
	}
	if seq == nil {
		return 0, nil
	}
	return *seq, nil
}

// loadReaders fetches read-by sets for the given message ids.
func (r *GormMessageRepository) loadReaders(ctx context.Context, messageIDs []string) (map[string][]string, error) {
	if len(messageIDs) == 0 {
		return map[string][]string{}, nil
	}
	l := log.Ctx(ctx)

	var rows []domain.MessageReadModel
	if err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Find(&rows).Error; err != nil {
		l.Error().Err(err).Msg("failed to load message read records")
		return nil, err
	}

	out := make(map[string][]string, len(messageIDs))
	for i := range rows {
		out[rows[i].MessageID] = append(out[rows[i].MessageID], rows[i].UserID)
	}
	return out, nil
}

var _ MessageRepository = (*GormMessageRepository)(nil)

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

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create persists the room and seeds its participant records in one
// transaction.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.ChatRoom) error {
	l := log.Ctx(ctx)

	model := domain.RoomToModel(room)
	seats := make([]domain.ParticipantModel, 0, len(room.Members))
	for _, userID := range room.Members {
		role := domain.ParticipantMember
		if room.IsAdmin(userID) {
			role = domain.ParticipantAdmin
		}
		seats = append(seats, *domain.ParticipantToModel(&domain.Participant{
			RoomID:     room.ID,
			UserID:     userID,
			Role:       role,
			JoinedAt:   room.CreatedAt,
			LastSeenAt: room.CreatedAt,
		}))
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if len(seats) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seats).Error
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to create room in db")
		return err
	}

	room.CreatedAt = model.CreatedAt
	room.UpdatedAt = model.UpdatedAt
	return nil
}

// GetByID retrieves a room by ID.
func (r *GormRoomRepository) GetByID(ctx context.Context, id string) (*domain.ChatRoom, error) {
	l := log.Ctx(ctx)

	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldRoomID, id).Msg("failed to get room by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// FindDirect looks a direct room up by its canonical pair key.
func (r *GormRoomRepository) FindDirect(ctx context.Context, directKey string) (*domain.ChatRoom, error) {
	l := log.Ctx(ctx)

	var model domain.RoomModel
	result := r.db.WithContext(ctx).
		First(&model, "kind = ? AND direct_key = ?", string(domain.RoomKindDirect), directKey)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Msg("failed to find direct room")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// AddMember adds the user to the room's member list and upserts their
// participant record.
func (r *GormRoomRepository) AddMember(ctx context.Context, roomID, userID string, role domain.ParticipantRole, at time.Time) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model domain.RoomModel
		if err := tx.First(&model, "id = ?", roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		room := model.ToDomain()
		changed := false
		if !room.IsMember(userID) {
			model.Members = append(model.Members, userID)
			changed = true
		}
		if role == domain.ParticipantAdmin && !room.IsAdmin(userID) {
			model.Admins = append(model.Admins, userID)
			changed = true
		}
		if changed {
			if err := tx.Model(&domain.RoomModel{}).Where("id = ?", roomID).
				Updates(map[string]interface{}{
					"members": model.Members,
					"admins":  model.Admins,
				}).Error; err != nil {
				return err
			}
		}

		seat := domain.ParticipantToModel(&domain.Participant{
			RoomID:     roomID,
			UserID:     userID,
			Role:       role,
			JoinedAt:   at,
			LastSeenAt: at,
		})
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seat).Error
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Str(log.FieldUserID, userID).
			Msg("failed to add room member")
	}
	return err
}

// RemoveMember removes the user from the room and deletes their record.
func (r *GormRoomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model domain.RoomModel
		if err := tx.First(&model, "id = ?", roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		model.Members = removeString(model.Members, userID)
		model.Admins = removeString(model.Admins, userID)
		if err := tx.Model(&domain.RoomModel{}).Where("id = ?", roomID).
			Updates(map[string]interface{}{
				"members": model.Members,
				"admins":  model.Admins,
			}).Error; err != nil {
			return err
		}

		return tx.Delete(&domain.ParticipantModel{}, "room_id = ? AND user_id = ?", roomID, userID).Error
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Str(log.FieldUserID, userID).
			Msg("failed to remove room member")
	}
	return err
}

// SetActive flips the room's active flag.
func (r *GormRoomRepository) SetActive(ctx context.Context, roomID string, active bool) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.RoomModel{}).
		Where("id = ?", roomID).Update("active", active)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to update room active flag")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastSeen updates the participant's last-seen time. Unknown
// participants are ignored.
func (r *GormRoomRepository) TouchLastSeen(ctx context.Context, roomID, userID string, at time.Time) error {
	l := log.Ctx(ctx)

	result := r.db.WithContext(ctx).Model(&domain.ParticipantModel{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("last_seen_at", at)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Str(log.FieldUserID, userID).
			Msg("failed to touch last seen")
		return result.Error
	}
	return nil
}

// Participants returns the room's participant records, oldest join first.
func (r *GormRoomRepository) Participants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	l := log.Ctx(ctx)

	var models []domain.ParticipantModel
	result := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC, user_id ASC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to list participants")
		return nil, result.Error
	}

	out := make([]domain.Participant, 0, len(models))
	for i := range models {
		out = append(out, *models[i].ToDomain())
	}
	return out, nil
}

var _ RoomRepository = (*GormRoomRepository)(nil)

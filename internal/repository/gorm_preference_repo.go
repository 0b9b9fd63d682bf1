package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ShedrackAmodu/school-comm-service/internal/domain"
	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// GormPreferenceRepository implements PreferenceRepository using GORM.
type GormPreferenceRepository struct {
	db *gorm.DB
}

// NewGormPreferenceRepository creates a new GORM-based preference
// repository.
func NewGormPreferenceRepository(db *gorm.DB) *GormPreferenceRepository {
	return &GormPreferenceRepository{db: db}
}

// Get returns the user's saved preferences.
func (r *GormPreferenceRepository) Get(ctx context.Context, userID string) (*domain.NotificationPreferences, error) {
	l := log.Ctx(ctx)

	var model domain.PreferencesModel
	result := r.db.WithContext(ctx).First(&model, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldUserID, userID).Msg("failed to get notification preferences")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Save upserts the user's preferences.
func (r *GormPreferenceRepository) Save(ctx context.Context, prefs *domain.NotificationPreferences) error {
	l := log.Ctx(ctx)

	model := domain.PreferencesToModel(prefs)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
	if err != nil {
		l.Error().Err(err).Str(log.FieldUserID, prefs.UserID).Msg("failed to save notification preferences")
	}
	return err
}

var _ PreferenceRepository = (*GormPreferenceRepository)(nil)

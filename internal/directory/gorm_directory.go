package directory

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ShedrackAmodu/school-comm-service/pkg/log"
)

// userRow maps the columns this service reads from the platform's
// users table. The table is owned by the account system; no migration
// is issued for it here.
type userRow struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	IsActive  bool
}

func (userRow) TableName() string {
	return "users"
}

// GormDirectory reads role membership and display names from the
// platform database.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) ResolveRoleMembers(ctx context.Context, roles []string) ([]string, error) {
	l := log.Ctx(ctx)

	if len(roles) == 0 {
		return nil, nil
	}

	var ids []string
	err := d.db.WithContext(ctx).
		Table("user_roles").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Joins("JOIN users ON users.id = user_roles.user_id").
		Where("roles.role_type IN ?", roles).
		Where("users.is_active = ?", true).
		Distinct().
		Pluck("user_roles.user_id", &ids).Error
	if err != nil {
		l.Error().Err(err).Strs("roles", roles).Msg("failed to resolve role members")
		return nil, err
	}

	return ids, nil
}

func (d *GormDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	l := log.Ctx(ctx)

	var row userRow
	err := d.db.WithContext(ctx).First(&row, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to load user")
		return "", err
	}

	name := strings.TrimSpace(row.FirstName + " " + row.LastName)
	if name == "" {
		name = row.Email
	}
	if name == "" {
		name = row.ID
	}
	return name, nil
}

func (d *GormDirectory) IsActive(ctx context.Context, userID string) (bool, error) {
	l := log.Ctx(ctx)

	var row userRow
	err := d.db.WithContext(ctx).Select("id", "is_active").First(&row, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUserNotFound
		}
		l.Error().Err(err).Str(log.FieldUserID, userID).Msg("failed to load user")
		return false, err
	}

	return row.IsActive, nil
}

func (d *GormDirectory) ActiveUserIDs(ctx context.Context) ([]string, error) {
	l := log.Ctx(ctx)

	var ids []string
	err := d.db.WithContext(ctx).
		Model(&userRow{}).
		Where("is_active = ?", true).
		Pluck("id", &ids).Error
	if err != nil {
		l.Error().Err(err).Msg("failed to list active users")
		return nil, err
	}

	return ids, nil
}

var _ Directory = (*GormDirectory)(nil)

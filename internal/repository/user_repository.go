package repository

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/pinplace-backend/internal/models"
	"gorm.io/gorm"
)

// UserRepository is the storage contract the session core depends on.
// Lookups return gorm.ErrRecordNotFound when no row matches; unique index
// violations surface as gorm.ErrDuplicatedKey (the DB is opened with
// TranslateError).
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindBySocial(ctx context.Context, provider models.SocialProvider, socialID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id int64, fields map[string]interface{}) error
	SwapRefreshHash(ctx context.Context, id int64, expected string, next *string) (bool, error)
	Delete(ctx context.Context, id int64) error
	Transaction(ctx context.Context, fn func(tx UserRepository) error) error
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) FindBySocial(ctx context.Context, provider models.SocialProvider, socialID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("social_provider = ? AND social_id = ?", provider, socialID).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Update writes the given columns in a single statement.
func (r *GormUserRepository) Update(ctx context.Context, id int64, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SwapRefreshHash replaces the stored refresh hash only if it still equals
// expected. It reports false when another writer got there first.
func (r *GormUserRepository) SwapRefreshHash(ctx context.Context, id int64, expected string, next *string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND hashed_refresh_token = ?", id, expected).
		Update("hashed_refresh_token", next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Delete removes the row permanently, bypassing the soft-delete marker.
func (r *GormUserRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Unscoped().Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormUserRepository) Transaction(ctx context.Context, fn func(tx UserRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormUserRepository{db: tx})
	})
}

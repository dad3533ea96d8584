package repository

import (
	"time"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository handles database operations for User
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByID finds a user by UUID
func (r *UserRepository) FindByID(id uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail finds a user by email
func (r *UserRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ========== API Keys ==========

// CreateAPIKey inserts a new API key record (digest only, never the raw key)
func (r *UserRepository) CreateAPIKey(key *model.APIKey) error {
	return r.db.Create(key).Error
}

// FindAPIKeyByDigest looks up an API key by its SHA-256 digest and stamps its
// last-used time.
func (r *UserRepository) FindAPIKeyByDigest(digest string) (*model.APIKey, error) {
	var key model.APIKey
	err := r.db.Preload("User").Where("digest = ?", digest).First(&key).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	_ = r.db.Model(&key).Update("last_used_at", now).Error

	return &key, nil
}

package repository

import (
	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PushTokenRepository handles database operations for device push tokens
type PushTokenRepository struct {
	db *gorm.DB
}

func NewPushTokenRepository(db *gorm.DB) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Upsert stores or refreshes the FCM token for one of a user's devices
func (r *PushTokenRepository) Upsert(token *model.PushToken) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "updated_at"}),
	}).Create(token).Error
}

// FindByDevice returns the push token registered for a specific device
func (r *PushTokenRepository) FindByDevice(userID uuid.UUID, deviceID string) (*model.PushToken, error) {
	var token model.PushToken
	err := r.db.Where("user_id = ? AND device_id = ?", userID, deviceID).First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Delete removes a device's push token
func (r *PushTokenRepository) Delete(userID uuid.UUID, deviceID string) error {
	return r.db.Where("user_id = ? AND device_id = ?", userID, deviceID).Delete(&model.PushToken{}).Error
}

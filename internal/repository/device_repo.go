package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
)

// DeviceRepository handles the reading sources of an account
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Create registers a device
func (r *DeviceRepository) Create(ctx context.Context, device *model.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

// ForAccount lists an account's devices, oldest first
func (r *DeviceRepository) ForAccount(ctx context.Context, accountID uuid.UUID) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&devices).Error
	return devices, err
}

// FindOwned loads a device only when it belongs to accountID
func (r *DeviceRepository) FindOwned(ctx context.Context, accountID, id uuid.UUID) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// SetActive switches a device on or off. Zero rows means the account does not own it.
func (r *DeviceRepository) SetActive(ctx context.Context, accountID, id uuid.UUID, active bool) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Device{}).
		Where("id = ? AND account_id = ?", id, accountID).
		UpdateColumn("is_active", active)
	return result.RowsAffected, result.Error
}

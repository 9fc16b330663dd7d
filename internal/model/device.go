package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceType is the kind of reading source
type DeviceType string

const (
	DeviceTypeCGM       DeviceType = "cgm"
	DeviceTypeManual    DeviceType = "manual"
	DeviceTypeSimulator DeviceType = "simulator"
)

// Streams reports whether the device pushes readings on its own
func (t DeviceType) Streams() bool {
	return t == DeviceTypeCGM || t == DeviceTypeSimulator
}

// Device is a reading source owned by an account
type Device struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID        uuid.UUID  `json:"account_id" gorm:"type:uuid;not null;index"`
	Type             DeviceType `json:"type" gorm:"type:varchar(20);not null"`
	Provider         string     `json:"provider,omitempty" gorm:"size:100"`
	IsActive         bool       `json:"is_active" gorm:"default:true"`
	SamplingInterval int        `json:"sampling_interval"` // seconds
	CreatedAt        time.Time  `json:"created_at"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// PushTokenKind is the mobile platform of a push token
type PushTokenKind string

const (
	PushTokenIOS     PushTokenKind = "ios"
	PushTokenAndroid PushTokenKind = "android"
)

// PushToken is an opaque push-gateway address for one of an account's devices
type PushToken struct {
	ID        uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID     `json:"account_id" gorm:"type:uuid;not null;index"`
	Token     string        `json:"token" gorm:"size:512;not null;uniqueIndex"`
	Kind      PushTokenKind `json:"kind" gorm:"type:varchar(10);not null"`
	IsActive  bool          `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (t *PushToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

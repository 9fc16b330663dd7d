package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultUnit is applied when a reading arrives without a unit
const DefaultUnit = "mg/dL"

// Trend of the glucose curve at measurement time
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendFlat    Trend = "flat"
)

func (t Trend) Valid() bool {
	return t == TrendRising || t == TrendFalling || t == TrendFlat
}

// ReadingSource tells how a reading entered the system
type ReadingSource string

const (
	SourceCGM    ReadingSource = "cgm"
	SourceManual ReadingSource = "manual"
)

// ReadingContext annotates a history row with the situation of the measurement
type ReadingContext string

const (
	ContextFasting        ReadingContext = "fasting"
	ContextPreprandial    ReadingContext = "preprandial"
	ContextPostprandial1h ReadingContext = "postprandial_1h"
	ContextPostprandial2h ReadingContext = "postprandial_2h"
	ContextBedtime        ReadingContext = "bedtime"
	ContextExercise       ReadingContext = "exercise"
	ContextStress         ReadingContext = "stress"
	ContextCorrection     ReadingContext = "correction"
)

func (c ReadingContext) Valid() bool {
	switch c {
	case ContextFasting, ContextPreprandial, ContextPostprandial1h, ContextPostprandial2h,
		ContextBedtime, ContextExercise, ContextStress, ContextCorrection:
		return true
	}
	return false
}

// ReadingCache is the rolling 30-day window of readings. Rows are pruned,
// so it never serves as the source of truth. ReadingID is shared with the
// history row the cache row was derived from.
type ReadingCache struct {
	ReadingID  uuid.UUID     `json:"reading_id" gorm:"type:uuid;primaryKey"`
	AccountID  uuid.UUID     `json:"account_id" gorm:"type:uuid;not null;index:idx_cache_account_time,priority:1"`
	MeasuredAt time.Time     `json:"measured_at" gorm:"not null;index:idx_cache_account_time,priority:2,sort:desc"`
	Value      float64       `json:"value" gorm:"not null"`
	Unit       string        `json:"unit" gorm:"size:10;not null"`
	Trend      Trend         `json:"trend" gorm:"type:varchar(10);not null"`
	Rate       *float64      `json:"rate,omitempty"`
	Source     ReadingSource `json:"source" gorm:"type:varchar(10);not null"`
	DeviceID   *uuid.UUID    `json:"device_id,omitempty" gorm:"type:uuid"`
}

func (ReadingCache) TableName() string { return "glucose_cache" }

func (r *ReadingCache) BeforeCreate(tx *gorm.DB) error {
	if r.ReadingID == uuid.Nil {
		r.ReadingID = NewReadingID()
	}
	return nil
}

// ReadingHistory is the append-only record of every reading
type ReadingHistory struct {
	ReadingID  uuid.UUID       `json:"reading_id" gorm:"type:uuid;primaryKey"`
	AccountID  uuid.UUID       `json:"account_id" gorm:"type:uuid;not null;index:idx_history_account_time,priority:1"`
	MeasuredAt time.Time       `json:"measured_at" gorm:"not null;index:idx_history_account_time,priority:2,sort:desc"`
	Value      float64         `json:"value" gorm:"not null"`
	Unit       string          `json:"unit" gorm:"size:10;not null"`
	Trend      Trend           `json:"trend" gorm:"type:varchar(10);not null"`
	Rate       *float64        `json:"rate,omitempty"`
	Source     ReadingSource   `json:"source" gorm:"type:varchar(10);not null"`
	DeviceID   *uuid.UUID      `json:"device_id,omitempty" gorm:"type:uuid"`
	Context    *ReadingContext `json:"context,omitempty" gorm:"type:varchar(20)"`
	Notes      string          `json:"notes,omitempty" gorm:"type:text"`
	PhotoURL   string          `json:"photo_url,omitempty" gorm:"size:1000"`
	Location   string          `json:"location,omitempty" gorm:"size:255"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (ReadingHistory) TableName() string { return "glucose_history" }

func (r *ReadingHistory) BeforeCreate(tx *gorm.DB) error {
	if r.ReadingID == uuid.Nil {
		r.ReadingID = NewReadingID()
	}
	return nil
}

// NewReadingID returns a time-ordered id, so readings sharing a measured_at
// still sort in insertion order.
func NewReadingID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// CacheRow derives the rolling cache row for a history row
func (r *ReadingHistory) CacheRow() *ReadingCache {
	return &ReadingCache{
		ReadingID:  r.ReadingID,
		AccountID:  r.AccountID,
		MeasuredAt: r.MeasuredAt,
		Value:      r.Value,
		Unit:       r.Unit,
		Trend:      r.Trend,
		Rate:       r.Rate,
		Source:     r.Source,
		DeviceID:   r.DeviceID,
	}
}

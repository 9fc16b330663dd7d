package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GlucosePrediction is one forecast run for an account. Forecast and band
// payloads are stored as opaque JSON; their producer lives outside this service.
type GlucosePrediction struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	AccountID    uuid.UUID      `json:"account_id" gorm:"type:uuid;not null;uniqueIndex:idx_prediction_run,priority:1"`
	ForTime      time.Time      `json:"for_time" gorm:"not null;uniqueIndex:idx_prediction_run,priority:2"`
	ModelVersion string         `json:"model_version" gorm:"size:50;not null;uniqueIndex:idx_prediction_run,priority:3"`
	Horizons     datatypes.JSON `json:"horizons" gorm:"type:jsonb"`
	Quantiles    datatypes.JSON `json:"quantiles,omitempty" gorm:"type:jsonb"`
	HypoRisk     *float64       `json:"hypo_risk,omitempty"`
	HyperRisk    *float64       `json:"hyper_risk,omitempty"`
	MetaJSON     datatypes.JSON `json:"meta_json,omitempty" gorm:"type:jsonb"`
	CreatedBy    string         `json:"created_by,omitempty" gorm:"size:100"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (GlucosePrediction) TableName() string { return "glucose_predictions" }

func (p *GlucosePrediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

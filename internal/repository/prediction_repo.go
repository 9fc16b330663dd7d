package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PredictionRepository stores forecast runs produced outside this service
type PredictionRepository struct {
	db *gorm.DB
}

func NewPredictionRepository(db *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Upsert stores a run, replacing the payload of an existing (account, for_time, model_version)
func (r *PredictionRepository) Upsert(ctx context.Context, p *model.GlucosePrediction) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "for_time"}, {Name: "model_version"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"horizons", "quantiles", "hypo_risk", "hyper_risk", "meta_json", "created_by",
		}),
	}).Create(p).Error
}

// Latest returns the most recent run for an account
func (r *PredictionRepository) Latest(ctx context.Context, accountID uuid.UUID) (*model.GlucosePrediction, error) {
	var p model.GlucosePrediction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("for_time DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

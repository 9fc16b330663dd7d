package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
)

// PredictionService reads forecast runs written by the external predictor
type PredictionService struct {
	predictions *repository.PredictionRepository
}

func NewPredictionService(predictions *repository.PredictionRepository) *PredictionService {
	return &PredictionService{predictions: predictions}
}

// Latest returns the newest forecast run of an account
func (s *PredictionService) Latest(ctx context.Context, accountID uuid.UUID) (*model.GlucosePrediction, error) {
	p, err := s.predictions.Latest(ctx, accountID)
	if err != nil {
		return nil, notFoundOr(err, "no prediction available")
	}
	return p, nil
}

// Store records a forecast run, replacing an earlier run with the same key
func (s *PredictionService) Store(ctx context.Context, p *model.GlucosePrediction) error {
	if p.AccountID == uuid.Nil {
		return Validation("account_id", "this field is required")
	}
	if p.ModelVersion == "" {
		return Validation("model_version", "this field is required")
	}
	if p.ForTime.IsZero() {
		return Validation("for_time", "this field is required")
	}
	p.ForTime = p.ForTime.UTC()
	if err := s.predictions.Upsert(ctx, p); err != nil {
		return Internal("failed to store prediction", err)
	}
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PushTokenRepository handles push gateway tokens
type PushTokenRepository struct {
	db *gorm.DB
}

func NewPushTokenRepository(db *gorm.DB) *PushTokenRepository {
	return &PushTokenRepository{db: db}
}

// Upsert registers a token for an account. A token seen before is moved to
// this account and reactivated, keeping its id.
func (r *PushTokenRepository) Upsert(ctx context.Context, accountID uuid.UUID, token string, kind model.PushTokenKind) (*model.PushToken, error) {
	t := &model.PushToken{
		AccountID: accountID,
		Token:     token,
		Kind:      kind,
		IsActive:  true,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"account_id", "kind", "is_active", "updated_at"}),
	}).Create(t).Error
	if err != nil {
		return nil, err
	}
	return r.FindByToken(ctx, token)
}

// FindByToken loads a token row whatever its state
func (r *PushTokenRepository) FindByToken(ctx context.Context, token string) (*model.PushToken, error) {
	var t model.PushToken
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ActiveTokens returns the active token strings of an account
func (r *PushTokenRepository) ActiveTokens(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	var tokens []string
	err := r.db.WithContext(ctx).Model(&model.PushToken{}).
		Where("account_id = ? AND is_active = ?", accountID, true).
		Pluck("token", &tokens).Error
	return tokens, err
}

// Deactivate marks tokens as no longer deliverable
func (r *PushTokenRepository) Deactivate(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.PushToken{}).
		Where("token IN ?", tokens).
		UpdateColumns(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

// DeactivateForAccount stops pushes to one of an account's tokens. The row
// stays so a later registration of the same device reactivates it.
func (r *PushTokenRepository) DeactivateForAccount(ctx context.Context, accountID uuid.UUID, token string) error {
	return r.db.WithContext(ctx).Model(&model.PushToken{}).
		Where("account_id = ? AND token = ?", accountID, token).
		UpdateColumns(map[string]interface{}{"is_active": false, "updated_at": time.Now().UTC()}).Error
}

// WithTx returns a repository bound to tx
func (r *PushTokenRepository) WithTx(tx *gorm.DB) *PushTokenRepository {
	return &PushTokenRepository{db: tx}
}

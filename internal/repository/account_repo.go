package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"gorm.io/gorm"
)

// AccountRepository handles accounts, identities and role profiles
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *AccountRepository) WithTx(tx *gorm.DB) *AccountRepository {
	return &AccountRepository{db: tx}
}

func (r *AccountRepository) withProfiles(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Identity").
		Preload("Identity.Profiles").
		Preload("Identity.Profiles.PatientProfile").
		Preload("Identity.Profiles.DoctorProfile")
}

// CreateAccount inserts an account row
func (r *AccountRepository) CreateAccount(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Omit("Identity").Create(account).Error
}

// CreateIdentity inserts an identity row
func (r *AccountRepository) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	return r.db.WithContext(ctx).Omit("Profiles").Create(identity).Error
}

// CreateProfile inserts a profile and its extension record, if any
func (r *AccountRepository) CreateProfile(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).Omit("Identity").Create(profile).Error
}

// FindByID loads an account with its identity and profiles
func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	err := r.withProfiles(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByEmail finds an account by email, case-insensitively
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	err := r.withProfiles(ctx).Where("LOWER(email) = ?", model.NormalizeEmail(email)).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByPhone finds the account whose identity carries phone
func (r *AccountRepository) FindByPhone(ctx context.Context, phone string) (*model.Account, error) {
	var account model.Account
	err := r.withProfiles(ctx).
		Joins("JOIN identities ON identities.account_id = accounts.id").
		Where("identities.phone = ?", phone).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindProfile loads a profile with its identity
func (r *AccountRepository) FindProfile(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).
		Preload("Identity").
		Preload("DoctorProfile").
		Preload("PatientProfile").
		Where("id = ?", id).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindProfileByAccount returns the account's profile for role
func (r *AccountRepository) FindProfileByAccount(ctx context.Context, accountID uuid.UUID, role model.Role) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).
		Preload("Identity").
		Preload("DoctorProfile").
		Preload("PatientProfile").
		Joins("JOIN identities ON identities.id = profiles.identity_id").
		Where("identities.account_id = ? AND profiles.role = ?", accountID, role).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetDoctorVerification records the outcome of a license review
func (r *AccountRepository) SetDoctorVerification(ctx context.Context, profileID uuid.UUID, status model.VerificationStatus, verifiedBy *uuid.UUID, reason string) error {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&model.DoctorProfile{}).
		Where("profile_id = ?", profileID).
		UpdateColumns(map[string]interface{}{
			"verification_status": status,
			"verified_by":         verifiedBy,
			"verified_at":         &now,
			"rejection_reason":    reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// NewAccount is the input of the account factory
type NewAccount struct {
	Email         string
	Password      string
	FirstName     string
	LastName      string
	Phone         string
	Address       string
	Role          model.Role
	DiabetesType  model.DiabetesType
	DiagnosisDate *time.Time
	LicenseNumber string
	Specialty     string
	IsSuperuser   bool
}

// RegistryService resolves principals and owns account creation
type RegistryService struct {
	db       *gorm.DB
	accounts *repository.AccountRepository
	alerts   *repository.AlertRepository
	team     *repository.CareTeamRepository
}

func NewRegistryService(db *gorm.DB, accounts *repository.AccountRepository, alerts *repository.AlertRepository, team *repository.CareTeamRepository) *RegistryService {
	return &RegistryService{db: db, accounts: accounts, alerts: alerts, team: team}
}

// CreateAccount builds an account, its identity, the role profile with its
// extension record, and one alert subscription per active rule, atomically.
// A new patient also takes over the email invitations doctors sent it.
func (s *RegistryService) CreateAccount(ctx context.Context, in NewAccount) (*model.Account, error) {
	switch in.Role {
	case model.RolePatient, model.RoleDoctor, model.RoleAdmin, model.RoleSuperAdmin:
	default:
		return nil, Validation("role", "role must be PATIENT, DOCTOR, ADMIN or SUPERADMIN")
	}
	if in.Role == model.RoleDoctor && in.LicenseNumber == "" {
		return nil, Validation("license_number", "license number is required for doctors")
	}

	if _, err := s.accounts.FindByEmail(ctx, in.Email); err == nil {
		return nil, Conflict("email_taken", "email already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Internal("failed to look up account", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, Internal("failed to hash password", err)
	}

	account := &model.Account{
		Email:       in.Email,
		Password:    string(hashed),
		IsActive:    true,
		IsSuperuser: in.IsSuperuser || in.Role == model.RoleSuperAdmin,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTx(tx)
		if err := accounts.CreateAccount(ctx, account); err != nil {
			return err
		}

		identity := &model.Identity{
			AccountID: &account.ID,
			FirstName: in.FirstName,
			LastName:  in.LastName,
			Phone:     in.Phone,
			Address:   in.Address,
		}
		if err := accounts.CreateIdentity(ctx, identity); err != nil {
			return err
		}

		profile := newProfile(identity.ID, in)
		if err := accounts.CreateProfile(ctx, profile); err != nil {
			return err
		}
		if in.Role == model.RolePatient && s.team != nil {
			n, err := s.team.WithTx(tx).BindInvitations(ctx, account.Email, profile.ID)
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info().Str("account_id", account.ID.String()).Int64("invitations", n).Msg("pending doctor invitations bound to new patient")
			}
		}

		alerts := s.alerts.WithTx(tx)
		rules, err := alerts.ActiveRules(ctx)
		if err != nil {
			return err
		}
		return alerts.SubscribeAll(ctx, account.ID, rules)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Conflict("account_conflict", "email or license number already registered")
		}
		return nil, Internal("failed to create account", err)
	}

	log.Info().Str("account_id", account.ID.String()).Str("role", string(in.Role)).Msg("account created")
	return s.accounts.FindByID(ctx, account.ID)
}

// newProfile builds the role profile with the extension record its role requires
func newProfile(identityID uuid.UUID, in NewAccount) *model.Profile {
	profile := &model.Profile{IdentityID: identityID, Role: in.Role, IsActive: true}
	switch in.Role {
	case model.RolePatient:
		dt := in.DiabetesType
		if dt == "" {
			dt = model.DiabetesType1
		}
		profile.PatientProfile = &model.PatientProfile{DiabetesType: dt, DiagnosisDate: in.DiagnosisDate}
	case model.RoleDoctor:
		profile.DoctorProfile = &model.DoctorProfile{
			LicenseNumber:      in.LicenseNumber,
			VerificationStatus: model.VerificationPending,
			Specialty:          in.Specialty,
		}
	}
	return profile
}

// Authenticate checks an email and password pair
func (s *RegistryService) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Unauthorized("invalid email or password")
		}
		return nil, Internal("failed to find account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return nil, Unauthorized("invalid email or password")
	}
	if !account.IsActive {
		return nil, Unauthorized("account is disabled")
	}
	return account, nil
}

// Principal resolves an account id into the request principal
func (s *RegistryService) Principal(ctx context.Context, accountID uuid.UUID) (model.Principal, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Principal{}, Unauthorized("account not found")
		}
		return model.Principal{}, Internal("failed to resolve principal", err)
	}
	if !account.IsActive {
		return model.Principal{}, Unauthorized("account is disabled")
	}
	return PrincipalOf(account), nil
}

// PrincipalOf builds a principal from an account loaded with its profiles
func PrincipalOf(account *model.Account) model.Principal {
	p := model.Principal{
		AccountID: account.ID,
		Email:     account.Email,
		Profiles:  make(map[model.Role]uuid.UUID),
	}
	if account.Identity != nil {
		p.IdentityID = account.Identity.ID
		for _, profile := range account.Identity.Profiles {
			if !profile.IsActive {
				continue
			}
			p.Profiles[profile.Role] = profile.ID
			p.Roles = append(p.Roles, profile.Role)
		}
	}
	if account.IsSuperuser && !p.Has(model.RoleSuperAdmin) {
		p.Roles = append(p.Roles, model.RoleSuperAdmin)
	}
	return p
}

// VerifyDoctor marks the doctor registered under email as VERIFIED
func (s *RegistryService) VerifyDoctor(ctx context.Context, email string, verifiedBy *uuid.UUID) error {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return notFoundOr(err, "doctor not found")
	}
	profileID, ok := PrincipalOf(account).ProfileID(model.RoleDoctor)
	if !ok {
		return NotFound("doctor not found")
	}
	if err := s.accounts.SetDoctorVerification(ctx, profileID, model.VerificationVerified, verifiedBy, ""); err != nil {
		return notFoundOr(err, "doctor not found")
	}
	log.Info().Str("account_id", account.ID.String()).Msg("doctor verified")
	return nil
}

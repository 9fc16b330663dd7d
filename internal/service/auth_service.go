package service

import (
	"context"

	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/repository"
	"github.com/glycopilot/glycopilot-api/pkg/auth"
	"github.com/rs/zerolog/log"
)

// AuthService handles registration, bearer tokens and push token registration
type AuthService struct {
	registry    *RegistryService
	accounts    *repository.AccountRepository
	tokens      *repository.PushTokenRepository
	jwtManager  *auth.JWTManager
	revocations auth.Revocations
}

func NewAuthService(
	registry *RegistryService,
	accounts *repository.AccountRepository,
	tokens *repository.PushTokenRepository,
	jwtManager *auth.JWTManager,
	revocations auth.Revocations,
) *AuthService {
	return &AuthService{
		registry:    registry,
		accounts:    accounts,
		tokens:      tokens,
		jwtManager:  jwtManager,
		revocations: revocations,
	}
}

// ==================== Register / Login ====================

// Register creates a patient or doctor account and signs a token for it
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.LoginResponse, error) {
	account, err := s.registry.CreateAccount(ctx, NewAccount{
		Email:         req.Email,
		Password:      req.Password,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		Role:          req.Role,
		DiabetesType:  req.DiabetesType,
		LicenseNumber: req.LicenseNumber,
		Specialty:     req.Specialty,
	})
	if err != nil {
		return nil, err
	}
	return s.issue(account)
}

// Login checks credentials and signs a token carrying the account's roles
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	account, err := s.registry.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.issue(account)
}

func (s *AuthService) issue(account *model.Account) (*model.LoginResponse, error) {
	p := PrincipalOf(account)
	token, err := s.jwtManager.GenerateToken(account.ID, account.Email, p.RoleNames())
	if err != nil {
		return nil, Internal("failed to generate token", err)
	}
	return &model.LoginResponse{Token: token, Account: meResponse(account, p)}, nil
}

// ==================== Bearer tokens ====================

// Resolve validates a bearer token, rejects revoked ones and loads the principal
func (s *AuthService) Resolve(ctx context.Context, tokenString string) (model.Principal, *auth.Claims, error) {
	claims, err := s.jwtManager.ValidateToken(tokenString)
	if err != nil {
		return model.Principal{}, nil, Unauthorized("invalid or expired token")
	}
	if s.revocations != nil && claims.ID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return model.Principal{}, nil, Internal("failed to check token revocation", err)
		}
		if revoked {
			return model.Principal{}, nil, Unauthorized("token has been revoked")
		}
	}
	p, err := s.registry.Principal(ctx, claims.AccountID)
	if err != nil {
		return model.Principal{}, nil, err
	}
	return p, claims, nil
}

// Logout revokes the token for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.revocations == nil || claims == nil || claims.ID == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.ID, s.jwtManager.Remaining(claims)); err != nil {
		return Internal("failed to revoke token", err)
	}
	log.Info().Str("account_id", claims.AccountID.String()).Msg("token revoked")
	return nil
}

// Me describes the principal's account
func (s *AuthService) Me(ctx context.Context, p model.Principal) (*model.MeResponse, error) {
	account, err := s.accounts.FindByID(ctx, p.AccountID)
	if err != nil {
		return nil, notFoundOr(err, "account not found")
	}
	me := meResponse(account, p)
	return &me, nil
}

func meResponse(account *model.Account, p model.Principal) model.MeResponse {
	me := model.MeResponse{AccountID: account.ID, Email: account.Email, Roles: p.Roles}
	if me.Roles == nil {
		me.Roles = []model.Role{}
	}
	if account.Identity != nil {
		me.FirstName = account.Identity.FirstName
		me.LastName = account.Identity.LastName
	}
	return me
}

// ==================== Push tokens ====================

// RegisterPushToken stores a device token for alert pushes. Registering a
// known token moves it to this account and reactivates it.
func (s *AuthService) RegisterPushToken(ctx context.Context, p model.Principal, req model.RegisterPushTokenRequest) (*model.PushToken, error) {
	token, err := s.tokens.Upsert(ctx, p.AccountID, req.Token, req.Kind)
	if err != nil {
		return nil, Internal("failed to register push token", err)
	}
	log.Info().Str("account_id", p.AccountID.String()).Str("kind", string(req.Kind)).Msg("push token registered")
	return token, nil
}

// RemovePushToken deactivates one of the principal's device tokens
func (s *AuthService) RemovePushToken(ctx context.Context, p model.Principal, token string) error {
	if err := s.tokens.DeactivateForAccount(ctx, p.AccountID, token); err != nil {
		return Internal("failed to remove push token", err)
	}
	return nil
}


package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRevocations keeps revoked token ids in a map
type memoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemoryRevocations() *memoryRevocations {
	return &memoryRevocations{revoked: map[string]time.Duration{}}
}

func (m *memoryRevocations) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = ttl
	return nil
}

func (m *memoryRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func newAuthService(f *fixture) (*AuthService, *memoryRevocations) {
	revocations := newMemoryRevocations()
	jwtManager := auth.NewJWTManager(auth.KeySet{Main: []byte("test-main"), Admin: []byte("test-admin")}, time.Hour, nil)
	return NewAuthService(f.registry, f.accounts, f.tokens, jwtManager, revocations), revocations
}

func TestAuth_RegisterLoginResolve(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()

	resp, err := svc.Register(ctx, model.RegisterRequest{
		Email:     "Alice@Example.com",
		Password:  "password123",
		FirstName: "Alice",
		LastName:  "Doe",
		Role:      model.RolePatient,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "alice@example.com", resp.Account.Email)
	assert.Equal(t, []model.Role{model.RolePatient}, resp.Account.Roles)

	login, err := svc.Login(ctx, model.LoginRequest{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	p, claims, err := svc.Resolve(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.Account.AccountID, p.AccountID)
	assert.True(t, p.Has(model.RolePatient))
	_, ok := p.ProfileID(model.RolePatient)
	assert.True(t, ok)
	assert.Equal(t, p.AccountID, claims.AccountID)

	me, err := svc.Me(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Alice", me.FirstName)
}

func TestAuth_RegistrationSubscribesActiveRules(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t, "p1@example.com")

	subs, err := f.alertsDB.UserRules(context.Background(), p.AccountID)
	require.NoError(t, err)
	assert.Len(t, subs, len(model.DefaultAlertRules()))
}

func TestAuth_DuplicateEmailIsConflict(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	ctx := context.Background()
	req := model.RegisterRequest{Email: "dup@example.com", Password: "password123", FirstName: "A", LastName: "B", Role: model.RolePatient}

	_, err := svc.Register(ctx, req)
	require.NoError(t, err)
	req.Email = "DUP@example.com"
	_, err = svc.Register(ctx, req)
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestAuth_DoctorNeedsLicense(t *testing.T) {
	f := newFixture(t)
	_, err := f.registry.CreateAccount(context.Background(), NewAccount{
		Email: "doc@example.com", Password: "password123", Role: model.RoleDoctor,
	})
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestAuth_LoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	f.patient(t, "p1@example.com")
	ctx := context.Background()

	_, err := svc.Login(ctx, model.LoginRequest{Email: "p1@example.com", Password: "wrong-password"})
	assert.Equal(t, KindAuth, kindOf(t, err))
	_, err = svc.Login(ctx, model.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.Equal(t, KindAuth, kindOf(t, err))
}

func TestAuth_LogoutRevokesToken(t *testing.T) {
	f := newFixture(t)
	svc, revocations := newAuthService(f)
	f.patient(t, "p1@example.com")
	ctx := context.Background()

	login, err := svc.Login(ctx, model.LoginRequest{Email: "p1@example.com", Password: "password123"})
	require.NoError(t, err)
	_, claims, err := svc.Resolve(ctx, login.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims))
	assert.Greater(t, revocations.revoked[claims.ID], time.Duration(0))

	_, _, err = svc.Resolve(ctx, login.Token)
	assert.Equal(t, KindAuth, kindOf(t, err))

	_, _, err = svc.Resolve(ctx, "not-a-token")
	assert.Equal(t, KindAuth, kindOf(t, err))
}

func TestAuth_PushTokens(t *testing.T) {
	f := newFixture(t)
	svc, _ := newAuthService(f)
	first := f.patient(t, "p1@example.com")
	second := f.patient(t, "p2@example.com")
	ctx := context.Background()

	registered, err := svc.RegisterPushToken(ctx, first, model.RegisterPushTokenRequest{Token: "device-1", Kind: model.PushTokenIOS})
	require.NoError(t, err)

	// the same device signing into another account moves the token
	moved, err := svc.RegisterPushToken(ctx, second, model.RegisterPushTokenRequest{Token: "device-1", Kind: model.PushTokenIOS})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, moved.ID)
	assert.Equal(t, second.AccountID, moved.AccountID)

	tokens, err := f.tokens.ActiveTokens(ctx, first.AccountID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
	tokens, err = f.tokens.ActiveTokens(ctx, second.AccountID)
	require.NoError(t, err)
	assert.Equal(t, []string{"device-1"}, tokens)

	// another account cannot switch it off
	require.NoError(t, svc.RemovePushToken(ctx, first, "device-1"))
	tokens, err = f.tokens.ActiveTokens(ctx, second.AccountID)
	require.NoError(t, err)
	assert.Equal(t, []string{"device-1"}, tokens)

	require.NoError(t, svc.RemovePushToken(ctx, second, "device-1"))
	tokens, err = f.tokens.ActiveTokens(ctx, second.AccountID)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	row, err := f.tokens.FindByToken(ctx, "device-1")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, row.ID)
	assert.False(t, row.IsActive)

	again, err := svc.RegisterPushToken(ctx, second, model.RegisterPushTokenRequest{Token: "device-1", Kind: model.PushTokenAndroid})
	require.NoError(t, err)
	assert.Equal(t, registered.ID, again.ID)
	assert.True(t, again.IsActive)
	assert.Equal(t, model.PushTokenAndroid, again.Kind)
}

func TestRegistry_VerifyDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.doctor(t, "doc@example.com", false)

	profile, err := f.accounts.FindProfileByAccount(ctx, d.AccountID, model.RoleDoctor)
	require.NoError(t, err)
	assert.False(t, profile.DoctorProfile.IsVerified())

	require.NoError(t, f.registry.VerifyDoctor(ctx, "doc@example.com", nil))
	profile, err = f.accounts.FindProfileByAccount(ctx, d.AccountID, model.RoleDoctor)
	require.NoError(t, err)
	assert.True(t, profile.DoctorProfile.IsVerified())

	f.patient(t, "p1@example.com")
	err = f.registry.VerifyDoctor(ctx, "p1@example.com", nil)
	assert.Equal(t, KindNotFound, kindOf(t, err))
}

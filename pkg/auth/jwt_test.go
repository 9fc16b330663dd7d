package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(counter prometheus.Counter) *JWTManager {
	return NewJWTManager(KeySet{Main: []byte("main-key"), Admin: []byte("admin-key")}, time.Hour, counter)
}

func TestJWTManager_MainKeyRoundTrip(t *testing.T) {
	m := newManager(nil)
	id := uuid.New()

	token, err := m.GenerateToken(id, "p@example.com", []string{"PATIENT"})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.AccountID)
	assert.Equal(t, []string{"PATIENT"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTManager_AdminKeyCountsAcceptance(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_admin_accepted"})
	m := newManager(counter)

	token, err := m.GenerateToken(uuid.New(), "admin@example.com", []string{"ADMIN"})
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdministrative())
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))
}

func TestJWTManager_AdminKeyRejectsNonAdminRoles(t *testing.T) {
	m := newManager(nil)

	claims := &Claims{
		AccountID: uuid.New(),
		Roles:     []string{"PATIENT"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("admin-key"))
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrAdminKeyMisuse)
}

func TestJWTManager_RejectsForeignKeyAndExpiry(t *testing.T) {
	m := newManager(nil)

	foreign := NewJWTManager(KeySet{Main: []byte("other")}, time.Hour, nil)
	token, err := foreign.GenerateToken(uuid.New(), "x@example.com", []string{"PATIENT"})
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.Error(t, err)

	expired := NewJWTManager(KeySet{Main: []byte("main-key")}, -time.Minute, nil)
	token, err = expired.GenerateToken(uuid.New(), "x@example.com", []string{"PATIENT"})
	require.NoError(t, err)
	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestJWTManager_AdminRolesNeedAdminKey(t *testing.T) {
	m := NewJWTManager(KeySet{Main: []byte("main-key")}, time.Hour, nil)
	_, err := m.GenerateToken(uuid.New(), "a@example.com", []string{"SUPERADMIN"})
	assert.ErrorIs(t, err, ErrAdminKeyDisabled)
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Administrative roles are the only ones allowed on admin-key tokens
var adminRoles = map[string]bool{"ADMIN": true, "SUPERADMIN": true}

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrAdminKeyMisuse   = errors.New("admin-signed token without administrative role")
	ErrAdminKeyDisabled = errors.New("admin signing key not configured")
)

// Claims represents JWT claims
type Claims struct {
	AccountID uuid.UUID `json:"account_id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	jwt.RegisteredClaims
}

// IsAdministrative reports whether the claims carry an admin role
func (c *Claims) IsAdministrative() bool {
	for _, r := range c.Roles {
		if adminRoles[r] {
			return true
		}
	}
	return false
}

// KeySet is the pair of HMAC keys tokens are validated against, in order
type KeySet struct {
	Main  []byte
	Admin []byte
}

// JWTManager handles JWT token operations
type JWTManager struct {
	keys          KeySet
	expiry        time.Duration
	adminAccepted prometheus.Counter
}

// NewJWTManager creates a new JWT manager. adminAccepted may be nil.
func NewJWTManager(keys KeySet, expiry time.Duration, adminAccepted prometheus.Counter) *JWTManager {
	return &JWTManager{
		keys:          keys,
		expiry:        expiry,
		adminAccepted: adminAccepted,
	}
}

// GenerateToken signs a token for an account. Administrative role sets are
// signed with the admin key, everything else with the main key.
func (j *JWTManager) GenerateToken(accountID uuid.UUID, email string, roles []string) (string, error) {
	claims := &Claims{
		AccountID: accountID,
		Email:     email,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "glycopilot",
		},
	}

	key := j.keys.Main
	if claims.IsAdministrative() {
		if len(j.keys.Admin) == 0 {
			return "", ErrAdminKeyDisabled
		}
		key = j.keys.Admin
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ValidateToken parses a token against the main key, then the admin key.
// The admin key is only tried when the main key reports a bad signature, and
// a token it accepts must carry an administrative role.
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := parse(tokenString, j.keys.Main)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, jwt.ErrTokenSignatureInvalid) || len(j.keys.Admin) == 0 {
		return nil, err
	}

	claims, err = parse(tokenString, j.keys.Admin)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdministrative() {
		return nil, ErrAdminKeyMisuse
	}
	if j.adminAccepted != nil {
		j.adminAccepted.Inc()
	}
	return claims, nil
}

// Remaining returns how long the token stays valid, used to size revocation entries
func (j *JWTManager) Remaining(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return j.expiry
	}
	return time.Until(claims.ExpiresAt.Time)
}

func parse(tokenString string, key []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

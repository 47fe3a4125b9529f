package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is one of the three fixed account roles.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Landing surfaces per role, plus the two reroute targets used by the guard.
const (
	LoginPath        = "/login"
	VerifyDoctorPath = "/verify-doctor"
)

// LandingFor returns the surface a role is sent to after sign-in or when it
// strays onto a route it may not use.
func LandingFor(r Role) string {
	switch r {
	case RoleDoctor:
		return "/doctor/dashboard"
	case RoleAdmin:
		return "/admin/dashboard"
	default:
		return "/dashboard"
	}
}

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenConfig configures session token signing.
type TokenConfig struct {
	Issuer string
	// SigningKey is the HMAC secret.
	SigningKey []byte
	TTL        time.Duration
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

var errNoSigningKey = errors.New("auth: signing key is empty")

// NewTokenIssuer returns an issuer. TTL defaults to 24h.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errNoSigningKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "triage"
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}, nil
}

// Issue signs a fresh token for userID. Every token gets a unique jti so it
// can be revoked on its own.
func (t *TokenIssuer) Issue(userID string, role Role) (string, *Claims, error) {
	now := t.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TTL)),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, issuer and expiry and returns the claims.
func (t *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" || claims.ID == "" || !claims.Role.Valid() {
		return nil, errors.New("token is missing subject, id or role")
	}
	return claims, nil
}

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	iss, err := NewTokenIssuer(TokenConfig{SigningKey: testSigningKey, TTL: time.Hour})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

func TestNewTokenIssuer_RequiresKey(t *testing.T) {
	if _, err := NewTokenIssuer(TokenConfig{}); err == nil {
		t.Fatal("expected error for empty signing key")
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	iss := newTestIssuer(t)

	tok, issued, err := iss.Issue("user-1", RoleDoctor)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-1" || claims.Role != RoleDoctor {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Errorf("expected jti %q, got %q", issued.ID, claims.ID)
	}
}

func TestTokenIssuer_UniqueIDs(t *testing.T) {
	iss := newTestIssuer(t)
	_, a, _ := iss.Issue("user-1", RolePatient)
	_, b, _ := iss.Issue("user-1", RolePatient)
	if a.ID == b.ID {
		t.Error("expected distinct jti per token")
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	iss := newTestIssuer(t)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _, err := iss.Issue("user-1", RolePatient)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	iss.now = time.Now
	if _, err := iss.Parse(tok); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestTokenIssuer_WrongKey(t *testing.T) {
	iss := newTestIssuer(t)
	other, _ := NewTokenIssuer(TokenConfig{SigningKey: []byte("another-secret-key-of-enough-size")})
	tok, _, _ := other.Issue("user-1", RoleAdmin)
	if _, err := iss.Parse(tok); err == nil {
		t.Fatal("expected token signed with another key to be rejected")
	}
}

func TestTokenIssuer_RejectsForgedClaims(t *testing.T) {
	iss := newTestIssuer(t)
	tests := []struct {
		name   string
		claims Claims
		method jwt.SigningMethod
	}{
		{
			name: "unknown role",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					ID: "x", Subject: "u", Issuer: "triage",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
				Role: "superuser",
			},
			method: jwt.SigningMethodHS256,
		},
		{
			name: "no expiry",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{ID: "x", Subject: "u", Issuer: "triage"},
				Role:             RolePatient,
			},
			method: jwt.SigningMethodHS256,
		},
		{
			name: "wrong issuer",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					ID: "x", Subject: "u", Issuer: "elsewhere",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
				Role: RolePatient,
			},
			method: jwt.SigningMethodHS256,
		},
		{
			name: "other hmac alg",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					ID: "x", Subject: "u", Issuer: "triage",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
				Role: RolePatient,
			},
			method: jwt.SigningMethodHS512,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := jwt.NewWithClaims(tt.method, tt.claims).SignedString(testSigningKey)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := iss.Parse(tok); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestLandingFor(t *testing.T) {
	tests := map[Role]string{
		RolePatient: "/dashboard",
		RoleDoctor:  "/doctor/dashboard",
		RoleAdmin:   "/admin/dashboard",
	}
	for role, want := range tests {
		if got := LandingFor(role); got != want {
			t.Errorf("LandingFor(%s) = %s, want %s", role, got, want)
		}
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []Role{RolePatient, RoleDoctor, RoleAdmin} {
		if !r.Valid() {
			t.Errorf("expected %s valid", r)
		}
	}
	if Role("nurse").Valid() || Role("").Valid() {
		t.Error("expected unknown roles invalid")
	}
}

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/careportal/triage/internal/platform/apperr"
	"github.com/careportal/triage/internal/platform/telemetry"
)

type contextKey string

const sessionKey contextKey = "session"

// Session is the authenticated caller of a request.
type Session struct {
	UserID    string
	Role      Role
	TokenID   string
	ExpiresAt time.Time
}

// WithSession stores s on ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the caller placed by Authenticate.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

func UserIDFromContext(ctx context.Context) string {
	if s, ok := SessionFromContext(ctx); ok {
		return s.UserID
	}
	return ""
}

func RoleFromContext(ctx context.Context) Role {
	if s, ok := SessionFromContext(ctx); ok {
		return s.Role
	}
	return ""
}

// VerificationLookup reports a doctor's current verification state.
type VerificationLookup interface {
	IsVerified(ctx context.Context, userID string) (bool, error)
}

// VerificationLookupFunc adapts a function to VerificationLookup.
type VerificationLookupFunc func(ctx context.Context, userID string) (bool, error)

func (f VerificationLookupFunc) IsVerified(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

// Guard evaluates session tokens and role rules for every request.
type Guard struct {
	tokens  *TokenIssuer
	revoked RevocationStore
	logger  zerolog.Logger
	metrics *telemetry.Provider
}

// NewGuard builds a Guard. metrics may be nil.
func NewGuard(tokens *TokenIssuer, revoked RevocationStore, logger zerolog.Logger, metrics *telemetry.Provider) *Guard {
	return &Guard{
		tokens:  tokens,
		revoked: revoked,
		logger:  logger.With().Str("component", "auth").Logger(),
		metrics: metrics,
	}
}

// Tokens exposes the issuer used by the guard.
func (g *Guard) Tokens() *TokenIssuer { return g.tokens }

// Revocations exposes the revocation store used by the guard.
func (g *Guard) Revocations() RevocationStore { return g.revoked }

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// resolve turns the request's bearer token into a Session. A missing token
// yields (nil, nil).
func (g *Guard) resolve(c echo.Context) (*Session, error) {
	const op = "auth.authenticate"

	raw := bearerToken(c.Request())
	if raw == "" {
		if c.Request().Header.Get(echo.HeaderAuthorization) != "" {
			return nil, apperr.Unauthenticated(op, "invalid authorization format", LoginPath)
		}
		return nil, nil
	}

	claims, err := g.tokens.Parse(raw)
	if err != nil {
		return nil, apperr.Unauthenticated(op, "invalid or expired session", LoginPath)
	}

	revoked, err := g.revoked.IsRevoked(c.Request().Context(), claims.ID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if revoked {
		return nil, apperr.Unauthenticated(op, "session has been signed out", LoginPath)
	}

	s := &Session{UserID: claims.Subject, Role: claims.Role, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

func (g *Guard) deny(reason string, err error) error {
	g.metrics.RecordDenial(reason)
	return err
}

// Authenticate requires a valid, unrevoked session token and stores the
// caller on the request context. Failures reroute to the login surface.
func (g *Guard) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := g.resolve(c)
			if err != nil {
				return g.deny("unauthenticated", err)
			}
			if s == nil {
				return g.deny("unauthenticated",
					apperr.Unauthenticated("auth.authenticate", "missing authorization header", LoginPath))
			}
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
			c.Set("user_id", s.UserID)
			return next(c)
		}
	}
}

// GuestOnly lets anonymous requests through and bounces signed-in callers
// to their landing surface with 303 See Other. An invalid token is treated
// as anonymous.
func (g *Guard) GuestOnly() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := g.resolve(c)
			if err != nil || s == nil {
				return next(c)
			}
			landing := LandingFor(s.Role)
			g.metrics.RecordDenial("guest_only")
			c.Response().Header().Set(echo.HeaderLocation, landing)
			return c.JSON(http.StatusSeeOther, map[string]interface{}{
				"success":  false,
				"message":  "already signed in",
				"redirect": landing,
			})
		}
	}
}

// RequireRole admits callers holding one of roles. Others are rerouted to
// their own landing surface. Must run after Authenticate.
func (g *Guard) RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := SessionFromContext(c.Request().Context())
			if !ok {
				return g.deny("unauthenticated",
					apperr.Unauthenticated("auth.require_role", "authentication required", LoginPath))
			}
			for _, r := range roles {
				if s.Role == r {
					return next(c)
				}
			}
			g.logger.Info().
				Str("user_id", s.UserID).
				Str("role", string(s.Role)).
				Str("path", c.Path()).
				Msg("role mismatch")
			return g.deny("role_mismatch",
				apperr.Forbidden("auth.require_role", "access denied for role "+string(s.Role), LandingFor(s.Role)))
		}
	}
}

// RequireVerified blocks doctors whose credentials have not been verified,
// rerouting them to the verification surface. Other roles pass. The state
// is looked up on every request so a fresh verification takes effect
// without a new token.
func (g *Guard) RequireVerified(lookup VerificationLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := SessionFromContext(c.Request().Context())
			if !ok {
				return g.deny("unauthenticated",
					apperr.Unauthenticated("auth.require_verified", "authentication required", LoginPath))
			}
			if s.Role != RoleDoctor {
				return next(c)
			}
			verified, err := lookup.IsVerified(c.Request().Context(), s.UserID)
			if err != nil {
				return err
			}
			if !verified {
				return g.deny("unverified",
					apperr.Forbidden("auth.require_verified", "doctor credentials are not verified", VerifyDoctorPath))
			}
			return next(c)
		}
	}
}

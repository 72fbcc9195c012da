// Package identity issues and verifies the bearer access tokens that carry
// caller identity across the HTTP boundary (component C1). Core operations
// never parse Authorization headers themselves — the transport layer calls
// Verify once and attaches the result to the request context (see
// internal/middleware), so business logic only ever reads a caller's user id
// and role from context, never from a token string.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/fitbhag/ticketing/backend/internal/apperr"
	"github.com/fitbhag/ticketing/backend/internal/cache"
	"github.com/fitbhag/ticketing/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessTokenType is the fixed "type" claim on every access token, so a QR
// or other future token kind presented here is rejected outright rather
// than accepted on the strength of a shared signing secret alone.
const accessTokenType = "access"

// Claims is the payload embedded in every access token.
type Claims struct {
	UserID string      `json:"sub"`
	Role   models.Role `json:"role"`
	Type   string      `json:"type"`
	jwt.RegisteredClaims
}

// Caller is what the transport layer attaches to a request's context.
type Caller struct {
	UserID string
	Role   models.Role
}

// Service issues and verifies access tokens, honouring revocation via the
// supplied cache.
type Service struct {
	secret []byte
	ttl    time.Duration
	revoke cache.Cache
}

// New builds a Service. ttl is the lifetime of freshly issued tokens.
func New(secret string, ttl time.Duration, revoke cache.Cache) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, revoke: revoke}
}

// Issue mints a signed access token for the given user/role.
func (s *Service) Issue(userID string, role models.Role) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Role:   role,
		Type:   accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", apperr.System("TokenSignFailed", err)
	}
	return signed, nil
}

// Verify parses and validates tok, distinguishing why a token was rejected
// (expired, malformed, wrong token type, or revoked) so callers can log and
// respond accordingly, the same way qrcode.Codec.Parse's caller classifies
// ErrTokenExpired separately from a generic decode failure.
func (s *Service) Verify(ctx context.Context, tok string) (*Caller, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.New(apperr.CategoryAuthentication, "TokenExpired", "token expired", "session has expired, please sign in again").WithSeverity(apperr.SeverityInfo)
		}
		return nil, apperr.New(apperr.CategoryAuthentication, "MalformedToken", err.Error(), "invalid or expired session").WithSeverity(apperr.SeverityInfo)
	}
	if !parsed.Valid {
		return nil, apperr.New(apperr.CategoryAuthentication, "MalformedToken", "token failed validation", "invalid or expired session").WithSeverity(apperr.SeverityInfo)
	}
	if claims.Type != accessTokenType {
		return nil, apperr.New(apperr.CategoryAuthentication, "WrongTokenType", "token is not an access token", "invalid session").WithSeverity(apperr.SeverityInfo)
	}

	if s.revoke != nil && s.revoke.Exists(ctx, revocationKey(tok)) {
		return nil, apperr.New(apperr.CategoryAuthentication, "TokenRevoked", "token revoked", "session has been signed out")
	}

	return &Caller{UserID: claims.UserID, Role: claims.Role}, nil
}

// Revoke marks tok unusable for the remainder of its natural lifetime. The
// cache key is the token's hash, never the token itself, so a cache dump
// never discloses a live bearer token.
func (s *Service) Revoke(ctx context.Context, tok string) error {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tok, claims)
	if err != nil {
		return apperr.New(apperr.CategoryValidation, "MalformedToken", err.Error(), "invalid token")
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if s.revoke != nil {
		s.revoke.Set(ctx, revocationKey(tok), "1", ttl)
	}
	return nil
}

func revocationKey(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return "revoked:" + hex.EncodeToString(sum[:])[:16]
}

// ---- request-context plumbing ----

type contextKey int

const callerKey contextKey = 0

// WithCaller returns a context carrying c, for the transport layer to set
// after a successful Verify.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// FromContext returns the caller attached by the transport layer, if any.
func FromContext(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(callerKey).(*Caller)
	return c, ok
}

var ErrNoCaller = errors.New("identity: no caller in context")

// RequireCaller is a convenience for handlers that must reject anonymous
// callers outright.
func RequireCaller(ctx context.Context) (*Caller, error) {
	c, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoCaller
	}
	return c, nil
}

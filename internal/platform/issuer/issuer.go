// Package issuer mints and validates the bearer tokens that authorize
// state-changing registry calls. Tokens are HS256 JWTs whose subject names
// the issuing institution.
package issuer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"time"

	dErrors "certify/pkg/domain-errors"
	"certify/pkg/requestcontext"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeWrite authorizes Insert and Invalidate.
const ScopeWrite = "credentials:write"

// Claims are the JWT claims carried by issuer tokens.
type Claims struct {
	Scope []string `json:"scope"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scope, scope)
}

// Service handles issuer token creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
}

// NewService constructs a token service for one signing key.
func NewService(signingKey, issuer, audience string, tokenTTL time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
	}
}

// normalizeScopes trims each scope and drops blanks and repeats, keeping
// first-seen order.
func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" || slices.Contains(out, scope) {
			continue
		}
		out = append(out, scope)
	}
	return out
}

// Issue signs a token for subject. An empty scope list grants ScopeWrite.
func (s *Service) Issue(ctx context.Context, subject string, scopes ...string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "issuer subject is required")
	}
	scopes = normalizeScopes(scopes)
	if len(scopes) == 0 {
		scopes = []string{ScopeWrite}
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, err
	}
	now := requestcontext.Now(ctx)
	expiresAt := now.Add(s.tokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Scope: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        hex.EncodeToString(b),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks signature, algorithm, expiry, issuer and audience.
// Every failure is CodeUnauthorized.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims, nil
}

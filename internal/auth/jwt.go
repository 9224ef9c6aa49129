// Package auth issues and validates the bearer tokens that guard the admin
// endpoints of the API.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Admin tokens are short-lived HS256 JWTs signed with a server-side secret.
// There are no refresh tokens: operators mint a new token with the CLI
// (airstat -admin-token) whenever the previous one expires.

// DefaultTokenTTL is how long an access token is valid unless overridden.
const DefaultTokenTTL = 1 * time.Hour

// Scopes understood by the API.
const (
	// ScopeCacheRefresh allows triggering an offline cache refresh.
	ScopeCacheRefresh = "cache:refresh"

	// ScopeStatus allows reading the detailed system status.
	ScopeStatus = "ops:status"

	// ScopeFlags allows changing feature flags.
	ScopeFlags = "ops:flags"
)

// Predefined JWT errors.
var (
	ErrInvalidAccessToken = errors.New("invalid access token")
	ErrAccessTokenExpired = errors.New("access token has expired")
	ErrMissingSigningKey  = errors.New("jwt signing key is not configured")
	ErrEmptySubject       = errors.New("token subject is required")
)

// JWTClaims represents the claims in our API access tokens.
type JWTClaims struct {
	jwt.RegisteredClaims

	// Scopes lists the operations the bearer may perform.
	Scopes []string `json:"scp,omitempty"`
}

// HasScope reports whether the claims grant scope.
func (c *JWTClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
	clock      func() time.Time
}

// JWTConfig holds configuration for the JWT service.
type JWTConfig struct {
	// SigningKey is the secret key used to sign JWTs.
	SigningKey string

	// Issuer is the issuer claim for tokens (e.g., "https://api.airstat.dev").
	Issuer string

	// Audience is the audience claim for tokens (e.g., "airstat-api").
	Audience string

	// TTL is the token lifetime (default: 1 hour).
	TTL time.Duration

	// Clock is used for issued-at and expiry (default: time.Now).
	Clock func() time.Time
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg JWTConfig) *JWTService {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &JWTService{
		signingKey: []byte(cfg.SigningKey),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		ttl:        ttl,
		clock:      clock,
	}
}

// Enabled reports whether a signing key is configured. Without one every
// token is rejected.
func (s *JWTService) Enabled() bool {
	return len(s.signingKey) > 0
}

// GenerateAccessToken creates a new access token for subject with the given
// scopes.
func (s *JWTService) GenerateAccessToken(subject string, scopes ...string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrMissingSigningKey
	}
	if subject == "" {
		return "", time.Time{}, ErrEmptySubject
	}

	now := s.clock()
	expiresAt := now.Add(s.ttl)

	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			ID:        generateTokenID(),
		},
		Scopes: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateAccessToken validates an access token and returns the claims.
func (s *JWTService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	if !s.Enabled() {
		return nil, ErrMissingSigningKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessToken, err.Error())
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

// generateTokenID generates a unique token ID.
func generateTokenID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

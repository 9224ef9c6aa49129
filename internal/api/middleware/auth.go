package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/airstat/airstat/internal/api/models"
	"github.com/airstat/airstat/internal/auth"
)

// TokenValidator validates bearer tokens. *auth.JWTService implements it.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.JWTClaims, error)
}

// claimsKey is the context key for the validated token claims.
type claimsKey struct{}

// Auth creates authentication middleware that validates JWT bearer tokens and
// requires every scope listed.
func Auth(tokens TokenValidator, scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			// Bearer prefix is case-insensitive
			const bearerPrefix = "Bearer "
			if len(authHeader) < len(bearerPrefix) ||
				!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
			if tokenString == "" {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrMissingSigningKey):
					writeUnauthorized(w, r, "admin access is disabled")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			for _, scope := range scopes {
				if !claims.HasScope(scope) {
					problem := models.NewForbidden(GetRequestID(r.Context()), "token lacks scope "+scope)
					problem.Instance = r.URL.Path
					problem.Write(w)
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeUnauthorized writes a 401 Unauthorized response.
// The response package imports middleware, so it cannot be used here.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="airstat"`)
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetClaims returns the validated token claims, or nil if unauthenticated.
func GetClaims(ctx context.Context) *auth.JWTClaims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.JWTClaims)
	return claims
}

// GetSubject returns the authenticated token subject, or "" if unauthenticated.
func GetSubject(ctx context.Context) string {
	if claims := GetClaims(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

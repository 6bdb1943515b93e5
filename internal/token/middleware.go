package token

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Validator is satisfied by *Service.
type Validator interface {
	Validate(tokenString string) (*Claims, error)
	ValidateOptional(tokenString string) (*Claims, error)
}

type claimsKey struct{}

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims set by RequireAuth or OptionalAuth.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// BearerToken extracts the token from the Authorization header. A missing
// header yields ("", nil); a header that is present but not a usable bearer
// credential yields ErrTokenMalformed.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", nil
	}
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrTokenMalformed
	}
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", ErrTokenMalformed
	}
	return tok, nil
}

// RequireAuth rejects requests without a valid bearer token. Every failure
// produces the same 401 body.
func RequireAuth(v Validator, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := BearerToken(r)
			if err == nil && tok == "" {
				err = ErrTokenMalformed
			}
			var claims *Claims
			if err == nil {
				claims, err = v.Validate(tok)
			}
			if err != nil {
				logger.Debugw("authentication failed", "path", r.URL.Path, "err", err)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth lets anonymous requests through without claims, but still
// rejects a token that was supplied and fails validation.
func OptionalAuth(v Validator, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := BearerToken(r)
			var claims *Claims
			if err == nil {
				claims, err = v.ValidateOptional(tok)
			}
			if err != nil {
				logger.Debugw("optional authentication failed", "path", r.URL.Path, "err", err)
				unauthorized(w)
				return
			}
			if claims == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAdmin must run after RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			unauthorized(w)
			return
		}
		if !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "Could not validate credentials")
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": detail})
}

// Package rest is the REST + websocket-upgrade control plane for
// cmd/stdfserver: a thin chi router over internal/apiserver.Registry,
// structurally mirroring the teacher's internal/server/rest package
// (router shape, JSON error envelope, request ID / recoverer
// middleware). The JWT middleware is adapted from RS256/rsa.PublicKey
// to HS256/shared-secret, since ingestconfig.APIConfig carries a plain
// string secret rather than a PEM key path.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey int

const claimsKey contextKey = iota

// Claims extends the standard registered claims; no application-specific
// fields are needed yet, but handlers can grow to read them via
// ClaimsFromContext without a signature change.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTMiddleware returns middleware that validates HS256 Bearer tokens
// signed with secret. Unlike the teacher's RS256 variant there is no
// separate public/private key pair: the same secret that signs a token
// (out of band, by whatever issues operator credentials) verifies it
// here.
func JWTMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "Authorization header must be Bearer token")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return key, nil
			}, jwt.WithValidMethods([]string{"HS256"}))

			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext retrieves the claims JWTMiddleware stored, or nil on
// unauthenticated routes.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

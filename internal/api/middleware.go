/**
 * @description
 * Authentication middleware for the economy-service. Actor routes take the acting
 * identity from the `sub` claim of an HS256 JWT; local setups may allow the
 * X-Actor-ID header instead. Admin routes require the internal API key.
 */
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// ActorIDContextKey is the key used to store the acting identity in the request context.
const ActorIDContextKey = contextKey("actorID")

// ActorHeader carries the acting identity when header fallback is enabled.
const ActorHeader = "X-Actor-ID"

// ActorAuthMiddleware validates the bearer token and injects the actor into context.
func ActorAuthMiddleware(secret string, allowHeaderFallback bool) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if allowHeaderFallback {
					if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
						next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ActorIDContextKey, actor)))
						return
					}
				}
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			if secret == "" {
				http.Error(w, "Token authentication is not configured", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			actor, err := token.Claims.GetSubject()
			if err != nil || strings.TrimSpace(actor) == "" {
				http.Error(w, "Actor not found in token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ActorIDContextKey, strings.TrimSpace(actor))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalAuthMiddleware guards operator routes with the internal API key. When
// no key is configured the routes are closed.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				http.Error(w, "Admin routes are disabled", http.StatusUnauthorized)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(requiredKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ActorFromContext retrieves the acting identity from the request context.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(ActorIDContextKey).(string)
	return actor, ok && actor != ""
}

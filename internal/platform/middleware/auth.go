package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"kycgate/pkg/requestcontext"
)

// Roles carried in service tokens.
const (
	RoleService  = "service"
	RoleReviewer = "reviewer"
)

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims are what handlers may rely on after RequireAuth.
type Claims struct {
	Subject string
	Role    string
	TokenID string
}

type contextKeyClaims struct{}

// GetClaims returns the authenticated claims, or nil outside RequireAuth.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(contextKeyClaims{}).(*Claims)
	return c
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and records the caller as the
// request actor so audit events name who acted.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			actorType := requestcontext.ActorService
			if claims.Role == RoleReviewer {
				actorType = requestcontext.ActorReviewer
			}
			ctx = context.WithValue(ctx, contextKeyClaims{}, claims)
			ctx = requestcontext.WithActor(ctx, requestcontext.Actor{Type: actorType, ID: claims.Subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated callers whose role is not listed.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims := GetClaims(ctx)
			if claims == nil || !slices.Contains(roles, claims.Role) {
				logger.WarnContext(ctx, "forbidden - role not permitted",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "Caller role may not perform this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

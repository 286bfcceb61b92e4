package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/foliodb/folio/internal/model"
	"github.com/foliodb/folio/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Principal represents the signed-in user making the request.
type Principal struct {
	UserID  int64
	Email   string
	Role    string
	IsAdmin bool
}

// TokenValidator verifies bearer tokens. *service.AuthService implements it.
type TokenValidator interface {
	ValidateJWT(ctx context.Context, token string) (*service.JWTPrincipal, error)
}

// Authenticate returns an HTTP middleware that requires a valid JWT bearer
// token in the Authorization header. On success, a Principal is attached
// to the request context. On failure, a 401 JSON error response is returned.
func Authenticate(auth TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}
			p, err := principalFor(r.Context(), auth, token)
			if err != nil {
				msg := "Invalid token"
				if errors.Is(err, service.ErrTokenExpired) {
					msg = "Token expired"
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), AuthPrincipalKey, p)))
		})
	}
}

// OptionalAuth attaches a Principal when a valid bearer token is present
// and otherwise lets the request through anonymously. Public read routes use
// it so signed-in editors can see soft-deleted rows.
func OptionalAuth(auth TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if p, err := principalFor(r.Context(), auth, token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), AuthPrincipalKey, p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns an HTTP middleware that enforces the admin role.
// It must be used after Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !principal.IsAdmin {
				writeError(w, http.StatusForbidden, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func principalFor(ctx context.Context, auth TokenValidator, token string) (*Principal, error) {
	p, err := auth.ValidateJWT(ctx, token)
	if err != nil {
		return nil, err
	}
	noteUser(ctx, p.UserID)
	return &Principal{
		UserID:  p.UserID,
		Email:   p.Email,
		Role:    p.Role,
		IsAdmin: p.Role == "admin",
	}, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}

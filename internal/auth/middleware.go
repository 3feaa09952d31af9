package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-otp-auth/internal/apperr"
	"github.com/redmonkez12/go-otp-auth/internal/httputil"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	UserIDContextKey ContextKey = "user_id"
	ClaimsContextKey ContextKey = "claims"
)

var errInvalidAuthHeader = apperr.New(apperr.KindToken, apperr.CodeMissingAuth, "", "Invalid authorization header format.")

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (*TokenClaims, error)
}

// Middleware handles authentication for protected routes
type Middleware struct {
	verifier AccessVerifier
}

func NewMiddleware(verifier AccessVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// RequireAuth is a middleware that validates the Bearer access token
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondAppError(r.Context(), w, ErrMissingAuth)
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httputil.RespondAppError(r.Context(), w, errInvalidAuthHeader)
			return
		}

		claims, err := m.verifier.VerifyAccess(strings.TrimSpace(token))
		if err != nil {
			httputil.RespondAppError(r.Context(), w, err)
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			httputil.RespondAppError(r.Context(), w, ErrInvalidToken)
			return
		}

		// Add user info to request context
		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		ctx = context.WithValue(ctx, ClaimsContextKey, claims)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	return userID, ok
}

// GetClaimsFromContext extracts the verified token claims from the request context
func GetClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*TokenClaims)
	return claims, ok
}

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-otp-auth/internal/config"
	"github.com/redmonkez12/go-otp-auth/internal/httputil"
	"github.com/redmonkez12/go-otp-auth/internal/logging"
	"github.com/redmonkez12/go-otp-auth/internal/ratelimit"
	"github.com/redmonkez12/go-otp-auth/internal/user"
)

type stubLimiter struct {
	allowErr error
	calls    int
}

func (s *stubLimiter) Allow(context.Context, string, string) error {
	s.calls++
	return s.allowErr
}

func newTestRouter(h *harness, limiter RateLimiter) http.Handler {
	handler := NewHandler(h.svc, limiter, logging.Nop())
	mw := NewMiddleware(h.issuer)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logging.WithLogger(r.Context(), logging.Nop())))
		})
	})
	r.Post("/register", handler.Register)
	r.Post("/verify", handler.Verify)
	r.Post("/resend-otp", handler.ResendOTP)
	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Post("/logout", handler.Logout)
	r.Post("/password/reset/request", handler.RequestPasswordReset)
	r.Post("/password/reset/confirm", handler.ResetPassword)
	r.With(mw.RequireAuth).Get("/me", handler.Me)
	return r
}

func do(t *testing.T, router http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandlerFlow(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{})

	rec := do(t, router, http.MethodPost, "/register", map[string]any{
		"email":     "ana@example.com",
		"password":  testPassword,
		"firstName": "Ana",
		"lastName":  "Lopez",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decodeBody[RegisterResponse](t, rec)
	assert.True(t, reg.Success)
	assert.Equal(t, "pending_verification", reg.Status)

	rec = do(t, router, http.MethodPost, "/login", LoginRequest{Email: "ana@example.com", Password: testPassword})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_VERIFIED", decodeBody[httputil.ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodPost, "/verify", VerifyRequest{UserID: reg.UserID.String(), Code: testCode})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verified := decodeBody[SessionResponse](t, rec)
	assert.Equal(t, "Verification complete", verified.Message)
	assert.True(t, verified.User.IsVerified)
	assert.Equal(t, "Lopez", verified.User.LastName)
	assert.Equal(t, "Bearer", verified.TokenType)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), testCode)

	rec = do(t, router, http.MethodGet, "/me", nil, "Authorization", "Bearer "+verified.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, reg.UserID, decodeBody[MeResponse](t, rec).User.ID)

	rec = do(t, router, http.MethodPost, "/refresh", RefreshRequest{RefreshToken: verified.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody[RefreshResponse](t, rec).AccessToken)

	rec = do(t, router, http.MethodPost, "/logout", RefreshRequest{RefreshToken: verified.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/logout", RefreshRequest{RefreshToken: verified.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_REVOKED", decodeBody[httputil.ErrorResponse](t, rec).Code)

	rec = do(t, router, http.MethodPost, "/refresh", RefreshRequest{RefreshToken: verified.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlerRegisterErrors(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{})

	rec := do(t, router, http.MethodPost, "/register", map[string]any{"email": "nope", "password": "abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[httputil.ErrorResponse](t, rec)
	assert.False(t, body.Success)
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "password")

	rec = do(t, router, http.MethodPost, "/register", map[string]any{"email": "ana@example.com", "password": testPassword, "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST_BODY", decodeBody[httputil.ErrorResponse](t, rec).Code)

	h.register(t, "ana@example.com")
	rec = do(t, router, http.MethodPost, "/register", RegisterRequest{Email: "ana@example.com", Password: testPassword})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "This email is already registered.", decodeBody[httputil.ErrorResponse](t, rec).Fields["email"])
}

func TestHandlerDeliveryFailure(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{})
	h.notifier.setErr(errors.New("relay down"))

	rec := do(t, router, http.MethodPost, "/register", RegisterRequest{Email: "ana@example.com", Password: testPassword})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOTIFICATION_DELIVERY_FAILED", decodeBody[httputil.ErrorResponse](t, rec).Code)
	assert.NotContains(t, rec.Body.String(), "relay down")
}

func TestHandlerVerifyErrors(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{})
	u := h.register(t, "ana@example.com")

	rec := do(t, router, http.MethodPost, "/verify", VerifyRequest{UserID: u.ID.String(), Code: "111111"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[httputil.ErrorResponse](t, rec)
	assert.Equal(t, "OTP_MISMATCH", body.Code)
	assert.Equal(t, "Invalid verification code.", body.Fields["code"])

	rec = do(t, router, http.MethodPost, "/verify", VerifyRequest{UserID: "x", Code: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body = decodeBody[httputil.ErrorResponse](t, rec)
	assert.Contains(t, body.Fields, "userId")
	assert.Contains(t, body.Fields, "code")
}

func TestHandlerRateLimited(t *testing.T) {
	h := newHarness(t)
	limiter := &stubLimiter{allowErr: ratelimit.ErrRateLimitExceeded}
	router := newTestRouter(h, limiter)

	rec := do(t, router, http.MethodPost, "/register", RegisterRequest{Email: "ana@example.com", Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decodeBody[httputil.ErrorResponse](t, rec).Code)

	_, err := h.users.GetByEmail(context.Background(), "ana@example.com")
	assert.Error(t, err, "a limited request must not reach the service")
}

func TestHandlerLimiterOutageFailsOpen(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{allowErr: errors.New("redis: connection refused")})

	rec := do(t, router, http.MethodPost, "/register", RegisterRequest{Email: "ana@example.com", Password: testPassword})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandlerRedisLimiter(t *testing.T) {
	h := newHarness(t)
	rdb := redis.NewClient(&redis.Options{Addr: h.redis.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	limiter := ratelimit.NewLimiter(rdb, config.RateLimitConfig{
		LoginLimit:          2,
		LoginWindow:         time.Minute,
		ResendLimit:         10,
		ResendWindow:        time.Minute,
		PasswordResetLimit:  10,
		PasswordResetWindow: time.Minute,
	})
	router := newTestRouter(h, limiter)
	h.registerVerified(t, "ana@example.com")

	for i := 0; i < 2; i++ {
		rec := do(t, router, http.MethodPost, "/login", LoginRequest{Email: "ana@example.com", Password: testPassword})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := do(t, router, http.MethodPost, "/login", LoginRequest{Email: "ana@example.com", Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// resend answers the same way for known and unknown addresses, and the
	// cooldown only holds back the second mail
	h.register(t, "ben@example.com")
	var bodies []string
	for _, addr := range []string{"nobody@example.com", "nobody@example.com", "ben@example.com", "ben@example.com"} {
		rec = do(t, router, http.MethodPost, "/resend-otp", EmailRequest{Email: addr})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		bodies = append(bodies, rec.Body.String())
	}
	h.svc.Wait()
	for _, body := range bodies[1:] {
		assert.Equal(t, bodies[0], body)
	}

	// sign-up code plus one resend
	assert.Len(t, h.notifier.otps, 2)
}

func TestHandlerUnknownEmailDoesNotStartCooldown(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{})
	h.register(t, "ana@example.com")

	for _, addr := range []string{"not-an-address", "nobody@example.com"} {
		do(t, router, http.MethodPost, "/resend-otp", EmailRequest{Email: addr})
		do(t, router, http.MethodPost, "/password/reset/request", EmailRequest{Email: addr})
	}

	rec := do(t, router, http.MethodPost, "/resend-otp", EmailRequest{Email: "ana@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, router, http.MethodPost, "/password/reset/request", EmailRequest{Email: "ana@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	h.svc.Wait()

	assert.Len(t, h.notifier.otps, 2)
	assert.Len(t, h.notifier.resets, 1)
}

func TestHandlerPasswordReset(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{})
	h.registerVerified(t, "ana@example.com")

	known := do(t, router, http.MethodPost, "/password/reset/request", EmailRequest{Email: "ana@example.com"})
	unknown := do(t, router, http.MethodPost, "/password/reset/request", EmailRequest{Email: "nobody@example.com"})
	require.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	h.svc.Wait()

	token := h.notifier.lastReset(t).Token

	rec := do(t, router, http.MethodPost, "/password/reset/confirm", ResetPasswordRequest{Token: token, NewPassword: "Fresh#Pass9"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Password has been reset successfully.", decodeBody[httputil.MessageResponse](t, rec).Message)

	rec = do(t, router, http.MethodPost, "/password/reset/confirm", ResetPasswordRequest{Token: token, NewPassword: "Fresh#Pass9"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "RESET_TOKEN_INVALID", decodeBody[httputil.ErrorResponse](t, rec).Code)
}

func TestRequireAuth(t *testing.T) {
	h := newHarness(t)
	router := newTestRouter(h, &stubLimiter{})
	_, session := h.registerVerified(t, "ana@example.com")

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing", "", "MISSING_AUTH"},
		{"wrong scheme", "Basic " + session.Tokens.AccessToken, "MISSING_AUTH"},
		{"empty bearer", "Bearer ", "MISSING_AUTH"},
		{"garbage", "Bearer garbage", "TOKEN_INVALID"},
		{"refresh token", "Bearer " + session.Tokens.RefreshToken, "TOKEN_INVALID"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tc.header == "" {
				rec = do(t, router, http.MethodGet, "/me", nil)
			} else {
				rec = do(t, router, http.MethodGet, "/me", nil, "Authorization", tc.header)
			}
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.code, decodeBody[httputil.ErrorResponse](t, rec).Code)
		})
	}

	t.Run("expired", func(t *testing.T) {
		h.clock.Advance(16 * time.Minute)
		rec := do(t, router, http.MethodGet, "/me", nil, "Authorization", "Bearer "+session.Tokens.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "TOKEN_EXPIRED", decodeBody[httputil.ErrorResponse](t, rec).Code)
	})
}

func TestUserResponseTimestamps(t *testing.T) {
	zone := time.FixedZone("CEST", 2*60*60)
	created := time.Date(2024, 3, 9, 14, 5, 7, 123456789, zone)

	resp := toUserResponse(&user.User{CreatedAt: created, UpdatedAt: created.Add(time.Hour)})
	assert.Equal(t, "2024-03-09T12:05:07Z", resp.CreatedAt)
	assert.Equal(t, "2024-03-09T13:05:07Z", resp.UpdatedAt)

	parsed, err := time.Parse(time.RFC3339, resp.CreatedAt)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(created.Truncate(time.Second)))
}

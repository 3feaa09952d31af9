package auth

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-otp-auth/internal/httputil"
	"github.com/redmonkez12/go-otp-auth/internal/logging"
	"github.com/redmonkez12/go-otp-auth/internal/ratelimit"
	"github.com/redmonkez12/go-otp-auth/internal/user"
)

// maxBodyBytes bounds request bodies; every payload here is a handful of fields.
const maxBodyBytes = 1 << 16

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service     *Service
	rateLimiter RateLimiter
	logger      *logging.Logger
}

func NewHandler(service *Service, rateLimiter RateLimiter, logger *logging.Logger) *Handler {
	return &Handler{
		service:     service,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	AvatarID  *string `json:"avatarId"`
}

// VerifyRequest represents the OTP verification request body
type VerifyRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token for refresh and logout
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// EmailRequest is the body of resend and reset requests
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	AvatarID   *string   `json:"avatarId"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  string    `json:"createdAt"`
	UpdatedAt  string    `json:"updatedAt"`
}

// RegisterResponse represents the registration response
type RegisterResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	UserID  uuid.UUID `json:"userId"`
	Status  string    `json:"status"`
}

// SessionResponse is returned by verify and login
type SessionResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	TokenType    string       `json:"tokenType"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// RefreshResponse is returned by refresh
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// MeResponse is returned by the profile endpoint
type MeResponse struct {
	Success bool         `json:"success"`
	User    UserResponse `json:"user"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		AvatarID:   u.AvatarID,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toSessionResponse(message string, s *Session) SessionResponse {
	return SessionResponse{
		Success:      true,
		Message:      message,
		User:         toUserResponse(s.User),
		AccessToken:  s.Tokens.AccessToken,
		RefreshToken: s.Tokens.RefreshToken,
		TokenType:    s.Tokens.TokenType,
		ExpiresIn:    s.Tokens.ExpiresIn,
	}
}

// allow applies the purpose bucket for the client. Limiter outages fail open.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, purpose string) bool {
	logger := logging.GetLoggerFromContext(r.Context())

	ip := getClientIP(r)
	err := h.rateLimiter.Allow(r.Context(), purpose, ip)
	if err == nil {
		return true
	}
	if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		logger.Warn("IP rate limit exceeded", "purpose", purpose, "ip", ip)
		httputil.RespondAppError(r.Context(), w, err)
		return false
	}

	logger.Error("failed to check IP rate limit", "purpose", purpose, "error", err)
	return true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httputil.DecodeJSON(r, dst); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("invalid request body", "error", err)
		httputil.RespondAppError(r.Context(), w, err)
		return false
	}
	return true
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.PurposeRegister) {
		return
	}

	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	logger := logging.GetLoggerFromContext(r.Context()).WithFields(map[string]any{"email": req.Email})

	newUser, err := h.service.Register(r.Context(), RegisterInput(req))
	if err != nil {
		logger.Warn("registration failed", "error", err)
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	logger.Info("user registered successfully", "user_id", newUser.ID)

	httputil.RespondJSON(w, RegisterResponse{
		Success: true,
		Message: "Sign up successful. Please check your email for verification code.",
		UserID:  newUser.ID,
		Status:  "pending_verification",
	}, http.StatusCreated)
}

// Verify handles OTP verification
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.PurposeVerifyOTP) {
		return
	}

	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}

	logger := logging.GetLoggerFromContext(r.Context()).WithFields(map[string]any{"user_id": req.UserID})

	session, err := h.service.Verify(r.Context(), req.UserID, req.Code)
	if err != nil {
		logger.Warn("verification failed", "error", err)
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	logger.Info("user verified successfully")

	httputil.RespondJSON(w, toSessionResponse("Verification complete", session), http.StatusOK)
}

// ResendOTP handles requests for a new verification code
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.PurposeResendOTP) {
		return
	}

	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.ResendOTP(r.Context(), req.Email); err != nil {
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	// Always return success (prevent email enumeration)
	httputil.RespondMessage(w, "If your email is registered and not verified, a new verification code has been sent.")
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.PurposeLogin) {
		return
	}

	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	logger := logging.GetLoggerFromContext(r.Context()).WithFields(map[string]any{"email": req.Email})

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.Warn("login failed", "error", err)
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	logger.Info("user logged in successfully", "user_id", session.User.ID)

	httputil.RespondJSON(w, toSessionResponse("Login successful", session), http.StatusOK)
}

// Refresh handles access token refresh
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	access, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("token refresh failed", "error", err)
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	httputil.RespondJSON(w, RefreshResponse{
		Success:     true,
		AccessToken: access.AccessToken,
		TokenType:   access.TokenType,
		ExpiresIn:   access.ExpiresIn,
	}, http.StatusOK)
}

// Logout handles user logout by revoking the refresh token
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("logout failed", "error", err)
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	logging.GetLoggerFromContext(r.Context()).Info("user logged out successfully")

	httputil.RespondMessage(w, "Logged out successfully")
}

// RequestPasswordReset handles password reset requests
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r, ratelimit.PurposePasswordReset) {
		return
	}

	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	// Always return success (prevent email enumeration)
	httputil.RespondMessage(w, "If an account exists with this email, you will receive a password reset link.")
}

// ResetPassword handles password reset with token
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("password reset failed", "error", err)
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	logging.GetLoggerFromContext(r.Context()).Info("password reset successfully")

	httputil.RespondMessage(w, "Password has been reset successfully.")
}

// Me returns the authenticated user's profile
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		httputil.RespondAppError(r.Context(), w, ErrMissingAuth)
		return
	}

	u, err := h.service.Me(r.Context(), claims)
	if err != nil {
		httputil.RespondAppError(r.Context(), w, err)
		return
	}

	httputil.RespondJSON(w, MeResponse{Success: true, User: toUserResponse(u)}, http.StatusOK)
}

// getClientIP extracts the client IP address from the request.
// chi's RealIP middleware has already folded proxy headers into RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

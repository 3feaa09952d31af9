package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-otp-auth/internal/apperr"
	"github.com/redmonkez12/go-otp-auth/internal/email"
	"github.com/redmonkez12/go-otp-auth/internal/logging"
	"github.com/redmonkez12/go-otp-auth/internal/otp"
	"github.com/redmonkez12/go-otp-auth/internal/ratelimit"
	"github.com/redmonkez12/go-otp-auth/internal/user"
)

const (
	maxEmailLength    = 254
	maxNameLength     = 150
	maxAvatarIDLength = 255
)

// RegisterInput is the data a new account is created from.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	AvatarID  *string
}

// Session is an authenticated user together with fresh tokens.
type Session struct {
	User   *user.User
	Tokens *TokenPair
}

// Options holds the tunables of Service.
type Options struct {
	SendTimeout      time.Duration // bound on synchronous code delivery
	PasswordResetTTL time.Duration
}

// Service handles authentication business logic
type Service struct {
	users    UserStore
	otp      OTPEngine
	issuer   *Issuer
	resets   ResetTokenStore
	notifier Notifier
	cooldown EmailCooldown
	hasher   *PasswordHasher
	logger   *logging.Logger
	opts     Options

	// background deliveries, waited on at shutdown
	wg sync.WaitGroup
}

func NewService(
	users UserStore,
	otpEngine OTPEngine,
	issuer *Issuer,
	resets ResetTokenStore,
	notifier Notifier,
	cooldown EmailCooldown,
	hasher *PasswordHasher,
	logger *logging.Logger,
	opts Options,
) *Service {
	return &Service{
		users:    users,
		otp:      otpEngine,
		issuer:   issuer,
		resets:   resets,
		notifier: notifier,
		cooldown: cooldown,
		hasher:   hasher,
		logger:   logger,
		opts:     opts,
	}
}

// Register creates an unverified account, issues a code and delivers it before
// returning. If delivery fails the account is kept and the caller gets
// ErrNotificationDeliveryFailed; a resend recovers it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*user.User, error) {
	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	newUser, err := s.users.Create(ctx, user.NewUser{
		Email:        in.Email,
		PasswordHash: passwordHash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		AvatarID:     in.AvatarID,
	})
	if err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	code, err := s.otp.Issue(ctx, newUser)
	if err != nil {
		return nil, fmt.Errorf("failed to issue otp: %w", err)
	}

	if err := s.deliverOTP(ctx, newUser, code); err != nil {
		s.logger.Warn("verification code not delivered, account left pending",
			"user_id", newUser.ID,
			"error", err,
		)
		return nil, ErrNotificationDeliveryFailed.Wrap(err)
	}

	return newUser, nil
}

func (s *Service) deliverOTP(ctx context.Context, u *user.User, code string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	defer cancel()

	return s.notifier.SendOTP(ctx, email.OTPEmail{
		To:        u.Email,
		FirstName: u.FirstName,
		Code:      code,
		TTL:       s.otp.TTL(),
	})
}

// Verify checks code against the pending account userID, marks it verified
// and opens a session.
func (s *Service) Verify(ctx context.Context, userID, code string) (*Session, error) {
	var errs []*apperr.Error

	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		errs = append(errs, ErrInvalidUserID)
	}
	errs = append(errs, validateCode(code)...)
	if err := apperr.Validation(errs); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if u.IsVerified {
		return nil, ErrAlreadyVerified
	}

	if err := s.otp.Validate(u, code); err != nil {
		return nil, err
	}

	// The conditional write decides concurrent verifications
	if err := s.otp.Consume(ctx, u, user.Fields{user.ColIsVerified: true}); err != nil {
		return nil, err
	}
	u.IsVerified = true

	tokens, err := s.issuer.Mint(u)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &Session{User: u, Tokens: tokens}, nil
}

// ResendOTP issues a fresh code for a pending account and delivers it in the
// background. Unknown or verified addresses are ignored without telling the
// caller.
func (s *Service) ResendOTP(ctx context.Context, emailAddr string) error {
	if err := apperr.Validation(validateEmail(emailAddr)); err != nil {
		return err
	}

	existingUser, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("failed to get user for otp resend", "error", err)
		}
		return nil
	}

	if existingUser.IsVerified {
		return nil
	}

	if !s.claimCooldown(ctx, ratelimit.PurposeResendOTP, existingUser) {
		return nil
	}

	code, err := s.otp.Issue(ctx, existingUser)
	if err != nil {
		s.logger.Warn("failed to issue otp for resend", "user_id", existingUser.ID, "error", err)
		return nil
	}

	s.goBackground(func() {
		if err := s.deliverOTP(context.Background(), existingUser, code); err != nil {
			s.logger.Warn("failed to resend verification code", "user_id", existingUser.ID, "error", err)
		}
	})

	return nil
}

// Login authenticates a verified, active account and opens a session.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*Session, error) {
	errs := validateEmail(emailAddr)
	if password == "" {
		errs = append(errs, ErrPasswordRequired)
	}
	if err := apperr.Validation(errs); err != nil {
		return nil, err
	}

	existingUser, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Checked before the password so the outcome does not reveal whether it was right
	if !existingUser.IsVerified {
		return nil, ErrNotVerified
	}

	if !s.hasher.Verify(existingUser.PasswordHash, password) {
		return nil, ErrBadCredential
	}

	if !existingUser.IsActive {
		return nil, ErrAccountDisabled
	}

	tokens, err := s.issuer.Mint(existingUser)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return &Session{User: existingUser, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new access token. The account must
// still exist and be active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AccessToken, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrTokenRequired
	}

	access, claims, err := s.issuer.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	existingUser, err := s.subject(ctx, claims)
	if err != nil {
		return nil, err
	}
	if !existingUser.IsActive {
		return nil, ErrAccountDisabled
	}

	return access, nil
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return ErrTokenRequired
	}
	return s.issuer.Revoke(ctx, refreshToken)
}

// Me returns the account an access token was issued to.
func (s *Service) Me(ctx context.Context, claims *TokenClaims) (*user.User, error) {
	return s.subject(ctx, claims)
}

// claimCooldown reports whether a mail may be sent to u for purpose. It is
// only called for existing accounts, so an unknown address never takes a
// cooldown slot. A Redis outage lets the mail through.
func (s *Service) claimCooldown(ctx context.Context, purpose string, u *user.User) bool {
	err := s.cooldown.ClaimEmailCooldown(ctx, purpose, u.Email)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ratelimit.ErrCooldownActive):
		s.logger.Debug("email cooldown active", "purpose", purpose, "user_id", u.ID)
		return false
	default:
		s.logger.Warn("email cooldown unavailable", "purpose", purpose, "error", err)
		return true
	}
}

func (s *Service) subject(ctx context.Context, claims *TokenClaims) (*user.User, error) {
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// RequestPasswordReset initiates the password reset process
// Returns nil for unknown addresses to prevent email enumeration attacks
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	if err := apperr.Validation(validateEmail(emailAddr)); err != nil {
		return err
	}

	existingUser, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			s.logger.Warn("failed to get user for password reset", "error", err)
		}
		return nil
	}

	if !s.claimCooldown(ctx, ratelimit.PurposePasswordReset, existingUser) {
		return nil
	}

	token, err := generateRandomToken()
	if err != nil {
		s.logger.Warn("failed to generate password reset token", "error", err)
		return nil
	}

	if err := s.resets.Store(ctx, existingUser.ID, token, s.opts.PasswordResetTTL); err != nil {
		s.logger.Warn("failed to store password reset token", "error", err)
		return nil
	}

	to := existingUser.Email
	s.goBackground(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), s.opts.SendTimeout)
		defer cancel()
		if err := s.notifier.SendPasswordReset(sendCtx, to, token, s.opts.PasswordResetTTL); err != nil {
			s.logger.Warn("failed to send password reset email", "user_id", existingUser.ID, "error", err)
		}
	})

	return nil
}

// ResetPassword sets a new password using a reset token and signs the user out
// of every existing session.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	var errs []*apperr.Error
	token = strings.TrimSpace(token)
	if token == "" {
		errs = append(errs, ErrResetTokenInvalid)
	}
	errs = append(errs, ValidatePassword(newPassword, FieldNewPassword)...)
	if err := apperr.Validation(errs); err != nil {
		return err
	}

	userID, err := s.resets.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, ErrPasswordResetTokenNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to get password reset token: %w", err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.users.UpdateFields(ctx, userID, user.Fields{user.ColPasswordHash: passwordHash}); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := s.issuer.RevokeAllForUser(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke all user tokens after password reset", "user_id", userID, "error", err)
	}

	return nil
}

// Wait blocks until background deliveries have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) goBackground(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func validateRegistration(in RegisterInput) error {
	errs := validateEmail(in.Email)
	errs = append(errs, ValidatePassword(in.Password, FieldPassword)...)
	errs = append(errs, validateLength(in.FirstName, FieldFirstName, maxNameLength)...)
	errs = append(errs, validateLength(in.LastName, FieldLastName, maxNameLength)...)
	if in.AvatarID != nil {
		errs = append(errs, validateLength(*in.AvatarID, FieldAvatarID, maxAvatarIDLength)...)
	}
	return apperr.Validation(errs)
}

func validateEmail(addr string) []*apperr.Error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return []*apperr.Error{ErrEmailRequired}
	}
	if len(addr) > maxEmailLength {
		return []*apperr.Error{ErrInvalidEmailFormat}
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return []*apperr.Error{ErrInvalidEmailFormat}
	}
	return nil
}

func validateCode(code string) []*apperr.Error {
	for _, r := range code {
		if r < '0' || r > '9' {
			return []*apperr.Error{ErrCodeFormat}
		}
	}
	if len(code) != otp.CodeLength {
		return []*apperr.Error{ErrCodeLength}
	}
	return nil
}

func validateLength(value, field string, limit int) []*apperr.Error {
	if utf8.RuneCountInString(value) <= limit {
		return nil
	}
	return []*apperr.Error{apperr.New(apperr.KindValidation, apperr.CodeFieldTooLong, field,
		fmt.Sprintf("Ensure this field has no more than %d characters.", limit))}
}

// Package otp issues, checks and consumes the single one-time code embedded in
// a user record.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-otp-auth/internal/apperr"
	"github.com/redmonkez12/go-otp-auth/internal/user"
)

// CodeLength is the number of decimal digits in a code.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

var (
	ErrNoCodeIssued = apperr.New(apperr.KindOTP, apperr.CodeOTPNotIssued, "code",
		"No OTP found. Please request a new verification code.")
	ErrExpired = apperr.New(apperr.KindOTP, apperr.CodeOTPExpired, "code",
		"OTP has expired. Please request a new verification code.")
	ErrMismatch = apperr.New(apperr.KindOTP, apperr.CodeOTPMismatch, "code",
		"Invalid verification code.")
)

// Store is the part of the user repository the engine writes through.
type Store interface {
	UpdateFields(ctx context.Context, id uuid.UUID, set user.Fields) error
	UpdateFieldsIf(ctx context.Context, id uuid.UUID, expect, set user.Fields) error
}

// Generator returns a fresh code of CodeLength digits.
type Generator func() (string, error)

// Engine manages the OTP slot of user records.
type Engine struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	generate Generator
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGenerator overrides the code generator.
func WithGenerator(g Generator) Option {
	return func(e *Engine) { e.generate = g }
}

func NewEngine(store Store, ttl time.Duration, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		generate: RandomCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RandomCode draws a uniformly distributed zero-padded code from crypto/rand.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// TTL returns how long an issued code stays valid.
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// Issue stores a fresh code on u, replacing any previous one, and returns it.
// Concurrent issues for the same user overwrite each other; the last write wins.
func (e *Engine) Issue(ctx context.Context, u *user.User) (string, error) {
	code, err := e.generate()
	if err != nil {
		return "", err
	}

	issuedAt := e.now().UTC()
	expiresAt := issuedAt.Add(e.ttl)

	err = e.store.UpdateFields(ctx, u.ID, user.Fields{
		user.ColOTPCode:      code,
		user.ColOTPIssuedAt:  issuedAt,
		user.ColOTPExpiresAt: expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store otp: %w", err)
	}

	u.OTPCode = &code
	u.OTPIssuedAt = &issuedAt
	u.OTPExpiresAt = &expiresAt
	return code, nil
}

// Validate checks code against the slot of u without changing anything.
// A code is still valid at the exact expiry instant.
func (e *Engine) Validate(u *user.User, code string) error {
	if !u.HasOTP() {
		return ErrNoCodeIssued
	}
	if e.now().After(*u.OTPExpiresAt) {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(*u.OTPCode), []byte(code)) != 1 {
		return ErrMismatch
	}
	return nil
}

// Consume clears the slot of u together with the extra fields in also, but only
// while the stored code is still the one u was read with. Losing a race to
// another consume or a re-issue yields ErrNoCodeIssued.
func (e *Engine) Consume(ctx context.Context, u *user.User, also user.Fields) error {
	if u.OTPCode == nil {
		return ErrNoCodeIssued
	}

	set := user.Fields{
		user.ColOTPCode:      nil,
		user.ColOTPIssuedAt:  nil,
		user.ColOTPExpiresAt: nil,
	}
	for k, v := range also {
		set[k] = v
	}

	err := e.store.UpdateFieldsIf(ctx, u.ID, user.Fields{user.ColOTPCode: *u.OTPCode}, set)
	if errors.Is(err, user.ErrConditionFailed) {
		return ErrNoCodeIssued
	}
	if err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}

	u.OTPCode = nil
	u.OTPIssuedAt = nil
	u.OTPExpiresAt = nil
	return nil
}

// Package ratelimit implements fixed-window request quotas and per-email
// cooldowns on Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redmonkez12/go-otp-auth/internal/apperr"
	"github.com/redmonkez12/go-otp-auth/internal/config"
)

// Purposes name independent buckets; exhausting one leaves the others untouched.
const (
	PurposeRegister      = "register"
	PurposeVerifyOTP     = "verify_otp"
	PurposeLogin         = "login"
	PurposeResendOTP     = "resend_otp"
	PurposePasswordReset = "password_reset"
)

var (
	ErrRateLimitExceeded = apperr.New(apperr.KindRateLimit, apperr.CodeRateLimitExceeded, "",
		"Too many requests, please try again later.")
	ErrCooldownActive = apperr.New(apperr.KindRateLimit, apperr.CodeCooldownActive, "",
		"Please wait before requesting another email.")
)

// Policy is the number of requests allowed per window.
type Policy struct {
	Limit  int64
	Window time.Duration
}

// Limiter tracks request counts in Redis.
type Limiter struct {
	client   redis.Cmdable
	policies map[string]Policy
	cooldown time.Duration
}

// NewLimiter builds a limiter with one policy per purpose.
func NewLimiter(client redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client: client,
		policies: map[string]Policy{
			PurposeRegister:      {Limit: cfg.RegisterLimit, Window: cfg.RegisterWindow},
			PurposeVerifyOTP:     {Limit: cfg.VerifyLimit, Window: cfg.VerifyWindow},
			PurposeLogin:         {Limit: cfg.LoginLimit, Window: cfg.LoginWindow},
			PurposeResendOTP:     {Limit: cfg.ResendLimit, Window: cfg.ResendWindow},
			PurposePasswordReset: {Limit: cfg.PasswordResetLimit, Window: cfg.PasswordResetWindow},
		},
		cooldown: cfg.EmailCooldown,
	}
}

func ipKey(purpose, ip string) string {
	return fmt.Sprintf("rate_limit:%s:ip:%s", purpose, ip)
}

func cooldownKey(purpose, email string) string {
	return fmt.Sprintf("cooldown:%s:email:%s", purpose, strings.ToLower(strings.TrimSpace(email)))
}

// Allow counts one request from ip against the purpose bucket.
// It returns ErrRateLimitExceeded once the bucket is over its limit.
func (l *Limiter) Allow(ctx context.Context, purpose, ip string) error {
	policy, ok := l.policies[purpose]
	if !ok {
		return fmt.Errorf("unknown rate limit purpose %q", purpose)
	}
	if policy.Limit <= 0 {
		return nil
	}

	key := ipKey(purpose, ip)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	count := incr.Val()

	// No TTL yet: open the window, or reopen it after a failed EXPIRE
	if ttl.Val() < 0 {
		if err := l.client.Expire(ctx, key, policy.Window).Err(); err != nil {
			return fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	if count > policy.Limit {
		return ErrRateLimitExceeded
	}
	return nil
}

// ClaimEmailCooldown starts the cooldown for email. It returns
// ErrCooldownActive if one is already running.
func (l *Limiter) ClaimEmailCooldown(ctx context.Context, purpose, email string) error {
	if l.cooldown <= 0 {
		return nil
	}

	ok, err := l.client.SetNX(ctx, cooldownKey(purpose, email), "1", l.cooldown).Result()
	if err != nil {
		return fmt.Errorf("failed to set email cooldown: %w", err)
	}
	if !ok {
		return ErrCooldownActive
	}
	return nil
}

package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-otp-auth/internal/config"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLimiter(client, config.RateLimitConfig{
		RegisterLimit:       5,
		RegisterWindow:      time.Hour,
		VerifyLimit:         10,
		VerifyWindow:        time.Minute,
		LoginLimit:          2,
		LoginWindow:         time.Minute,
		ResendLimit:         2,
		ResendWindow:        15 * time.Minute,
		PasswordResetLimit:  2,
		PasswordResetWindow: 15 * time.Minute,
		EmailCooldown:       2 * time.Minute,
	}), mr
}

func TestAllowEnforcesLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow(ctx, PurposeRegister, "10.0.0.1"))
	}
	err := l.Allow(ctx, PurposeRegister, "10.0.0.1")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	// other clients and other buckets are unaffected
	assert.NoError(t, l.Allow(ctx, PurposeRegister, "10.0.0.2"))
	assert.NoError(t, l.Allow(ctx, PurposeVerifyOTP, "10.0.0.1"))
}

func TestAllowWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, PurposeLogin, "ip"))
	require.NoError(t, l.Allow(ctx, PurposeLogin, "ip"))
	require.ErrorIs(t, l.Allow(ctx, PurposeLogin, "ip"), ErrRateLimitExceeded)

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, l.Allow(ctx, PurposeLogin, "ip"))
}

func TestAllowUnknownPurpose(t *testing.T) {
	l, _ := newTestLimiter(t)
	assert.Error(t, l.Allow(context.Background(), "bogus", "ip"))
}

func TestEmailCooldown(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.ClaimEmailCooldown(ctx, PurposeResendOTP, "A@Example.com"))
	assert.ErrorIs(t, l.ClaimEmailCooldown(ctx, PurposeResendOTP, "a@example.com "), ErrCooldownActive)

	// separate purposes keep separate cooldowns
	assert.NoError(t, l.ClaimEmailCooldown(ctx, PurposePasswordReset, "a@example.com"))

	mr.FastForward(2*time.Minute + time.Second)
	assert.NoError(t, l.ClaimEmailCooldown(ctx, PurposeResendOTP, "a@example.com"))
}

func TestAllowSurfacesRedisFailure(t *testing.T) {
	l, mr := newTestLimiter(t)
	mr.Close()

	err := l.Allow(context.Background(), PurposeLogin, "ip")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimitExceeded)
}

// flakyExpire fails the first EXPIRE and passes everything else through.
type flakyExpire struct {
	redis.Cmdable
	failed atomic.Bool
}

func (f *flakyExpire) Expire(ctx context.Context, key string, d time.Duration) *redis.BoolCmd {
	if f.failed.CompareAndSwap(false, true) {
		cmd := redis.NewBoolCmd(ctx, "expire", key, d)
		cmd.SetErr(errors.New("i/o timeout"))
		return cmd
	}
	return f.Cmdable.Expire(ctx, key, d)
}

func TestAllowRecoversFromFailedExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewLimiter(&flakyExpire{Cmdable: client}, config.RateLimitConfig{
		LoginLimit:  2,
		LoginWindow: time.Minute,
	})
	ctx := context.Background()
	key := ipKey(PurposeLogin, "ip")

	err := l.Allow(ctx, PurposeLogin, "ip")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimitExceeded)

	// the next request sees the missing TTL and opens the window
	require.NoError(t, l.Allow(ctx, PurposeLogin, "ip"))
	assert.Greater(t, mr.TTL(key), time.Duration(0))
	assert.ErrorIs(t, l.Allow(ctx, PurposeLogin, "ip"), ErrRateLimitExceeded)

	mr.FastForward(time.Minute + time.Second)
	assert.NoError(t, l.Allow(ctx, PurposeLogin, "ip"))
}

func TestAllowKeepsWindowOpenFromFirstHit(t *testing.T) {
	l, mr := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, PurposeLogin, "ip"))
	mr.FastForward(40 * time.Second)
	require.NoError(t, l.Allow(ctx, PurposeLogin, "ip"))

	// the second hit must not restart the window
	assert.LessOrEqual(t, mr.TTL(ipKey(PurposeLogin, "ip")), 20*time.Second)
}

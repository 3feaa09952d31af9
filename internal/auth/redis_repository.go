package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore keeps the refresh token deny-list in Redis.
// Entries expire with the tokens they refer to.
type RedisRevocationStore struct {
	client redis.Cmdable
}

func NewRedisRevocationStore(client redis.Cmdable) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// getRevokedKey generates the Redis key for a revoked token marker
func getRevokedKey(tokenID string) string {
	return fmt.Sprintf("refresh_token:revoked:%s", tokenID)
}

// getRevokedBeforeKey generates the Redis key for a user's revocation cut-off
func getRevokedBeforeKey(userID uuid.UUID) string {
	return fmt.Sprintf("refresh_token:revoked_before:%s", userID.String())
}

// Revoke sets the marker only if absent, so concurrent revocations of one
// token agree on a single winner.
func (r *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, getRevokedKey(tokenID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return ok, nil
}

func (r *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, getRevokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation: %w", err)
	}
	return n > 0, nil
}

// RevokeIssuedBefore stores cutoff as unix seconds. The key lives as long as
// the longest token it can affect.
func (r *RedisRevocationStore) RevokeIssuedBefore(ctx context.Context, userID uuid.UUID, cutoff time.Time, ttl time.Duration) error {
	err := r.client.Set(ctx, getRevokedBeforeKey(userID), cutoff.Unix(), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store revocation cut-off: %w", err)
	}
	return nil
}

func (r *RedisRevocationStore) RevokedBefore(ctx context.Context, userID uuid.UUID) (time.Time, bool, error) {
	val, err := r.client.Get(ctx, getRevokedBeforeKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read revocation cut-off: %w", err)
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed revocation cut-off %q: %w", val, err)
	}
	return time.Unix(unix, 0), true, nil
}

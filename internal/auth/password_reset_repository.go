package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrPasswordResetTokenNotFound = errors.New("password reset token not found")

// PasswordResetRepository handles password reset token storage in Redis
type PasswordResetRepository struct {
	client redis.Cmdable
}

// NewPasswordResetRepository creates a new password reset repository instance
func NewPasswordResetRepository(client redis.Cmdable) *PasswordResetRepository {
	return &PasswordResetRepository{
		client: client,
	}
}

// Store saves the owner of token for ttl. Only a hash of the token is kept.
func (r *PasswordResetRepository) Store(ctx context.Context, userID uuid.UUID, token string, ttl time.Duration) error {
	err := r.client.Set(ctx, passwordResetKey(token), userID.String(), ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to store password reset token: %w", err)
	}
	return nil
}

// Consume returns the owner of token and deletes it in one step, so a token
// can be redeemed once.
func (r *PasswordResetRepository) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	userIDStr, err := r.client.GetDel(ctx, passwordResetKey(token)).Result()
	if err == redis.Nil {
		return uuid.Nil, ErrPasswordResetTokenNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to consume password reset token: %w", err)
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse user ID: %w", err)
	}

	return userID, nil
}

// passwordResetKey generates a Redis key for password reset tokens
func passwordResetKey(token string) string {
	return fmt.Sprintf("password_reset:%s", hashToken(token))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

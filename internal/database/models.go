package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the row stored in the users table.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	Email        string     `bun:"email,notnull,unique"`
	PasswordHash string     `bun:"password_hash,notnull"`
	FirstName    string     `bun:"first_name,notnull"`
	LastName     string     `bun:"last_name,notnull"`
	AvatarID     *string    `bun:"avatar_id"`
	IsVerified   bool       `bun:"is_verified,notnull"`
	IsActive     bool       `bun:"is_active,notnull"`
	OTPCode      *string    `bun:"otp_code"`
	OTPIssuedAt  *time.Time `bun:"otp_issued_at"`
	OTPExpiresAt *time.Time `bun:"otp_expires_at"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

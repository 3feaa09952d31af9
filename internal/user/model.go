package user

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity record. The embedded OTP slot holds at most one code.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose password hash in JSON
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	AvatarID     *string    `json:"avatarId"`
	IsVerified   bool       `json:"isVerified"`
	IsActive     bool       `json:"isActive"`
	OTPCode      *string    `json:"-"`
	OTPIssuedAt  *time.Time `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// HasOTP reports whether a code and its expiry are stored.
func (u *User) HasOTP() bool {
	return u.OTPCode != nil && u.OTPExpiresAt != nil
}

// NewUser holds the values for a record that does not exist yet.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	AvatarID     *string
}

// Column names writable through UpdateFields.
const (
	ColPasswordHash = "password_hash"
	ColFirstName    = "first_name"
	ColLastName     = "last_name"
	ColAvatarID     = "avatar_id"
	ColIsVerified   = "is_verified"
	ColIsActive     = "is_active"
	ColOTPCode      = "otp_code"
	ColOTPIssuedAt  = "otp_issued_at"
	ColOTPExpiresAt = "otp_expires_at"
)

var writableColumns = map[string]bool{
	ColPasswordHash: true,
	ColFirstName:    true,
	ColLastName:     true,
	ColAvatarID:     true,
	ColIsVerified:   true,
	ColIsActive:     true,
	ColOTPCode:      true,
	ColOTPIssuedAt:  true,
	ColOTPExpiresAt: true,
}

// Fields maps column names to new values. A nil value writes NULL.
type Fields map[string]any

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"github.com/redmonkez12/go-otp-auth/internal/apperr"
)

const (
	minPasswordLength = 6
	passwordSpecials  = "!@#$%^&*()_+-=[]{}|;:'\",.<>?/`~"
)

// ValidatePassword applies the password policy and reports every rule the
// password breaks, attributed to field.
func ValidatePassword(password, field string) []*apperr.Error {
	if password == "" {
		return []*apperr.Error{ErrPasswordRequired.WithField(field)}
	}

	var errs []*apperr.Error
	if utf8.RuneCountInString(password) < minPasswordLength {
		errs = append(errs, ErrPasswordTooShort.WithField(field))
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		errs = append(errs, ErrPasswordNoUpper.WithField(field))
	}
	if !strings.ContainsAny(password, passwordSpecials) {
		errs = append(errs, ErrPasswordNoSpecial.WithField(field))
	}
	return errs
}

// Argon2Params tunes argon2id. The defaults balance security and latency.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultArgon2Params: Time 3, Memory 64MB, Threads 4, KeyLen 32 bytes.
var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

// PasswordHasher hashes and verifies passwords with argon2id.
type PasswordHasher struct {
	params Argon2Params
}

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	return &PasswordHasher{params: params}
}

// Hash encodes as $argon2id$v=19$m=65536,t=3,p=4$salt$hash
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify re-derives the hash with the parameters stored in encodedHash.
func (h *PasswordHasher) Verify(encodedHash, password string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	inputHash := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(decodedHash)))
	return subtle.ConstantTimeCompare(decodedHash, inputHash) == 1
}

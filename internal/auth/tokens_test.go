package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-otp-auth/internal/config"
)

const testJWTSecret = "this-is-a-test-secret-of-32bytes!"

type tokenCase struct {
	name string
	build func(t *testing.T, key, issuer string, clock *testClock) TokenService
}

var tokenCases = []tokenCase{
	{
		name: "paseto",
		build: func(t *testing.T, key, issuer string, clock *testClock) TokenService {
			s, err := NewPasetoService([]byte(key[:32]), issuer)
			require.NoError(t, err)
			s.now = clock.Now
			return s
		},
	},
	{
		name: "jwt",
		build: func(t *testing.T, key, issuer string, clock *testClock) TokenService {
			s, err := NewJWTService([]byte(key), issuer)
			require.NoError(t, err)
			s.now = clock.Now
			return s
		},
	},
}

func sampleClaims(now time.Time) TokenClaims {
	return TokenClaims{
		TokenID:   "2BbSeKQmHmHrRqcCRm5fsGm0Ihh",
		UserID:    "4f1c6a0e-8f0b-4c1e-9d55-0b9a5d2b7e11",
		Email:     "ana@example.com",
		Type:      TokenTypeRefresh,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

// tamper flips a character in the middle of the token, well inside the
// encoded payload.
func tamper(token string) string {
	b := []byte(token)
	i := len(b) / 2
	for b[i] == '.' {
		i++
	}
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestTokenServices(t *testing.T) {
	for _, tc := range tokenCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Run("round trip", func(t *testing.T) {
				clock := newTestClock()
				svc := tc.build(t, testJWTSecret, testIssuer, clock)

				want := sampleClaims(clock.Now())
				token, err := svc.CreateToken(want)
				require.NoError(t, err)

				got, err := svc.VerifyToken(token)
				require.NoError(t, err)
				assert.Equal(t, want.TokenID, got.TokenID)
				assert.Equal(t, want.UserID, got.UserID)
				assert.Equal(t, want.Email, got.Email)
				assert.Equal(t, TokenTypeRefresh, got.Type)
				assert.Equal(t, want.IssuedAt.Unix(), got.IssuedAt.Unix())
				assert.Equal(t, want.ExpiresAt.Unix(), got.ExpiresAt.Unix())
			})

			t.Run("tampered", func(t *testing.T) {
				clock := newTestClock()
				svc := tc.build(t, testJWTSecret, testIssuer, clock)

				token, err := svc.CreateToken(sampleClaims(clock.Now()))
				require.NoError(t, err)

				_, err = svc.VerifyToken(tamper(token))
				assert.ErrorIs(t, err, ErrInvalidToken)

				_, err = svc.VerifyToken("not-a-token")
				assert.ErrorIs(t, err, ErrInvalidToken)

				_, err = svc.VerifyToken("")
				assert.ErrorIs(t, err, ErrInvalidToken)
			})

			t.Run("expired", func(t *testing.T) {
				clock := newTestClock()
				svc := tc.build(t, testJWTSecret, testIssuer, clock)

				token, err := svc.CreateToken(sampleClaims(clock.Now()))
				require.NoError(t, err)

				clock.Advance(time.Hour + 2*time.Second)
				_, err = svc.VerifyToken(token)
				assert.ErrorIs(t, err, ErrExpiredToken)
				assert.NotErrorIs(t, err, ErrInvalidToken)
			})

			t.Run("foreign key", func(t *testing.T) {
				clock := newTestClock()
				svc := tc.build(t, testJWTSecret, testIssuer, clock)
				other := tc.build(t, "another-secret-that-is-32-bytes-long", testIssuer, clock)

				token, err := other.CreateToken(sampleClaims(clock.Now()))
				require.NoError(t, err)

				_, err = svc.VerifyToken(token)
				assert.ErrorIs(t, err, ErrInvalidToken)
			})

			t.Run("foreign issuer", func(t *testing.T) {
				clock := newTestClock()
				svc := tc.build(t, testJWTSecret, testIssuer, clock)
				other := tc.build(t, testJWTSecret, "someone-else", clock)

				token, err := other.CreateToken(sampleClaims(clock.Now()))
				require.NoError(t, err)

				_, err = svc.VerifyToken(token)
				assert.ErrorIs(t, err, ErrInvalidToken)
			})
		})
	}
}

func TestKeyLengthChecks(t *testing.T) {
	_, err := NewPasetoService([]byte("short"), testIssuer)
	assert.Error(t, err)

	_, err = NewJWTService([]byte("short"), testIssuer)
	assert.Error(t, err)
}

func TestNewTokenService(t *testing.T) {
	svc, err := NewTokenService(config.AuthConfig{TokenFormat: config.TokenFormatPaseto, PasetoKey: testPasetoKey, Issuer: testIssuer})
	require.NoError(t, err)
	assert.IsType(t, &PasetoService{}, svc)

	svc, err = NewTokenService(config.AuthConfig{TokenFormat: config.TokenFormatJWT, JWTSecret: testJWTSecret, Issuer: testIssuer})
	require.NoError(t, err)
	assert.IsType(t, &JWTService{}, svc)

	_, err = NewTokenService(config.AuthConfig{TokenFormat: "saml"})
	assert.Error(t, err)
}

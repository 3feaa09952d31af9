package auth

import (
	"fmt"

	"github.com/redmonkez12/go-otp-auth/internal/config"
)

// NewTokenService returns the token format selected by AUTH_TOKEN_FORMAT.
func NewTokenService(cfg config.AuthConfig) (TokenService, error) {
	switch cfg.TokenFormat {
	case config.TokenFormatPaseto:
		return NewPasetoService([]byte(cfg.PasetoKey), cfg.Issuer)
	case config.TokenFormatJWT:
		return NewJWTService([]byte(cfg.JWTSecret), cfg.Issuer)
	default:
		return nil, fmt.Errorf("unsupported token format %q", cfg.TokenFormat)
	}
}

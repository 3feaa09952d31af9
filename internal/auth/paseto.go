package auth

import (
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
)

const claimType = "typ"

// PasetoService handles PASETO token creation and validation
// Uses v4.local (symmetric encryption with XChaCha20-Poly1305)
type PasetoService struct {
	symmetricKey paseto.V4SymmetricKey
	issuer       string
	now          func() time.Time
}

func NewPasetoService(symmetricKey []byte, issuer string) (*PasetoService, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoService{
		symmetricKey: key,
		issuer:       issuer,
		now:          time.Now,
	}, nil
}

// CreateToken generates a new PASETO v4.local token with the given claims
func (s *PasetoService) CreateToken(claims TokenClaims) (string, error) {
	token := paseto.NewToken()
	token.SetIssuer(s.issuer)
	token.SetJti(claims.TokenID)
	token.SetSubject(claims.UserID)
	token.SetIssuedAt(claims.IssuedAt)
	token.SetExpiration(claims.ExpiresAt)
	token.SetString("email", claims.Email)
	token.SetString(claimType, string(claims.Type))

	return token.V4Encrypt(s.symmetricKey, nil), nil
}

// VerifyToken validates a PASETO v4.local token and returns the claims
func (s *PasetoService) VerifyToken(tokenStr string) (*TokenClaims, error) {
	// Expiry is checked below against s.now so both outcomes stay distinguishable
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.IssuedBy(s.issuer))

	token, err := parser.ParseV4Local(s.symmetricKey, tokenStr, nil)
	if err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}

	var claims TokenClaims
	if claims.TokenID, err = token.GetJti(); err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	if claims.UserID, err = token.GetSubject(); err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	if claims.Email, err = token.GetString("email"); err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	typ, err := token.GetString(claimType)
	if err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	claims.Type = TokenType(typ)
	if claims.IssuedAt, err = token.GetIssuedAt(); err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	if claims.ExpiresAt, err = token.GetExpiration(); err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}

	if s.now().After(claims.ExpiresAt) {
		return nil, ErrExpiredToken
	}

	return &claims, nil
}

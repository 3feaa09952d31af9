package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"github.com/redmonkez12/go-otp-auth/internal/user"
)

// AccessToken is a freshly minted access credential.
type AccessToken struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"` // seconds
}

// TokenPair is the result of a successful login or verification.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Issuer mints, verifies and revokes session tokens. Tokens are stateless;
// only revocations are stored.
type Issuer struct {
	tokens     TokenService
	revoked    RevocationStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(tokens TokenService, revoked RevocationStore, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		tokens:     tokens,
		revoked:    revoked,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Mint issues an access and a refresh token for u.
func (i *Issuer) Mint(u *user.User) (*TokenPair, error) {
	access, err := i.MintAccess(u.ID, u.Email)
	if err != nil {
		return nil, err
	}

	refresh, err := i.create(u.ID.String(), u.Email, TokenTypeRefresh, i.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access.AccessToken,
		RefreshToken: refresh,
		TokenType:    access.TokenType,
		ExpiresIn:    access.ExpiresIn,
	}, nil
}

// MintAccess issues an access token only.
func (i *Issuer) MintAccess(userID uuid.UUID, email string) (*AccessToken, error) {
	token, err := i.create(userID.String(), email, TokenTypeAccess, i.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}
	return &AccessToken{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(i.accessTTL.Seconds()),
	}, nil
}

func (i *Issuer) create(subject, email string, typ TokenType, ttl time.Duration) (string, error) {
	now := i.now()
	return i.tokens.CreateToken(TokenClaims{
		TokenID:   ksuid.New().String(),
		UserID:    subject,
		Email:     email,
		Type:      typ,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
}

// VerifyAccess checks an access token. Refresh tokens are rejected.
func (i *Issuer) VerifyAccess(token string) (*TokenClaims, error) {
	claims, err := i.tokens.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token's authenticity, type, lifetime and
// revocation state.
func (i *Issuer) VerifyRefresh(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := i.parseRefresh(token)
	if err != nil {
		return nil, err
	}
	if err := i.checkRevoked(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Refresh mints a new access token for the subject of a valid refresh token.
// The refresh token itself stays valid.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*AccessToken, *TokenClaims, error) {
	claims, err := i.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidToken.Wrap(err)
	}

	access, err := i.MintAccess(userID, claims.Email)
	if err != nil {
		return nil, nil, err
	}
	return access, claims, nil
}

// Revoke puts a refresh token on the deny-list. Revoking the same token twice
// yields ErrTokenRevoked; malformed, expired or non-refresh tokens yield
// ErrInvalidToken.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := i.parseRefresh(refreshToken)
	if err != nil {
		return err
	}

	if cut, err := i.predatesCutoff(ctx, claims); err != nil {
		return err
	} else if cut {
		return ErrTokenRevoked
	}

	// Keep the marker exactly as long as the token could still be presented
	ttl := max(claims.ExpiresAt.Sub(i.now()), time.Second)

	fresh, err := i.revoked.Revoke(ctx, claims.TokenID, ttl)
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !fresh {
		return ErrTokenRevoked
	}
	return nil
}

// RevokeAllForUser invalidates every refresh token of userID issued so far.
func (i *Issuer) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	if err := i.revoked.RevokeIssuedBefore(ctx, userID, i.now(), i.refreshTTL); err != nil {
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}
	return nil
}

func (i *Issuer) parseRefresh(token string) (*TokenClaims, error) {
	claims, err := i.tokens.VerifyToken(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, ErrInvalidToken.Wrap(err)
		}
		return nil, err
	}
	if claims.Type != TokenTypeRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) checkRevoked(ctx context.Context, claims *TokenClaims) error {
	revoked, err := i.revoked.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return ErrTokenRevoked
	}

	cut, err := i.predatesCutoff(ctx, claims)
	if err != nil {
		return err
	}
	if cut {
		return ErrTokenRevoked
	}
	return nil
}

// predatesCutoff compares at second precision, the resolution of iat.
func (i *Issuer) predatesCutoff(ctx context.Context, claims *TokenClaims) (bool, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return false, ErrInvalidToken.Wrap(err)
	}

	cutoff, ok, err := i.revoked.RevokedBefore(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check revocation cut-off: %w", err)
	}
	if !ok {
		return false, nil
	}
	return claims.IssuedAt.Unix() < cutoff.Unix(), nil
}

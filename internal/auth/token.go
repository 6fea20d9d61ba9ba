package auth

import (
	"fmt"
	"time"

	"github.com/cyberguard/aegis/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager mints and verifies the signed session tokens. Tokens are
// immutable once issued; renewal mints a new pair instead of editing claims.
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	now                func() time.Time
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
		now:                time.Now,
	}
}

// CreateTokens mints an access/refresh pair for the principal. The two
// tokens expire independently and carry distinct type discriminators.
func (tm *TokenManager) CreateTokens(userID, email string, role models.Role) (*models.TokenPair, error) {
	access, err := tm.generate(models.TokenTypeAccess, userID, email, role, tm.accessTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, err := tm.generate(models.TokenTypeRefresh, userID, email, role, tm.refreshTokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (tm *TokenManager) generate(kind, userID, email string, role models.Role, expiry time.Duration) (string, error) {
	now := tm.now()
	claims := &models.TokenClaims{
		Type:   kind,
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(tm.secret))
}

// Verify checks signature and expiry and returns the claims. Any failure
// (bad signature, malformed token, expiry, wrong signing method) returns an
// error; a token is never partially valid.
func (tm *TokenManager) Verify(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return tm.now() }))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if claims.Type != models.TokenTypeAccess && claims.Type != models.TokenTypeRefresh {
		return nil, fmt.Errorf("invalid token: missing type")
	}

	return claims, nil
}

// VerifyRefresh verifies a token and additionally requires the refresh
// discriminator, so access tokens cannot be replayed against /auth/refresh.
func (tm *TokenManager) VerifyRefresh(tokenString string) (*models.TokenClaims, error) {
	claims, err := tm.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypeRefresh {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}

// SetNowFunc overrides the clock. Test hook.
func (tm *TokenManager) SetNowFunc(now func() time.Time) {
	tm.now = now
}

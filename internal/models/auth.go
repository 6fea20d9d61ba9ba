package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Role is the closed set of principal roles known to the authorizer.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleUser    Role = "user"
)

// ParseRole maps a stored role string onto the closed Role set.
// Unknown values return false; callers must treat that as no role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleAnalyst, RoleUser:
		return Role(s), true
	}
	return "", false
}

// Token kinds carried in the type claim. Refresh tokens carry a distinct
// discriminator so they cannot be replayed as access tokens.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenClaims is the session payload carried by both token kinds.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

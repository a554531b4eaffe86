package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Role is required on access tokens; refresh tokens do not carry one.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

// Identity is the authenticated caller as seen by internal modules:
// who is asking, and with what role. Ownership checks compare UserID
// against the call's owner; admin checks go through internal/rbac.
type Identity struct {
	UserID string
	Role   string
}

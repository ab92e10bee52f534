package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Role names. Keep these stable; they are part of the auth contract.
// Callers pay per minute; callees earn per minute; admins see
// reconciliation tooling only.
const (
	RoleCaller = "caller"
	RoleCallee = "callee"
	RoleAdmin  = "admin"
)

// Claims are the only supported JWT claims shape for this service.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}

func isValidRole(role string) bool {
	switch role {
	case RoleCaller, RoleCallee, RoleAdmin:
		return true
	default:
		return false
	}
}

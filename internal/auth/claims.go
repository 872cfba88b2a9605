package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims are the JWT claims accepted by the API.
// Tokens identify a user only; project scope always comes from the URL.
type CustomClaims struct {
	ActorID string `json:"actorId,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id, preferring the explicit actorId claim over sub.
func (c *CustomClaims) UserID() string {
	if c.ActorID != "" {
		return c.ActorID
	}
	return c.Subject
}

// Validate performs additional validation on custom claims
func (c *CustomClaims) Validate() error {
	if c.UserID() == "" {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the access token payload the admin console presents.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// ActorID returns the identity recorded as reviewer/approver.
func (c *JWTClaims) ActorID() string {
	if c == nil {
		return ""
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

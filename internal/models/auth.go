package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims carried by the identity provider's session token.
// Subject (RegisteredClaims.Subject) is the opaque user id.
type SessionClaims struct {
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the opaque user id issued by the identity provider.
func (c *SessionClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

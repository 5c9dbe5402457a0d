package models

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Claims defines the structure of the JWT claims issued by the auth service.
type Claims struct {
	UserID   int64   `json:"user_id"`
	Username string  `json:"username"`
	Role     string  `json:"role"`
	OrgIDs   []int64 `json:"org_ids"`
	jwt.RegisteredClaims
}

// HasOrg reports whether the token grants access to orgID.
func (c *Claims) HasOrg(orgID int64) bool {
	for _, id := range c.OrgIDs {
		if id == orgID {
			return true
		}
	}
	return false
}

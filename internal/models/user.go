package models

// Role is the marketplace role carried by an authenticated identity.
type Role string

const (
	RoleClient Role = "client"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller of a marketplace operation. Credentials are
// managed by the identity provider; the core only sees the id and role.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) Is(role Role) bool {
	return a.Role == role
}

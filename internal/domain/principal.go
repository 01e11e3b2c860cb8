package domain

import (
	"strings"
	"time"
)

// Role is the closed set of caller roles recognized by the core.
type Role int

const (
	RoleAnonymous Role = iota
	RoleCustomer
	RoleStaff
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleStaff:
		return "staff"
	case RoleAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// ParseRole maps a provider roles claim entry onto the enum.
// Unknown claim values collapse to Anonymous so a misconfigured provider
// can never grant privileges by accident.
func ParseRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "customer":
		return RoleCustomer
	case "staff":
		return RoleStaff
	case "admin":
		return RoleAdmin
	default:
		return RoleAnonymous
	}
}

// Principal is the authenticated identity for one request.
// It is built from a verified token, never persisted, and discarded at request end.
type Principal struct {
	Subject   string
	Email     string
	Roles     []Role
	ExpiresAt time.Time
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role Role) bool {
	if p == nil {
		return role == RoleAnonymous
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

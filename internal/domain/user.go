package domain

import "time"

const (
	// RoleDonor is the default role granted to authenticated supporters.
	RoleDonor = "donor"
	// RoleAdmin grants access to ledger listings and outbound email.
	RoleAdmin = "admin"
)

// UserProfile mirrors the Firestore profile document kept alongside the
// Firebase auth record. Roles are authoritative here, not in token claims.
type UserProfile struct {
	UID         string
	Email       string
	DisplayName string
	Roles       []string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasRole reports whether the profile carries the given role.
func (p UserProfile) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

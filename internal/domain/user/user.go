// Package user defines roles and the per-request authenticated principal.
package user

import "time"

// Role is a portal role as stored on the user's profile record.
type Role string

const (
	RoleDirector   Role = "diretora"
	RoleTeacher    Role = "professor"
	RoleAssistant  Role = "monitor"
	RoleStudent    Role = "aluno"
	RoleGuardian   Role = "responsavel"
	RoleSuperAdmin Role = "super_admin"

	// RoleSuperAdminLegacy is the spelling older profile rows still carry.
	RoleSuperAdminLegacy Role = "superadmin"
)

// ValidRoles is the closed set of canonical roles.
var ValidRoles = map[Role]bool{
	RoleDirector:   true,
	RoleTeacher:    true,
	RoleAssistant:  true,
	RoleStudent:    true,
	RoleGuardian:   true,
	RoleSuperAdmin: true,
}

// Canonical maps legacy spellings onto their canonical role.
func (r Role) Canonical() Role {
	if r == RoleSuperAdminLegacy {
		return RoleSuperAdmin
	}
	return r
}

// Valid reports whether r (after canonicalization) is a known role.
func (r Role) Valid() bool {
	return ValidRoles[r.Canonical()]
}

// Principal is the caller identity derived from a session for one request.
// Role may be empty when the session token does not carry it; the profile
// store is the authority for roles.
type Principal struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

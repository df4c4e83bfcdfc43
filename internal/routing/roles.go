package routing

import "github.com/Strob0t/StudioGate/internal/domain/user"

// DefaultRoute is the landing area for roles the table does not know.
// It is the least privileged portal, so a stale role never strands a user.
const DefaultRoute = "/aluno"

var roleRoutes = map[user.Role]string{
	user.RoleDirector:   "/diretora",
	user.RoleTeacher:    "/professor",
	user.RoleAssistant:  "/monitor",
	user.RoleStudent:    "/aluno",
	user.RoleGuardian:   "/responsavel",
	user.RoleSuperAdmin: "/superadmin",
}

// RouteForRole returns the dashboard path for role. Legacy spellings route
// like their canonical role.
func RouteForRole(role string) string {
	if p, ok := roleRoutes[user.Role(role).Canonical()]; ok {
		return p
	}
	return DefaultRoute
}

// Package database defines the store ports the edge reads from.
package database

import (
	"context"

	"github.com/Strob0t/StudioGate/internal/domain/tenant"
	"github.com/Strob0t/StudioGate/internal/domain/user"
)

// TenantStore is the persisted tenant registry, read once at startup.
type TenantStore interface {
	LoadTenants(ctx context.Context) ([]tenant.Tenant, error)
	// LoadDomains returns custom hostnames keyed to tenant slugs.
	LoadDomains(ctx context.Context) (map[string]string, error)
}

// ProfileStore resolves a user's portal role. Unknown users return an
// error wrapping domain.ErrNotFound.
type ProfileStore interface {
	RoleOf(ctx context.Context, userID string) (user.Role, error)
}

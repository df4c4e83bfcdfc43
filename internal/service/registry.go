// Package service holds the edge's application services: the tenant
// registry loader, the post-login landing decision and the role cache.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Strob0t/StudioGate/internal/config"
	"github.com/Strob0t/StudioGate/internal/domain/tenant"
	"github.com/Strob0t/StudioGate/internal/port/database"
	"github.com/Strob0t/StudioGate/internal/routing"
)

// Registry is the immutable tenant routing state built at startup.
type Registry struct {
	Directory *tenant.Directory
	Resolver  *routing.Resolver
}

// LoadRegistry builds the directory and resolver from the configured
// source. store is only consulted for config.SourcePostgres.
func LoadRegistry(ctx context.Context, cfg config.Routing, static []tenant.Tenant, store database.TenantStore) (*Registry, error) {
	tenants, hosts := static, cfg.Hosts

	if cfg.Source == config.SourcePostgres {
		if store == nil {
			return nil, fmt.Errorf("tenant source %q: no store", cfg.Source)
		}
		var err error
		if tenants, err = store.LoadTenants(ctx); err != nil {
			return nil, err
		}
		if hosts, err = store.LoadDomains(ctx); err != nil {
			return nil, err
		}
	}

	dir, err := tenant.NewDirectory(tenants, cfg.DefaultTenant)
	if err != nil {
		return nil, fmt.Errorf("build tenant directory: %w", err)
	}
	res, err := routing.NewResolver(dir, cfg.MainDomain, Mappings(hosts))
	if err != nil {
		return nil, fmt.Errorf("build host resolver: %w", err)
	}

	slog.InfoContext(ctx, "tenant registry loaded",
		"source", cfg.Source, "tenants", dir.Len(), "hosts", res.Mappings(),
		"main_domain", res.MainDomain())
	return &Registry{Directory: dir, Resolver: res}, nil
}

// Mappings converts a hostname map into a stable, sorted mapping list.
func Mappings(hosts map[string]string) []routing.DomainMapping {
	out := make([]routing.DomainMapping, 0, len(hosts))
	for h, s := range hosts {
		out = append(out, routing.DomainMapping{Hostname: h, Slug: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/StudioGate/internal/domain/tenant"
)

// LoadTenants returns every enabled tenant ordered by slug.
func (s *Store) LoadTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, slug, name, primary_color, secondary_color, accent_color,
		        background_color, paper_color, logo_url
		 FROM tenants WHERE enabled ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.PrimaryColor, &t.SecondaryColor,
			&t.AccentColor, &t.BackgroundColor, &t.PaperColor, &t.LogoURL); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// LoadDomains returns the custom hostname map (hostname -> slug) for
// enabled tenants.
func (s *Store) LoadDomains(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.hostname, d.tenant_slug
		 FROM tenant_domains d JOIN tenants t ON t.slug = d.tenant_slug
		 WHERE t.enabled`)
	if err != nil {
		return nil, fmt.Errorf("load tenant domains: %w", err)
	}
	defer rows.Close()

	hosts := make(map[string]string)
	for rows.Next() {
		var host, slug string
		if err := rows.Scan(&host, &slug); err != nil {
			return nil, fmt.Errorf("scan tenant domain: %w", err)
		}
		hosts[host] = slug
	}
	return hosts, rows.Err()
}

// SeedTenants upserts tenants and their hostnames in one transaction. It is
// used to import a static configuration into the registry.
func (s *Store) SeedTenants(ctx context.Context, tenants []tenant.Tenant, hosts map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range tenants {
		t := &tenants[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("seed tenant %q: %w", t.Slug, err)
		}
		id := t.ID
		if id == "" {
			id = tenant.DerivedID(t.Slug)
		}
		batch.Queue(
			`INSERT INTO tenants (id, slug, name, primary_color, secondary_color, accent_color,
			                      background_color, paper_color, logo_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (slug) DO UPDATE SET
			   name = EXCLUDED.name, primary_color = EXCLUDED.primary_color,
			   secondary_color = EXCLUDED.secondary_color, accent_color = EXCLUDED.accent_color,
			   background_color = EXCLUDED.background_color, paper_color = EXCLUDED.paper_color,
			   logo_url = EXCLUDED.logo_url, updated_at = now()`,
			id, t.Slug, t.Name, t.PrimaryColor, t.SecondaryColor, t.AccentColor,
			t.BackgroundColor, t.PaperColor, t.LogoURL)
	}
	for host, slug := range hosts {
		batch.Queue(
			`INSERT INTO tenant_domains (hostname, tenant_slug) VALUES (lower($1), $2)
			 ON CONFLICT (hostname) DO UPDATE SET tenant_slug = EXCLUDED.tenant_slug`,
			host, slug)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed tenants: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

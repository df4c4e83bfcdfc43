package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/Strob0t/StudioGate/internal/adapter/postgres"
	"github.com/Strob0t/StudioGate/internal/config"
	"github.com/Strob0t/StudioGate/internal/middleware"
	"github.com/Strob0t/StudioGate/internal/port/database"
	"github.com/Strob0t/StudioGate/internal/routing"
	"github.com/Strob0t/StudioGate/internal/service"
	"github.com/Strob0t/StudioGate/internal/session"
)

// runMigrate applies, rolls back or reports the schema version.
func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn is required (DATABASE_URL)")
	}

	ctx := context.Background()
	switch cmd := fs.Arg(0); cmd {
	case "", "up":
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "Migrations applied.")
	case "down":
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Rolled back %d migration(s).\n", *steps)
	case "version":
		v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		fmt.Println(v)
	default:
		return fmt.Errorf("unknown migrate command: %s", cmd)
	}
	return nil
}

// loadCLIRegistry builds the tenant registry the server would build.
// The returned cleanup closes the database pool, if one was opened.
func loadCLIRegistry(ctx context.Context, cfg *config.Config) (*service.Registry, func(), error) {
	cleanup := func() {}
	var store database.TenantStore
	if cfg.Routing.Source == config.SourcePostgres {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		cleanup = pool.Close
		store = postgres.NewStore(pool)
	}

	reg, err := service.LoadRegistry(ctx, cfg.Routing, cfg.Tenants, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return reg, cleanup, nil
}

// runResolve prints the edge decision for an anonymous request.
func runResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	host := fs.String("host", "", "request hostname (required)")
	path := fs.String("path", "/", "request path")
	asJSON := fs.Bool("json", false, "print the decision as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *host == "" {
		return fmt.Errorf("--host is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Registry load logs at info; keep the CLI output clean.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	reg, cleanup, err := loadCLIRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	anonymous := session.AuthenticatorFunc(func(context.Context, []*http.Cookie) (*session.Result, error) {
		return &session.Result{}, nil
	})
	edge := middleware.NewEdge(reg.Resolver, anonymous, routing.NewGuard(cfg.Server.LoginPath, nil), nil, slog.Default())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, *path, http.NoBody)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	req.Host = *host
	exp, err := edge.Explain(req)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exp)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "HOST\t%s\n", routing.NormalizeHost(*host))
	_, _ = fmt.Fprintf(w, "OUTCOME\t%s\n", exp.Outcome)
	_, _ = fmt.Fprintf(w, "TENANT\t%s\n", orDash(exp.Tenant))
	if exp.Redirect != "" {
		_, _ = fmt.Fprintf(w, "REDIRECT\t%s\n", exp.Redirect)
	} else {
		_, _ = fmt.Fprintf(w, "UPSTREAM PATH\t%s\n", exp.Path)
	}
	return w.Flush()
}

// runTenants lists the tenant directory and host map, or seeds the
// configured tenants into Postgres.
func runTenants(args []string) error {
	fs := flag.NewFlagSet("tenants", flag.ContinueOnError)
	seed := fs.Bool("seed", false, "upsert the configured tenants and hosts into Postgres")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()

	if *seed {
		if cfg.Postgres.DSN == "" {
			return fmt.Errorf("postgres dsn is required (DATABASE_URL)")
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		if err := postgres.NewStore(pool).SeedTenants(ctx, cfg.Tenants, cfg.Routing.Hosts); err != nil {
			return fmt.Errorf("seed tenants: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Seeded %d tenant(s) and %d hostname(s).\n", len(cfg.Tenants), len(cfg.Routing.Hosts))
		return nil
	}

	reg, cleanup, err := loadCLIRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLUG\tNAME\tPRIMARY\tDEFAULT")
	for _, slug := range reg.Directory.Slugs() {
		t, _ := reg.Directory.LookupBySlug(slug)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", t.Slug, t.Name, t.PrimaryColor, slug == reg.Directory.DefaultSlug())
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "HOSTNAME\tSLUG")
	for _, m := range reg.Resolver.Hosts() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", m.Hostname, m.Slug)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go/jetstream"

	sghttp "github.com/Strob0t/StudioGate/internal/adapter/http"
	sgnats "github.com/Strob0t/StudioGate/internal/adapter/nats"
	sgotel "github.com/Strob0t/StudioGate/internal/adapter/otel"
	"github.com/Strob0t/StudioGate/internal/adapter/postgres"
	"github.com/Strob0t/StudioGate/internal/config"
	"github.com/Strob0t/StudioGate/internal/logger"
	"github.com/Strob0t/StudioGate/internal/middleware"
	"github.com/Strob0t/StudioGate/internal/port/database"
	"github.com/Strob0t/StudioGate/internal/resilience"
	"github.com/Strob0t/StudioGate/internal/routing"
	"github.com/Strob0t/StudioGate/internal/secrets"
	"github.com/Strob0t/StudioGate/internal/service"
	"github.com/Strob0t/StudioGate/internal/session"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := dispatch(os.Args[1:]); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// dispatch runs the subcommand named by args[0]; serve is the default.
func dispatch(args []string) error {
	if len(args) == 0 {
		return run()
	}
	switch args[0] {
	case "serve":
		return run()
	case "migrate":
		return runMigrate(args[1:])
	case "resolve":
		return runResolve(args[1:])
	case "tenants":
		return runTenants(args[1:])
	case "help", "-h", "--help":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: studiogate [command] [options]

Commands:
  serve                      Run the edge server (default)
  migrate [up|down|version]  Manage the tenant registry schema
  resolve --host H --path P  Show what the edge does with an anonymous request
  tenants [--seed]           List tenants and hostnames, or seed them into Postgres
  help                       Show this help message

Configuration is read from studiogate.yaml and STUDIOGATE_* environment variables.
`)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	prev := slog.Default()
	slog.SetDefault(log)
	defer func() {
		closeLog.Close()
		slog.SetDefault(prev)
	}()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"upstream", cfg.Server.UpstreamURL,
		"tenant_source", cfg.Routing.Source,
		"log_level", cfg.Logging.Level,
	)

	ctx := context.Background()

	// --- Telemetry ---

	shutdownOTEL, err := sgotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := sgotel.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	checks := map[string]sghttp.ReadinessCheck{}

	// --- Infrastructure ---

	// PostgreSQL is optional: it backs the persisted tenant registry and
	// the profile role store.
	var (
		tenantStore  database.TenantStore
		profileStore database.ProfileStore
	)
	if cfg.Postgres.DSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		slog.Info("postgres connected")

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")

		store := postgres.NewStore(pool)
		tenantStore = store
		profileStore = sgotel.TracedProfiles(store)
		checks["postgres"] = store.Ping
	}

	// NATS is a best-effort shared role cache tier.
	var l2 jetstream.KeyValue
	if cfg.NATS.URL != "" {
		kv, err := sgnats.Connect(ctx, cfg.NATS, cfg.Cache.RoleTTL)
		if err != nil {
			slog.Warn("nats unavailable, role cache stays local", "error", err)
		} else {
			defer func() { _ = kv.Close() }()
			l2 = kv.Bucket()
		}
	}

	roles, err := service.NewRoleCache(cfg.Cache.L1MaxSizeMB<<20, cfg.Cache.RoleTTL, l2)
	if err != nil {
		return fmt.Errorf("role cache: %w", err)
	}
	defer roles.Close()

	// --- Routing state ---

	reg, err := service.LoadRegistry(ctx, cfg.Routing, cfg.Tenants, tenantStore)
	if err != nil {
		return fmt.Errorf("tenant registry: %w", err)
	}

	auth, err := newAuthenticator(cfg, metrics, checks)
	if err != nil {
		return err
	}

	guard := routing.NewGuard(cfg.Server.LoginPath, nil)
	edge := middleware.NewEdge(reg.Resolver, auth, guard, metrics, slog.Default())

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	upstream, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return fmt.Errorf("upstream url: %w", err)
	}

	// --- HTTP ---

	handlers := &sghttp.Handlers{
		Directory: reg.Directory,
		Resolver:  reg.Resolver,
		Auth:      auth,
		Landing:   service.NewLandingService(guard, profileStore, roles),
		Recorder:  metrics,
		Checks:    checks,
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(sghttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(sgotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	sghttp.MountRoutes(r, handlers, edge, limiter, sghttp.NewProxy(upstream, cfg.Server.Timeout))

	addr := ":" + cfg.Server.Port

	// No ReadTimeout or WriteTimeout: proxied uploads and streams may
	// outlive them. The upstream wait is bounded by the proxy transport.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "tenants", reg.Directory.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// newAuthenticator returns the session provider client, or an
// authenticator that reports ErrNotConfigured when no provider is set.
// The client is traced and its breaker state is registered as a
// readiness check.
func newAuthenticator(cfg *config.Config, metrics *sgotel.Metrics, checks map[string]sghttp.ReadinessCheck) (session.Authenticator, error) {
	client, err := session.NewClient(cfg.Session)
	if errors.Is(err, session.ErrNotConfigured) {
		slog.Warn("session provider not configured, every caller is anonymous")
		return session.Disabled{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session client: %w", err)
	}

	if cfg.Session.SecretsFile != "" {
		vault, err := secrets.NewVault(secrets.FileLoader(cfg.Session.SecretsFile))
		if err != nil {
			return nil, fmt.Errorf("session secrets: %w", err)
		}
		client.SetSecrets(vault)
		go reloadOnHangup(vault)
	}

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	client.SetBreaker(breaker)
	checks["session"] = func(context.Context) error {
		if breaker.State() == resilience.StateOpen {
			return resilience.ErrCircuitOpen
		}
		return nil
	}
	slog.Info("session provider configured",
		"cookie", client.CookieName(), "local_verify", client.LocalVerify())
	return sgotel.TracedAuthenticator(client, metrics), nil
}

// reloadOnHangup re-reads the session secrets on every SIGHUP. A failed
// reload keeps the previous values.
func reloadOnHangup(v *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	for range hup {
		if err := v.Reload(); err != nil {
			slog.Error("session secrets reload failed", "error", err)
			continue
		}
		slog.Info("session secrets reloaded",
			"anon_key", v.Redacted(session.SecretAnonKey),
			"jwt_secret", v.Redacted(session.SecretJWTSecret))
	}
}

// Package config provides hierarchical configuration loading for StudioGate.
// Precedence: defaults < YAML file < environment variables.
package config

import (
	"time"

	"github.com/Strob0t/StudioGate/internal/domain/tenant"
)

// Tenant sources for Routing.Source.
const (
	SourceStatic   = "static"
	SourcePostgres = "postgres"
)

// Config holds all runtime configuration for the edge service.
type Config struct {
	Server   Server          `yaml:"server"`
	Routing  Routing         `yaml:"routing"`
	Tenants  []tenant.Tenant `yaml:"tenants"`
	Session  Session         `yaml:"session"`
	Postgres Postgres        `yaml:"postgres"`
	NATS     NATS            `yaml:"nats"`
	Cache    Cache           `yaml:"cache"`
	Logging  Logging         `yaml:"logging"`
	Breaker  Breaker         `yaml:"breaker"`
	Rate     Rate            `yaml:"rate"`
	OTEL     OTEL            `yaml:"otel"`
}

// Server holds HTTP listener and upstream configuration.
type Server struct {
	Port        string        `yaml:"port"`
	UpstreamURL string        `yaml:"upstream_url"` // application the edge forwards to
	LoginPath   string        `yaml:"login_path"`
	Timeout     time.Duration `yaml:"timeout"`
	TrustProxy  bool          `yaml:"trust_proxy"` // take the client IP from X-Forwarded-For / X-Real-IP
}

// Routing holds tenant resolution configuration.
type Routing struct {
	MainDomain    string            `yaml:"main_domain"`    // platform domain; <slug>.<main_domain> resolves to slug
	DefaultTenant string            `yaml:"default_tenant"` // fallback tenant for ambiguous contexts
	Source        string            `yaml:"source"`         // "static" | "postgres"
	Hosts         map[string]string `yaml:"hosts"`          // hostname -> tenant slug
}

// Session holds the identity provider connection used to validate sessions.
// An empty URL, or no API key in either AnonKey or SecretsFile, disables
// authentication (every caller anonymous).
type Session struct {
	URL         string        `yaml:"url"`
	AnonKey     string        `yaml:"anon_key"`
	JWTSecret   string        `yaml:"jwt_secret"`  // enables local token verification
	CookieName  string        `yaml:"cookie_name"` // defaults to sb-<project-ref>-auth-token
	Timeout     time.Duration `yaml:"timeout"`
	Secure      bool          `yaml:"secure_cookies"`
	SecretsFile string        `yaml:"secrets_file"`  // KEY=VALUE overrides for the keys, re-read on SIGHUP
	MaxInFlight int           `yaml:"max_in_flight"` // concurrent provider calls; 0 means unlimited
}

// Configured reports whether the provider connection details are present.
func (s Session) Configured() bool {
	return s.URL != "" && (s.AnonKey != "" || s.SecretsFile != "")
}

// Postgres holds PostgreSQL connection configuration. DSN is optional: it
// enables the persisted tenant registry and the profile role store.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds the optional JetStream connection backing the L2 role cache.
type NATS struct {
	URL        string `yaml:"url"`
	RoleBucket string `yaml:"role_bucket"`
}

// Cache holds role cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	RoleTTL     time.Duration `yaml:"role_ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for identity provider calls.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds per-client rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// OTEL holds OpenTelemetry exporter configuration. An empty endpoint keeps
// the global no-op providers.
type OTEL struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:        "8080",
			UpstreamURL: "http://localhost:3000",
			LoginPath:   "/login",
			Timeout:     30 * time.Second,
		},
		Routing: Routing{
			MainDomain:    "gestaodedanca.com.br",
			DefaultTenant: "espaco-revelle",
			Source:        SourceStatic,
			Hosts: map[string]string{
				"espacorevelle.com.br":     "espaco-revelle",
				"www.espacorevelle.com.br": "espaco-revelle",
			},
		},
		Tenants: []tenant.Tenant{
			{
				Slug:            "espaco-revelle",
				Name:            "Espaço Revelle",
				PrimaryColor:    "#8E2C48",
				SecondaryColor:  "#F4D6DD",
				AccentColor:     "#D4A24C",
				BackgroundColor: "#FBF7F4",
				PaperColor:      "#FFFFFF",
			},
		},
		Session: Session{
			Timeout:     5 * time.Second,
			Secure:      true,
			MaxInFlight: 64,
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		NATS: NATS{
			RoleBucket: "STUDIOGATE_ROLES",
		},
		Cache: Cache{
			L1MaxSizeMB: 16,
			RoleTTL:     5 * time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "studiogate",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 20,
			Burst:             100,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		OTEL: OTEL{
			ServiceName: "studiogate",
		},
	}
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "studiogate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	if err := loadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist. A file that lists its own hosts
// or tenants replaces the built-in ones rather than merging with them.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	var present struct {
		Routing struct {
			Hosts map[string]string `yaml:"hosts"`
		} `yaml:"routing"`
		Tenants []any `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if present.Routing.Hosts != nil {
		cfg.Routing.Hosts = nil
	}
	if present.Tenants != nil {
		cfg.Tenants = nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) error {
	setString(&cfg.Server.Port, "STUDIOGATE_PORT")
	setString(&cfg.Server.UpstreamURL, "STUDIOGATE_UPSTREAM_URL")
	setString(&cfg.Server.LoginPath, "STUDIOGATE_LOGIN_PATH")
	setBool(&cfg.Server.TrustProxy, "STUDIOGATE_TRUST_PROXY")
	setDuration(&cfg.Server.Timeout, "STUDIOGATE_TIMEOUT")

	setString(&cfg.Routing.MainDomain, "STUDIOGATE_MAIN_DOMAIN")
	setString(&cfg.Routing.DefaultTenant, "STUDIOGATE_DEFAULT_TENANT")
	setString(&cfg.Routing.Source, "STUDIOGATE_TENANT_SOURCE")
	if v := os.Getenv("STUDIOGATE_DOMAIN_MAP"); v != "" {
		hosts, err := parseDomainMap(v)
		if err != nil {
			return fmt.Errorf("STUDIOGATE_DOMAIN_MAP: %w", err)
		}
		cfg.Routing.Hosts = hosts
	}

	setString(&cfg.Session.URL, "SUPABASE_URL")
	setString(&cfg.Session.AnonKey, "SUPABASE_ANON_KEY")
	setString(&cfg.Session.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&cfg.Session.CookieName, "STUDIOGATE_SESSION_COOKIE")
	setDuration(&cfg.Session.Timeout, "STUDIOGATE_SESSION_TIMEOUT")
	setBool(&cfg.Session.Secure, "STUDIOGATE_SECURE_COOKIES")
	setString(&cfg.Session.SecretsFile, "STUDIOGATE_SESSION_SECRETS_FILE")
	setInt(&cfg.Session.MaxInFlight, "STUDIOGATE_SESSION_MAX_IN_FLIGHT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "STUDIOGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "STUDIOGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "STUDIOGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "STUDIOGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "STUDIOGATE_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.RoleBucket, "STUDIOGATE_NATS_ROLE_BUCKET")

	setInt64(&cfg.Cache.L1MaxSizeMB, "STUDIOGATE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.RoleTTL, "STUDIOGATE_CACHE_ROLE_TTL")

	setString(&cfg.Logging.Level, "STUDIOGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "STUDIOGATE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "STUDIOGATE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "STUDIOGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "STUDIOGATE_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "STUDIOGATE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "STUDIOGATE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "STUDIOGATE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "STUDIOGATE_RATE_MAX_IDLE_TIME")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
	return nil
}

// parseDomainMap parses "host=slug,host=slug".
func parseDomainMap(s string) (map[string]string, error) {
	hosts := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		host, slug, ok := strings.Cut(pair, "=")
		host, slug = strings.TrimSpace(host), strings.TrimSpace(slug)
		if !ok || host == "" || slug == "" {
			return nil, fmt.Errorf("invalid entry %q: want host=slug", pair)
		}
		hosts[host] = slug
	}
	return hosts, nil
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	u, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.upstream_url %q must be an absolute URL", cfg.Server.UpstreamURL)
	}
	if !strings.HasPrefix(cfg.Server.LoginPath, "/") {
		return errors.New("server.login_path must start with /")
	}
	if cfg.Routing.DefaultTenant == "" {
		return errors.New("routing.default_tenant is required")
	}
	switch cfg.Routing.Source {
	case SourceStatic:
		if len(cfg.Tenants) == 0 {
			return errors.New("tenants must not be empty when routing.source is static")
		}
	case SourcePostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required when routing.source is postgres")
		}
	default:
		return fmt.Errorf("routing.source %q must be %q or %q", cfg.Routing.Source, SourceStatic, SourcePostgres)
	}
	if cfg.Postgres.DSN != "" && cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Rate.RequestsPerSecond <= 0 {
		return errors.New("rate.requests_per_second must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

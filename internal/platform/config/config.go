package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "zkbadge/pkg/platform/strings"
)

// Ledger modes.
const (
	LedgerModeMemory  = "memory"
	LedgerModeGateway = "gateway"
)

// Config is the full runtime configuration. It is loaded from an optional
// YAML file and then overridden by environment variables.
type Config struct {
	Addr      string          `yaml:"addr"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Session   SessionConfig   `yaml:"session"`
	Admin     AdminConfig     `yaml:"admin"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Tracing   TracingConfig   `yaml:"tracing"`
	// SeedDomains are added to an empty whitelist at startup.
	SeedDomains []string `yaml:"seed_domains"`
}

type OAuthConfig struct {
	ClientID     string        `yaml:"client_id"`
	IssuerURL    string        `yaml:"issuer_url"`
	AuthURL      string        `yaml:"auth_url"`
	RedirectURI  string        `yaml:"redirect_uri"`
	Salt         string        `yaml:"salt"`
	HandshakeTTL time.Duration `yaml:"handshake_ttl"`
}

type SessionConfig struct {
	SigningKey string        `yaml:"signing_key"`
	TTL        time.Duration `yaml:"ttl"`
	// SecureCookie marks the client cookie Secure; disable only for local
	// plain-HTTP development.
	SecureCookie bool `yaml:"secure_cookie"`
}

type AdminConfig struct {
	Emails   []string `yaml:"emails"`
	Subjects []string `yaml:"subjects"`
}

type LedgerConfig struct {
	Mode         string        `yaml:"mode"`
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RegistryRef  string        `yaml:"registry_ref"`
	AdminCapID   string        `yaml:"admin_cap_id"`
	Organization string        `yaml:"organization"`
}

// RedisConfig mirrors the go-redis pool options we tune.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type PostgresConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnMaxLife  time.Duration `yaml:"conn_max_life"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type ReconcileConfig struct {
	Schedule    string        `yaml:"schedule"`
	Staleness   time.Duration `yaml:"staleness"`
	Concurrency int           `yaml:"concurrency"`
}

type TracingConfig struct {
	// Endpoint is the OTLP/gRPC collector address; empty disables export.
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Defaults returns a development configuration.
func Defaults() Config {
	return Config{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "json",
		OAuth: OAuthConfig{
			IssuerURL:    "https://accounts.google.com",
			AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
			RedirectURI:  "http://localhost:8080/auth/callback",
			HandshakeTTL: 10 * time.Minute,
		},
		Session: SessionConfig{
			TTL:          24 * time.Hour,
			SecureCookie: true,
		},
		Ledger: LedgerConfig{
			Mode:         LedgerModeMemory,
			Timeout:      10 * time.Second,
			MaxAttempts:  3,
			Organization: "University",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnMaxLife:  30 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic: "zkbadge.audit",
		},
		Reconcile: ReconcileConfig{
			Schedule:    "@every 5m",
			Staleness:   30 * time.Minute,
			Concurrency: 4,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
		SeedDomains: []string{"@university.edu", "@gradschool.university.edu"},
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults and then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from defaults and environment variables so main
// stays lean.
func FromEnv() (Config, error) {
	return Load(os.Getenv("ZKBADGE_CONFIG"))
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string, lower bool) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = pstrings.SplitList(v, lower)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("ZKBADGE_ADDR", &cfg.Addr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)

	str("OAUTH_CLIENT_ID", &cfg.OAuth.ClientID)
	str("OAUTH_ISSUER_URL", &cfg.OAuth.IssuerURL)
	str("OAUTH_AUTH_URL", &cfg.OAuth.AuthURL)
	str("OAUTH_REDIRECT_URI", &cfg.OAuth.RedirectURI)
	str("ZKLOGIN_SALT", &cfg.OAuth.Salt)
	dur("HANDSHAKE_TTL", &cfg.OAuth.HandshakeTTL)

	str("SESSION_SIGNING_KEY", &cfg.Session.SigningKey)
	dur("SESSION_TTL", &cfg.Session.TTL)
	flag("SESSION_SECURE_COOKIE", &cfg.Session.SecureCookie)

	list("ADMIN_EMAILS", &cfg.Admin.Emails, true)
	list("ADMIN_SUBJECTS", &cfg.Admin.Subjects, false)

	str("LEDGER_MODE", &cfg.Ledger.Mode)
	str("LEDGER_URL", &cfg.Ledger.URL)
	dur("LEDGER_TIMEOUT", &cfg.Ledger.Timeout)
	num("LEDGER_MAX_ATTEMPTS", &cfg.Ledger.MaxAttempts)
	str("REGISTRY_REF", &cfg.Ledger.RegistryRef)
	str("ADMIN_CAP_ID", &cfg.Ledger.AdminCapID)
	str("ORGANIZATION", &cfg.Ledger.Organization)

	str("REDIS_URL", &cfg.Redis.URL)
	str("DATABASE_URL", &cfg.Postgres.URL)
	list("KAFKA_BROKERS", &cfg.Kafka.Brokers, false)
	str("AUDIT_TOPIC", &cfg.Kafka.Topic)

	str("RECONCILE_SCHEDULE", &cfg.Reconcile.Schedule)
	dur("RECONCILE_STALENESS", &cfg.Reconcile.Staleness)
	num("RECONCILE_CONCURRENCY", &cfg.Reconcile.Concurrency)
	list("SEED_DOMAINS", &cfg.SeedDomains, true)

	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	flag("OTEL_EXPORTER_OTLP_INSECURE", &cfg.Tracing.Insecure)

	return errors.Join(errs...)
}

// Validate rejects configurations the server must not start with. A missing
// OAuth client ID is allowed here; the handshake engine fails closed on it.
func (c Config) Validate() error {
	var errs []error
	if c.OAuth.Salt == "" {
		errs = append(errs, errors.New("ZKLOGIN_SALT is required"))
	}
	if len(c.Session.SigningKey) < 32 {
		errs = append(errs, errors.New("SESSION_SIGNING_KEY must be at least 32 bytes"))
	}
	if c.OAuth.HandshakeTTL <= 0 {
		errs = append(errs, errors.New("HANDSHAKE_TTL must be positive"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	switch c.Ledger.Mode {
	case LedgerModeMemory:
	case LedgerModeGateway:
		if c.Ledger.URL == "" {
			errs = append(errs, errors.New("LEDGER_URL is required in gateway mode"))
		}
		if c.Ledger.RegistryRef == "" || c.Ledger.AdminCapID == "" {
			errs = append(errs, errors.New("REGISTRY_REF and ADMIN_CAP_ID are required in gateway mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LEDGER_MODE %q", c.Ledger.Mode))
	}
	if c.Ledger.Timeout <= 0 {
		errs = append(errs, errors.New("LEDGER_TIMEOUT must be positive"))
	}
	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, errors.New("LEDGER_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Reconcile.Staleness <= 0 {
		errs = append(errs, errors.New("RECONCILE_STALENESS must be positive"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing sample_ratio must be within [0, 1]"))
	}
	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		errs = append(errs, errors.New("AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

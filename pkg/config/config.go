package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-datahub/pkg/adapters/backend"
	"github.com/ekaya-inc/ekaya-datahub/pkg/models"
)

// DefaultConfigPath is read when present; every field can also come from the environment.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-datahub.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Upstream UpstreamConfig `yaml:"upstream"`

	// Connections lists the backends to connect at startup.
	Connections []backend.ConnectionConfig `yaml:"connections"`
	// ConnectionsStr replaces Connections when set. JSON or YAML list.
	ConnectionsStr string `yaml:"-" env:"DATAHUB_CONNECTIONS"`

	// EncryptionKey is the 64-hex-char key for project credentials.
	// Generate with: openssl rand -hex 32
	// Without it credential features fail closed.
	EncryptionKey string `yaml:"-" env:"DATAHUB_ENCRYPTION_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an identity provider.
	EnableVerification bool   `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`
	JWKSURL            string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`
	Issuer             string `yaml:"issuer" env:"AUTH_ISSUER" env-default:""`
	Audience           string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:""`
	// JWTSecret verifies HS256 tokens when no JWKS URL is set.
	JWTSecret string `yaml:"-" env:"AUTH_JWT_SECRET"` // Secret - not in YAML
}

// StorageConfig configures the S3-compatible object store. Storage is
// disabled when Bucket is empty.
type StorageConfig struct {
	Region          string        `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Bucket          string        `yaml:"bucket" env:"S3_BUCKET" env-default:""`
	Endpoint        string        `yaml:"endpoint" env:"S3_ENDPOINT" env-default:""`
	AccessKeyID     string        `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey string        `yaml:"-" env:"S3_SECRET_ACCESS_KEY"` // Secret - not in YAML
	PresignExpiry   time.Duration `yaml:"presign_expiry" env:"S3_PRESIGN_EXPIRY" env-default:"1h"`
}

// Enabled reports whether an object store is configured.
func (s *StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

// RedisConfig configures the upstream response cache. Caching is disabled
// when Addr is empty.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR" env-default:""`
	Password  string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PoolSize  int    `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10"`
	EnableTLS bool   `yaml:"enable_tls" env:"REDIS_ENABLE_TLS" env-default:"false"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"datahub:"`
}

// Enabled reports whether a cache is configured.
func (r *RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// UpstreamConfig tunes live fetches for externalApi exports.
type UpstreamConfig struct {
	Timeout  time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT" env-default:"15s"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"UPSTREAM_CACHE_TTL" env-default:"30s"`
	Retries  int           `yaml:"retries" env:"UPSTREAM_RETRIES" env-default:"2"`
}

// Load reads configuration from config.yaml (when present) with environment
// variable overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validateConnections(); err != nil {
		return nil, fmt.Errorf("invalid connections: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	if c.ConnectionsStr == "" {
		return nil
	}
	var conns []backend.ConnectionConfig
	if err := yaml.Unmarshal([]byte(c.ConnectionsStr), &conns); err != nil {
		return fmt.Errorf("DATAHUB_CONNECTIONS: %w", err)
	}
	c.Connections = conns
	return nil
}

// validateConnections normalizes kind aliases and checks ids and the
// primary flag. At most one connection may be primary.
func (c *Config) validateConnections() error {
	seen := make(map[string]bool, len(c.Connections))
	primaries := 0
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.ID == "" {
			return fmt.Errorf("connection %d has no id", i)
		}
		if seen[conn.ID] {
			return fmt.Errorf("duplicate connection id %q", conn.ID)
		}
		seen[conn.ID] = true

		kind, ok := models.ParseBackendKind(string(conn.Kind))
		if !ok {
			return fmt.Errorf("connection %q: unknown kind %q", conn.ID, conn.Kind)
		}
		conn.Kind = kind

		if conn.IsPrimary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("%d connections are marked primary, at most one allowed", primaries)
	}
	return nil
}

// ConnectionConfigs returns the connection descriptors ready for the
// registry, with localhost rewritten when running inside Docker.
func (c *Config) ConnectionConfigs() []backend.ConnectionConfig {
	out := make([]backend.ConnectionConfig, len(c.Connections))
	for i, conn := range c.Connections {
		conn.ConnectionString = ResolveConnectionStringForDocker(conn.ConnectionString)
		out[i] = conn
	}
	return out
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

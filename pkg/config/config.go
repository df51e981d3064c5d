// Package config loads the query builder configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Query      QueryConfig      `yaml:"query"`
	Audit      AuditConfig      `yaml:"audit"`
	MCP        MCPConfig        `yaml:"mcp"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the metadata database holding connections,
// saved queries and audit records.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// AuthConfig configures caller authentication.
type AuthConfig struct {
	AllowAnonymous bool             `yaml:"allow_anonymous"`
	APIKeys        APIKeyAuthConfig `yaml:"api_keys"`
	JWT            JWTAuthConfig    `yaml:"jwt"`
}

// APIKeyAuthConfig lists static API keys.
type APIKeyAuthConfig struct {
	Keys []APIKeyDef `yaml:"keys"`
}

// APIKeyDef defines one API key. Exactly one of Key or KeyHash is set;
// KeyHash is a bcrypt hash.
type APIKeyDef struct {
	Key     string   `yaml:"key"`
	KeyHash string   `yaml:"key_hash"`
	Name    string   `yaml:"name"`
	Roles   []string `yaml:"roles"`
}

// JWTAuthConfig configures HMAC-signed bearer tokens.
type JWTAuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Issuer     string `yaml:"issuer"`
	SigningKey string `yaml:"signing_key"`
}

// EncryptionConfig holds the passphrase for stored connection passwords.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// QueryConfig bounds query execution.
type QueryConfig struct {
	DefaultMaxRows int           `yaml:"default_max_rows"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	SSLMode        string        `yaml:"ssl_mode"`
}

// AuditConfig configures execution auditing.
type AuditConfig struct {
	Enabled         *bool         `yaml:"enabled"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// IsEnabled reports whether auditing is on. Auditing defaults to on.
func (a AuditConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// MCPConfig configures the stdio MCP server.
type MCPConfig struct {
	Token string `yaml:"token"`
}

var (
	envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

	validSSLModes = map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
)

// Load reads a .env file next to the working directory if one exists,
// expands ${VAR} references in the YAML at path and applies defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse expands environment references in data, decodes it and applies
// defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "mcp-query-builder"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Query.DefaultMaxRows == 0 {
		cfg.Query.DefaultMaxRows = 1000
	}
	if cfg.Query.DefaultTimeout == 0 {
		cfg.Query.DefaultTimeout = 30 * time.Second
	}
	if cfg.Query.DialTimeout == 0 {
		cfg.Query.DialTimeout = 10 * time.Second
	}
	if cfg.Query.SSLMode == "" {
		cfg.Query.SSLMode = "require"
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = 24 * time.Hour
	}
}

// Validate reports every configuration problem in a single error.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.DSN != "" && c.Encryption.Key == "" {
		errs = append(errs, "encryption.key is required when database.dsn is set")
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, "database.max_open_conns must not be negative")
	}

	if c.Auth.JWT.Enabled {
		if c.Auth.JWT.Issuer == "" {
			errs = append(errs, "auth.jwt.issuer is required when JWT is enabled")
		}
		if c.Auth.JWT.SigningKey == "" {
			errs = append(errs, "auth.jwt.signing_key is required when JWT is enabled")
		}
	}
	for i, k := range c.Auth.APIKeys.Keys {
		if k.Name == "" {
			errs = append(errs, fmt.Sprintf("auth.api_keys.keys[%d].name is required", i))
		}
		if (k.Key == "") == (k.KeyHash == "") {
			errs = append(errs, fmt.Sprintf("auth.api_keys.keys[%d] needs exactly one of key or key_hash", i))
		}
	}

	if c.Query.DefaultMaxRows < 1 || c.Query.DefaultMaxRows > 1000 {
		errs = append(errs, "query.default_max_rows must be between 1 and 1000")
	}
	if c.Query.DefaultTimeout < time.Second || c.Query.DefaultTimeout > 30*time.Second {
		errs = append(errs, "query.default_timeout must be between 1s and 30s")
	}
	if !validSSLModes[c.Query.SSLMode] {
		errs = append(errs, fmt.Sprintf("query.ssl_mode %q is not supported", c.Query.SSLMode))
	}

	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

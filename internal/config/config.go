// ABOUTME: Configuration loading and parsing for prompt-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/prompt-gateway/internal/auth"
)

// EnvConfigPath names the environment variable that overrides the config location.
const EnvConfigPath = "PROMPT_GATEWAY_CONFIG"

// Defaults applied to unset fields.
const (
	DefaultHTTPAddr          = "0.0.0.0:8080"
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultIdempotencyWindow = 10 * time.Minute
	DefaultMaxBodyBytes      = 1 << 20
	DefaultMetricsPath       = "/metrics"
)

// Config represents the complete prompt-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	MCP       MCPConfig       `yaml:"mcp" toml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listener and API settings
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`

	IdempotencyWindow    time.Duration `yaml:"-" toml:"-"`
	IdempotencyWindowRaw string        `yaml:"idempotency_window" toml:"idempotency_window"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// StreamConfig holds push stream timing
type StreamConfig struct {
	HeartbeatInterval    time.Duration `yaml:"-" toml:"-"`
	HeartbeatIntervalRaw string        `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
}

// MCPConfig holds MCP endpoint limits
type MCPConfig struct {
	MaxBodyBytes int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// DefaultPath returns the config path from PROMPT_GATEWAY_CONFIG, falling back
// to $XDG_CONFIG_HOME/prompt-gateway/gateway.yaml (~/.config when unset).
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "prompt-gateway", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset optional fields.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.IdempotencyWindow == 0 {
		c.Server.IdempotencyWindow = DefaultIdempotencyWindow
	}
	if c.Stream.HeartbeatInterval == 0 {
		c.Stream.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MCP.MaxBodyBytes == 0 {
		c.MCP.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", auth.MinSecretLength)
	}

	if c.Stream.HeartbeatInterval < 0 {
		return fmt.Errorf("stream.heartbeat_interval must be positive")
	}
	if c.MCP.MaxBodyBytes < 0 {
		return fmt.Errorf("mcp.max_body_bytes must be positive")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is invalid (debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is invalid (text, json)", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Stream.HeartbeatIntervalRaw != "" {
		cfg.Stream.HeartbeatInterval, err = time.ParseDuration(cfg.Stream.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Stream.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Server.IdempotencyWindowRaw != "" {
		cfg.Server.IdempotencyWindow, err = time.ParseDuration(cfg.Server.IdempotencyWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing idempotency_window %q: %w", cfg.Server.IdempotencyWindowRaw, err)
		}
	}

	return nil
}

// Example is the annotated starter configuration written by `prompt-gateway init`.
const Example = `# prompt-gateway configuration

server:
  http_addr: "0.0.0.0:8080"
  idempotency_window: "10m"

tailscale:
  enabled: false
  hostname: "prompt-gateway"
  auth_key: "${TS_AUTHKEY}"
  ephemeral: false

database:
  path: "%s"

auth:
  jwt_secret: "%s"

stream:
  heartbeat_interval: "30s"

mcp:
  max_body_bytes: 1048576

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json

metrics:
  enabled: true
  path: "/metrics"
`

// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "127.0.0.1:9000"
  idempotency_window: "2m"
database:
  path: "./prompts.db"
auth:
  jwt_secret: "`+testSecret+`"
stream:
  heartbeat_interval: "15s"
mcp:
  max_body_bytes: 4096
logging:
  level: "debug"
  format: "json"
metrics:
  enabled: true
  path: "/internal/metrics"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.Server.IdempotencyWindow)
	assert.Equal(t, "./prompts.db", cfg.Database.Path)
	assert.Equal(t, 15*time.Second, cfg.Stream.HeartbeatInterval)
	assert.Equal(t, int64(4096), cfg.MCP.MaxBodyBytes)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/internal/metrics", cfg.Metrics.Path)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9001"

[database]
path = "./prompts.db"

[auth]
jwt_secret = "`+testSecret+`"

[stream]
heartbeat_interval = "45s"

[logging]
level = "warn"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9001", cfg.Server.HTTPAddr)
	assert.Equal(t, 45*time.Second, cfg.Stream.HeartbeatInterval)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "gateway.yaml", `
database:
  path: "./prompts.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, DefaultIdempotencyWindow, cfg.Server.IdempotencyWindow)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Stream.HeartbeatInterval)
	assert.Equal(t, int64(DefaultMaxBodyBytes), cfg.MCP.MaxBodyBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PG_SECRET", testSecret)
	t.Setenv("TEST_PG_DB", "/tmp/expanded.db")

	path := writeConfig(t, "gateway.yaml", `
database:
  path: "${TEST_PG_DB}"
auth:
  jwt_secret: "${TEST_PG_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/expanded.db", cfg.Database.Path)
	assert.Equal(t, testSecret, cfg.Auth.JWTSecret)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing database path",
			content: "auth:\n  jwt_secret: \"" + testSecret + "\"\n",
			wantErr: "database.path is required",
		},
		{
			name:    "missing secret",
			content: "database:\n  path: x.db\n",
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "short secret",
			content: "database:\n  path: x.db\nauth:\n  jwt_secret: short\n",
			wantErr: "at least 32 bytes",
		},
		{
			name:    "bad duration",
			content: "database:\n  path: x.db\nauth:\n  jwt_secret: \"" + testSecret + "\"\nstream:\n  heartbeat_interval: soon\n",
			wantErr: "heartbeat_interval",
		},
		{
			name:    "negative heartbeat",
			content: "database:\n  path: x.db\nauth:\n  jwt_secret: \"" + testSecret + "\"\nstream:\n  heartbeat_interval: -5s\n",
			wantErr: "must be positive",
		},
		{
			name:    "bad log format",
			content: "database:\n  path: x.db\nauth:\n  jwt_secret: \"" + testSecret + "\"\nlogging:\n  format: xml\n",
			wantErr: "logging.format",
		},
		{
			name:    "tailscale without hostname",
			content: "database:\n  path: x.db\nauth:\n  jwt_secret: \"" + testSecret + "\"\ntailscale:\n  enabled: true\n",
			wantErr: "tailscale.hostname",
		},
		{
			name:    "invalid yaml",
			content: "server: [unclosed",
			wantErr: "parsing config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "gateway.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/pg/custom.toml")
	assert.Equal(t, "/etc/pg/custom.toml", DefaultPath())

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, "/xdg/prompt-gateway/gateway.yaml", DefaultPath())
}

func TestExample_LoadsAfterFillingPlaceholders(t *testing.T) {
	content := fmt.Sprintf(Example, "./prompts.db", testSecret)
	cfg, err := Load(writeConfig(t, "gateway.yaml", content))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Stream.HeartbeatInterval)
}

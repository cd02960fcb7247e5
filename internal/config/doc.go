// Package config handles configuration loading for prompt-gateway.
//
// # Configuration File
//
// Location (in order):
//
//  1. Path from PROMPT_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/prompt-gateway/gateway.yaml (~/.config when unset)
//
// Files ending in .toml are parsed as TOML; anything else is YAML. Both use
// the same keys.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PROMPT_GATEWAY_JWT_SECRET}"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  idempotency_window: "10m"   # Idempotency-Key retention for POST /api/prompts
//
//	database:
//	  path: "/var/lib/prompt-gateway/prompts.db"
//
//	auth:
//	  jwt_secret: "${PROMPT_GATEWAY_JWT_SECRET}"  # at least 32 bytes
//
//	stream:
//	  heartbeat_interval: "30s"
//
//	mcp:
//	  max_body_bytes: 1048576
//
//	tailscale:
//	  enabled: false
//	  hostname: "prompt-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Durations use time.ParseDuration syntax. Unset optional fields get the
// Default* constants.
package config

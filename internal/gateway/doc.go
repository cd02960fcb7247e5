// Package gateway orchestrates the prompt-gateway server components.
//
// # Overview
//
// The Gateway owns the prompt store, the JWT authenticator, the push stream
// registry, the MCP server, the prompts service and the HTTP server that
// exposes them.
//
// # HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check with the open stream count
//   - GET /api/stream - Push stream (SSE) for the caller's tenant
//   - GET /api/stream/stats - Registry statistics
//   - POST /api/mcp - MCP JSON-RPC, answered over SSE
//   - GET, POST /api/prompts - List or create prompts
//   - GET, PUT, DELETE /api/prompts/{id} - Read, replace or delete a prompt
//   - GET /metrics - Prometheus metrics, when enabled
//
// Every /api route authenticates with a bearer JWT. A POST to /api/prompts may
// carry an Idempotency-Key header; repeating the key within the configured
// window answers 409 instead of creating a second prompt.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled, then shuts down
//
// Shutdown closes every push stream before waiting on in-flight requests, so
// long-lived streams never hold up process exit.
package gateway

// Package store provides tenant-scoped prompt persistence.
//
// PromptStore is the narrow data-access contract consumed by the MCP dispatcher
// and the prompts service. Every lookup takes the tenant as part of its key:
// GetPrompt(tenantID, id) never returns a row from another tenant, and no method
// fetches a prompt by id alone.
//
// SQLiteStore (modernc.org/sqlite, WAL mode) is the production implementation.
// Tags are stored as a JSON array in the tags_json column. MockStore is an
// in-memory implementation with per-method error injection for tests.
package store

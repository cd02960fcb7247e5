// ABOUTME: Static catalog of the tools exposed through tools/list
// ABOUTME: Input schemas are JSON Schema documents sent verbatim to clients

package mcp

import "encoding/json"

// Tool names.
const (
	ToolGetPromptByID = "getPromptById"
	ToolListPrompts   = "listPrompts"
)

// ToolsVersion versions the catalog below. Bump it when a tool or schema changes.
const ToolsVersion = "1.0.0"

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Version string        `json:"version"`
	Tools   []MCPToolInfo `json:"tools"`
}

var toolCatalog = MCPListToolsResult{
	Version: ToolsVersion,
	Tools: []MCPToolInfo{
		{
			Name:        ToolGetPromptByID,
			Description: "Get a prompt by its id. Returns null when the prompt does not exist in your workspace.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","description":"Prompt id"}},"required":["id"]}`),
		},
		{
			Name:        ToolListPrompts,
			Description: "List the prompts in your workspace with id, title, description and tags.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
	},
}

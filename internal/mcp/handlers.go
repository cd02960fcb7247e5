// ABOUTME: MCP method handlers: handshake, tool catalog, prompt listing and tool calls
// ABOUTME: Every data read is scoped to the caller's tenant

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/2389/prompt-gateway/internal/auth"
	"github.com/2389/prompt-gateway/internal/store"
)

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

func (s *Server) handleInitialize(context.Context, auth.Principal, JSONRPCRequest) iter.Seq2[any, error] {
	return one(initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools":   map[string]any{},
			"prompts": map[string]any{},
		},
		ServerInfo: serverInfo{Name: "prompt-gateway", Version: s.version},
	})
}

func (s *Server) handleInitialized(context.Context, auth.Principal, JSONRPCRequest) iter.Seq2[any, error] {
	return one(struct{}{})
}

func (s *Server) handleToolsList(context.Context, auth.Principal, JSONRPCRequest) iter.Seq2[any, error] {
	return one(toolCatalog)
}

// PromptContent is the prompts/list projection.
type PromptContent struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// PromptBrief is the listPrompts projection. It leaves out content to keep
// payloads small.
type PromptBrief struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// PromptDetail is the getPromptById result.
type PromptDetail struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
}

func (s *Server) handlePromptsList(ctx context.Context, p auth.Principal, _ JSONRPCRequest) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		prompts, err := s.store.ListPrompts(ctx, p.TenantID)
		if err != nil {
			yield(nil, fmt.Errorf("listing prompts: %w", err))
			return
		}

		items := make([]PromptContent, len(prompts))
		for i, pr := range prompts {
			items[i] = PromptContent{ID: pr.ID, Content: pr.Content}
		}
		yield(map[string]any{"prompts": items}, nil)
	}
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// textResult wraps v as the JSON text of a tool result. A nil v becomes "null".
func textResult(v any) (MCPCallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return MCPCallToolResult{}, fmt.Errorf("encoding tool result: %w", err)
	}
	return MCPCallToolResult{Content: []MCPContent{{Type: "text", Text: string(data)}}}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, p auth.Principal, req JSONRPCRequest) iter.Seq2[any, error] {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return fail(protocolError(JSONRPCInvalidParams, "invalid params"))
		}
	}

	switch params.Name {
	case "":
		return fail(protocolError(JSONRPCInvalidParams, "tool name is required"))
	case ToolGetPromptByID:
		return s.callGetPromptByID(ctx, p, params.Arguments)
	case ToolListPrompts:
		return s.callListPrompts(ctx, p)
	default:
		return fail(&ProtocolError{
			Code:    JSONRPCInvalidParams,
			Message: "tool not found",
			Data:    map[string]string{"name": params.Name},
		})
	}
}

type getPromptArgs struct {
	ID string `json:"id"`
}

// callGetPromptByID looks the prompt up by (tenant, id). A prompt that is
// absent from the caller's tenant, including one owned by another tenant, is
// reported as a null result rather than an error.
func (s *Server) callGetPromptByID(ctx context.Context, p auth.Principal, raw json.RawMessage) iter.Seq2[any, error] {
	var args getPromptArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return fail(protocolError(JSONRPCInvalidParams, "invalid arguments"))
		}
	}
	if args.ID == "" {
		return fail(protocolError(JSONRPCInvalidParams, "id is required"))
	}

	return func(yield func(any, error) bool) {
		var detail *PromptDetail

		pr, err := s.store.GetPrompt(ctx, p.TenantID, args.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			yield(nil, fmt.Errorf("getting prompt: %w", err))
			return
		default:
			detail = &PromptDetail{
				ID:          pr.ID,
				Title:       pr.Title,
				Description: pr.Description,
				Content:     pr.Content,
				Tags:        nonNil(pr.Tags),
			}
		}

		result, err := textResult(detail)
		yield(result, err)
	}
}

func (s *Server) callListPrompts(ctx context.Context, p auth.Principal) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		prompts, err := s.store.ListPrompts(ctx, p.TenantID)
		if err != nil {
			yield(nil, fmt.Errorf("listing prompts: %w", err))
			return
		}

		briefs := make([]PromptBrief, len(prompts))
		for i, pr := range prompts {
			briefs[i] = PromptBrief{
				ID:          pr.ID,
				Title:       pr.Title,
				Description: pr.Description,
				Tags:        nonNil(pr.Tags),
			}
		}

		result, err := textResult(briefs)
		yield(result, err)
	}
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

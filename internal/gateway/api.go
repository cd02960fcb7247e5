// ABOUTME: HTTP API handlers for prompt CRUD and push stream statistics
// ABOUTME: Mutations go through the prompts service, which broadcasts them to the tenant's streams

package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/prompt-gateway/internal/auth"
	"github.com/2389/prompt-gateway/internal/prompts"
	"github.com/2389/prompt-gateway/internal/store"
)

// maxPromptBodySize bounds POST and PUT bodies on /api/prompts.
const maxPromptBodySize = 1 << 20

// PromptResponse is the JSON representation of a prompt.
type PromptResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
	UserID      string   `json:"userId"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

// ListPromptsResponse is the JSON response for GET /api/prompts.
type ListPromptsResponse struct {
	Prompts []PromptResponse `json:"prompts"`
}

// DuplicateResponse is returned with 409 when an Idempotency-Key was already used.
type DuplicateResponse struct {
	Error string `json:"error"`
	ID    string `json:"id,omitempty"`
}

func toPromptResponse(p *store.Prompt) PromptResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PromptResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Tags:        tags,
		UserID:      p.UserID,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// handleStreamStats handles GET /api/stream/stats.
func (g *Gateway) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	g.writeJSON(w, http.StatusOK, g.registry.Stats())
}

// handlePrompts routes /api/prompts requests by HTTP method.
func (g *Gateway) handlePrompts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListPrompts(w, r)
	case http.MethodPost:
		g.handleCreatePrompt(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handlePrompt routes /api/prompts/{id} requests by HTTP method.
func (g *Gateway) handlePrompt(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleGetPrompt(w, r)
	case http.MethodPut:
		g.handleUpdatePrompt(w, r)
	case http.MethodDelete:
		g.handleDeletePrompt(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListPrompts handles GET /api/prompts.
func (g *Gateway) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustFromContext(r.Context())

	list, err := g.prompts.List(r.Context(), principal)
	if err != nil {
		g.logger.Error("failed to list prompts", "error", err, "tenant_id", principal.TenantID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListPromptsResponse{Prompts: make([]PromptResponse, len(list))}
	for i, p := range list {
		response.Prompts[i] = toPromptResponse(p)
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleCreatePrompt handles POST /api/prompts.
// With an Idempotency-Key header, a repeated key inside the window answers
// 409 and carries the id created by the first request once it is known.
func (g *Gateway) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustFromContext(r.Context())

	in, ok := g.decodeInput(w, r)
	if !ok {
		return
	}

	var dedupeKey string
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		dedupeKey = principal.TenantID + "\x00" + key
		if existingID, duplicate := g.dedupe.Claim(dedupeKey); duplicate {
			g.logger.Debug("duplicate create request", "tenant_id", principal.TenantID, "existing_id", existingID)
			g.writeJSON(w, http.StatusConflict, DuplicateResponse{Error: "duplicate request", ID: existingID})
			return
		}
	}

	prompt, err := g.prompts.Create(r.Context(), principal, in)
	if err != nil {
		if dedupeKey != "" {
			g.dedupe.Release(dedupeKey)
		}
		g.sendServiceError(w, err, "failed to create prompt")
		return
	}
	if dedupeKey != "" {
		g.dedupe.Set(dedupeKey, prompt.ID)
	}

	g.writeJSON(w, http.StatusCreated, toPromptResponse(prompt))
}

// handleGetPrompt handles GET /api/prompts/{id}.
// ?format=html renders the markdown content instead of returning JSON.
func (g *Gateway) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustFromContext(r.Context())

	prompt, err := g.prompts.Get(r.Context(), principal, r.PathValue("id"))
	if err != nil {
		g.sendServiceError(w, err, "failed to get prompt")
		return
	}

	if r.URL.Query().Get("format") == "html" {
		var htmlBuf bytes.Buffer
		if err := goldmark.Convert([]byte(prompt.Content), &htmlBuf); err != nil {
			g.logger.Error("failed to convert markdown", "error", err, "id", prompt.ID)
			g.sendJSONError(w, http.StatusInternalServerError, "failed to render prompt")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(htmlBuf.Bytes())
		return
	}

	g.writeJSON(w, http.StatusOK, toPromptResponse(prompt))
}

// handleUpdatePrompt handles PUT /api/prompts/{id}.
func (g *Gateway) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustFromContext(r.Context())

	in, ok := g.decodeInput(w, r)
	if !ok {
		return
	}

	prompt, err := g.prompts.Update(r.Context(), principal, r.PathValue("id"), in)
	if err != nil {
		g.sendServiceError(w, err, "failed to update prompt")
		return
	}
	g.writeJSON(w, http.StatusOK, toPromptResponse(prompt))
}

// handleDeletePrompt handles DELETE /api/prompts/{id}.
func (g *Gateway) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	principal := auth.MustFromContext(r.Context())

	if err := g.prompts.Delete(r.Context(), principal, r.PathValue("id")); err != nil {
		g.sendServiceError(w, err, "failed to delete prompt")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeInput parses a prompt body, writing a 400 on failure.
func (g *Gateway) decodeInput(w http.ResponseWriter, r *http.Request) (prompts.Input, bool) {
	var in prompts.Input
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPromptBodySize)).Decode(&in); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return in, false
	}
	return in, true
}

// sendServiceError maps prompts service errors to HTTP statuses.
func (g *Gateway) sendServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, prompts.ErrInvalid):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "prompt not found")
	default:
		g.logger.Error(logMsg, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}

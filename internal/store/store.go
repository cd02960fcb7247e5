// ABOUTME: Store interface and data types for prompt persistence
// ABOUTME: Every read and mutation is constrained by tenant scope

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist in the given scope
var ErrNotFound = errors.New("not found")

// ErrDuplicatePrompt is returned when creating a prompt whose ID already exists
var ErrDuplicatePrompt = errors.New("prompt already exists")

// Prompt is one stored prompt, owned by a user and scoped to a tenant.
type Prompt struct {
	ID          string
	TenantID    string
	UserID      string
	Title       string
	Description string
	Content     string
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PromptStore is the data-access contract for prompts.
// No method reads or mutates a row by id alone; the tenant is always part of the key.
type PromptStore interface {
	CreatePrompt(ctx context.Context, p *Prompt) error

	// GetPrompt returns ErrNotFound when the id does not exist within tenantID,
	// including when it exists under another tenant.
	GetPrompt(ctx context.Context, tenantID, id string) (*Prompt, error)

	// ListPrompts returns the tenant's prompts, most recently updated first.
	ListPrompts(ctx context.Context, tenantID string) ([]*Prompt, error)

	// UpdatePrompt rewrites title, description, content, tags and updated_at
	// of the row matching p.TenantID and p.ID.
	UpdatePrompt(ctx context.Context, p *Prompt) error

	DeletePrompt(ctx context.Context, tenantID, id string) error

	Close() error
}

// ABOUTME: Prompt write path: validated, tenant-scoped CRUD over the prompt store
// ABOUTME: Publishes prompt.created/updated/deleted to the tenant after each successful mutation

package prompts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/prompt-gateway/internal/auth"
	"github.com/2389/prompt-gateway/internal/realtime"
	"github.com/2389/prompt-gateway/internal/store"
)

// MaxTitleLength is the longest accepted title, in characters.
const MaxTitleLength = 200

// Event types published after mutations.
const (
	EventPromptCreated = "prompt.created"
	EventPromptUpdated = "prompt.updated"
	EventPromptDeleted = "prompt.deleted"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid prompt")

// Notifier is the broadcast half of the connection registry.
type Notifier interface {
	BroadcastToTenant(tenantID string, ev realtime.Event)
}

// Input carries the user-editable fields of a prompt.
type Input struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
}

// EventData is the payload of prompt.* events.
type EventData struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
}

// Service applies prompt mutations and announces them.
type Service struct {
	store    store.PromptStore
	notifier Notifier
	logger   *slog.Logger

	// publishing tracks in-flight broadcasts so shutdown can wait for them
	publishing sync.WaitGroup
}

// New creates a prompt service. notifier may be nil, in which case nothing is published.
func New(st store.PromptStore, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		logger:   logger.With("component", "prompts"),
	}
}

// Create validates in and stores a new prompt owned by the principal.
func (s *Service) Create(ctx context.Context, p auth.Principal, in Input) (*store.Prompt, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	prompt := &store.Prompt{
		ID:          uuid.New().String(),
		TenantID:    p.TenantID,
		UserID:      p.UserID,
		Title:       in.Title,
		Description: in.Description,
		Content:     in.Content,
		Tags:        in.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreatePrompt(ctx, prompt); err != nil {
		return nil, fmt.Errorf("creating prompt: %w", err)
	}

	s.logger.Info("prompt created", "id", prompt.ID, "tenant_id", p.TenantID, "user_id", p.UserID)
	s.publish(p, EventPromptCreated, prompt.ID, prompt.Title)
	return prompt, nil
}

// Get returns one prompt from the principal's tenant.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*store.Prompt, error) {
	return s.store.GetPrompt(ctx, p.TenantID, id)
}

// List returns every prompt in the principal's tenant.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]*store.Prompt, error) {
	return s.store.ListPrompts(ctx, p.TenantID)
}

// Update replaces the editable fields of a prompt in the principal's tenant.
func (s *Service) Update(ctx context.Context, p auth.Principal, id string, in Input) (*store.Prompt, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	prompt, err := s.store.GetPrompt(ctx, p.TenantID, id)
	if err != nil {
		return nil, err
	}

	prompt.Title = in.Title
	prompt.Description = in.Description
	prompt.Content = in.Content
	prompt.Tags = in.Tags
	prompt.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	if err := s.store.UpdatePrompt(ctx, prompt); err != nil {
		return nil, fmt.Errorf("updating prompt: %w", err)
	}

	s.logger.Info("prompt updated", "id", id, "tenant_id", p.TenantID, "user_id", p.UserID)
	s.publish(p, EventPromptUpdated, prompt.ID, prompt.Title)
	return prompt, nil
}

// Delete removes a prompt from the principal's tenant.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id string) error {
	if err := s.store.DeletePrompt(ctx, p.TenantID, id); err != nil {
		return err
	}

	s.logger.Info("prompt deleted", "id", id, "tenant_id", p.TenantID, "user_id", p.UserID)
	s.publish(p, EventPromptDeleted, id, "")
	return nil
}

// Wait blocks until every broadcast started so far has returned.
func (s *Service) Wait() {
	s.publishing.Wait()
}

// publish announces a mutation on its own goroutine. The mutation has already
// succeeded; nothing here can change its result.
func (s *Service) publish(p auth.Principal, eventType, id, title string) {
	if s.notifier == nil {
		return
	}

	ev := realtime.Event{
		Type: eventType,
		Data: EventData{
			ID:       id,
			Title:    title,
			UserID:   p.UserID,
			TenantID: p.TenantID,
		},
		Timestamp: time.Now().UTC(),
	}

	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("prompt broadcast panicked", "type", eventType, "panic", r)
			}
		}()
		s.notifier.BroadcastToTenant(p.TenantID, ev)
	}()
}

// normalize trims fields, de-duplicates tags and enforces the required fields.
func normalize(in Input) (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)

	if in.Title == "" {
		return in, fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if utf8.RuneCountInString(in.Title) > MaxTitleLength {
		return in, fmt.Errorf("%w: title exceeds %d characters", ErrInvalid, MaxTitleLength)
	}
	if strings.TrimSpace(in.Content) == "" {
		return in, fmt.Errorf("%w: content is required", ErrInvalid)
	}

	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]struct{}, len(in.Tags))
	for _, tag := range in.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	in.Tags = tags

	return in, nil
}

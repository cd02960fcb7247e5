// ABOUTME: Mock PromptStore implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject data-access failures

package store

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MockStore is an in-memory PromptStore implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	prompts map[string]*Prompt // keyed by "tenantID:id"
	errs    map[string]error   // keyed by method name
	calls   map[string]int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		prompts: make(map[string]*Prompt),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// FailWith makes every later call to method (e.g. "GetPrompt") return err.
// A nil err clears the injected failure.
func (m *MockStore) FailWith(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, method)
		return
	}
	m.errs[method] = err
}

// Calls reports how many times method has been invoked.
func (m *MockStore) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// begin records the call and returns any injected error. Caller holds m.mu.
func (m *MockStore) begin(method string) error {
	m.calls[method]++
	return m.errs[method]
}

func promptKey(tenantID, id string) string {
	return tenantID + ":" + id
}

func clonePrompt(p *Prompt) *Prompt {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	return &c
}

// CreatePrompt stores a new prompt.
func (m *MockStore) CreatePrompt(ctx context.Context, p *Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("CreatePrompt"); err != nil {
		return err
	}

	for _, existing := range m.prompts {
		if existing.ID == p.ID {
			return ErrDuplicatePrompt
		}
	}

	m.prompts[promptKey(p.TenantID, p.ID)] = clonePrompt(p)
	return nil
}

// GetPrompt retrieves a prompt by tenant and ID.
func (m *MockStore) GetPrompt(ctx context.Context, tenantID, id string) (*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("GetPrompt"); err != nil {
		return nil, err
	}

	p, ok := m.prompts[promptKey(tenantID, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePrompt(p), nil
}

// ListPrompts returns the tenant's prompts, most recently updated first.
func (m *MockStore) ListPrompts(ctx context.Context, tenantID string) ([]*Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("ListPrompts"); err != nil {
		return nil, err
	}

	result := []*Prompt{}
	for _, p := range m.prompts {
		if p.TenantID == tenantID {
			result = append(result, clonePrompt(p))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdatePrompt rewrites the mutable fields of an existing prompt.
func (m *MockStore) UpdatePrompt(ctx context.Context, p *Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("UpdatePrompt"); err != nil {
		return err
	}

	existing, ok := m.prompts[promptKey(p.TenantID, p.ID)]
	if !ok {
		return ErrNotFound
	}

	existing.Title = p.Title
	existing.Description = p.Description
	existing.Content = p.Content
	existing.Tags = slices.Clone(p.Tags)
	existing.UpdatedAt = p.UpdatedAt
	return nil
}

// DeletePrompt removes a prompt.
func (m *MockStore) DeletePrompt(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("DeletePrompt"); err != nil {
		return err
	}

	key := promptKey(tenantID, id)
	if _, ok := m.prompts[key]; !ok {
		return ErrNotFound
	}
	delete(m.prompts, key)
	return nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements PromptStore
var _ PromptStore = (*MockStore)(nil)

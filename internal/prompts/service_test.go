// ABOUTME: Tests for the prompt service: validation, tenant scoping and event publication
// ABOUTME: Uses the mock store and a recording notifier, plus one run against the real registry

package prompts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/prompt-gateway/internal/auth"
	"github.com/2389/prompt-gateway/internal/realtime"
	"github.com/2389/prompt-gateway/internal/store"
	"github.com/2389/prompt-gateway/internal/stream"
)

type published struct {
	tenantID string
	event    realtime.Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) BroadcastToTenant(tenantID string, ev realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{tenantID: tenantID, event: ev})
}

func (n *recordingNotifier) all() []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]published(nil), n.events...)
}

type panickingNotifier struct{}

func (panickingNotifier) BroadcastToTenant(string, realtime.Event) { panic("registry gone") }

var (
	alice = auth.Principal{UserID: "alice", TenantID: "team-1"}
	bob   = auth.Principal{UserID: "bob", TenantID: "team-2"}
)

func newTestService(t *testing.T) (*Service, *store.MockStore, *recordingNotifier) {
	t.Helper()
	ms := store.NewMockStore()
	n := &recordingNotifier{}
	return New(ms, n, nil), ms, n
}

func validInput() Input {
	return Input{
		Title:       "  Summarize  ",
		Description: "Summaries",
		Content:     "Summarize the following text.",
		Tags:        []string{"writing", " writing ", "", "ai"},
	}
}

func TestCreate(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, alice, validInput())
	require.NoError(t, err)
	svc.Wait()

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "team-1", p.TenantID)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, "Summarize", p.Title)
	assert.Equal(t, []string{"writing", "ai"}, p.Tags)

	got, err := svc.Get(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Content, got.Content)

	events := n.all()
	require.Len(t, events, 1)
	assert.Equal(t, "team-1", events[0].tenantID)
	assert.Equal(t, EventPromptCreated, events[0].event.Type)
	assert.Equal(t, p.ID, events[0].event.Data.(EventData).ID)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing title", func(in *Input) { in.Title = "   " }},
		{"title too long", func(in *Input) { in.Title = strings.Repeat("a", MaxTitleLength+1) }},
		{"missing content", func(in *Input) { in.Content = "\n" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ms, n := newTestService(t)
			in := validInput()
			tt.mutate(&in)

			_, err := svc.Create(context.Background(), alice, in)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Zero(t, ms.Calls("CreatePrompt"))
			svc.Wait()
			assert.Empty(t, n.all())
		})
	}
}

func TestCreate_TitleLimitCountsCharacters(t *testing.T) {
	svc, _, _ := newTestService(t)
	in := validInput()
	in.Title = strings.Repeat("é", MaxTitleLength)

	_, err := svc.Create(context.Background(), alice, in)
	assert.NoError(t, err)
}

func TestCreate_StoreFailureDoesNotPublish(t *testing.T) {
	svc, ms, n := newTestService(t)
	ms.FailWith("CreatePrompt", errors.New("disk full"))

	_, err := svc.Create(context.Background(), alice, validInput())
	assert.Error(t, err)
	svc.Wait()
	assert.Empty(t, n.all())
}

func TestTenantScoping(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, alice, validInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, bob, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Update(ctx, bob, p.ID, validInput())
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, bob, p.ID), store.ErrNotFound)

	list, err := svc.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateAndDelete(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, alice, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Title = "Renamed"
	updated, err := svc.Update(ctx, alice, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)

	require.NoError(t, svc.Delete(ctx, alice, p.ID))
	svc.Wait()

	var types []string
	for _, ev := range n.all() {
		types = append(types, ev.event.Type)
	}
	assert.ElementsMatch(t, []string{EventPromptCreated, EventPromptUpdated, EventPromptDeleted}, types)
}

func TestPublishPanicDoesNotAffectWrite(t *testing.T) {
	ms := store.NewMockStore()
	svc := New(ms, panickingNotifier{}, nil)

	p, err := svc.Create(context.Background(), alice, validInput())
	require.NoError(t, err)
	svc.Wait()

	_, err = ms.GetPrompt(context.Background(), alice.TenantID, p.ID)
	assert.NoError(t, err)
}

func TestNilNotifier(t *testing.T) {
	svc := New(store.NewMockStore(), nil, nil)
	_, err := svc.Create(context.Background(), alice, validInput())
	assert.NoError(t, err)
}

func TestBroadcastReachesTenantConnections(t *testing.T) {
	reg := realtime.NewRegistry(realtime.Config{HeartbeatInterval: time.Hour})
	defer reg.Shutdown()

	teamOne := stream.NewRecorder()
	teamTwo := stream.NewRecorder()
	reg.Register(realtime.NewConnection("carol", "team-1", teamOne))
	reg.Register(realtime.NewConnection("dave", "team-2", teamTwo))

	svc := New(store.NewMockStore(), reg, nil)
	_, err := svc.Create(context.Background(), alice, validInput())
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, 1, teamOne.Count(EventPromptCreated))
	assert.Empty(t, teamTwo.Frames())
}

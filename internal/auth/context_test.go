// ABOUTME: Unit tests for principal context helpers
// ABOUTME: Tests WithPrincipal, FromContext and MustFromContext propagation

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Present(t *testing.T) {
	expected := Principal{UserID: "u1", TenantID: "S1"}

	got, ok := FromContext(WithPrincipal(context.Background(), expected))

	assert.True(t, ok)
	assert.Equal(t, expected, got)
}

func TestFromContext_Missing(t *testing.T) {
	got, ok := FromContext(context.Background())

	assert.False(t, ok)
	assert.Equal(t, Principal{}, got)
}

func TestMustFromContext_Present(t *testing.T) {
	expected := Principal{UserID: "u1", TenantID: "S1"}
	ctx := WithPrincipal(context.Background(), expected)

	assert.NotPanics(t, func() {
		assert.Equal(t, expected, MustFromContext(ctx))
	})
}

func TestMustFromContext_Missing(t *testing.T) {
	assert.Panics(t, func() {
		MustFromContext(context.Background())
	})
}

func TestWithPrincipal_Overrides(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{UserID: "u1", TenantID: "S1"})
	ctx = WithPrincipal(ctx, Principal{UserID: "u2", TenantID: "S2"})

	got := MustFromContext(ctx)
	assert.Equal(t, "S2", got.TenantID)
}

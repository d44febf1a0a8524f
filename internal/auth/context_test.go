package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	principal := Principal{
		User:        &User{ID: "u-1", Email: "ops@example.com"},
		Permissions: map[string]struct{}{"blast.send": {}},
	}
	ctx := ContextWithPrincipal(context.Background(), principal)

	got, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u-1", got.User.ID)
	require.True(t, got.HasPermission("blast.send"))
}

func TestActorID(t *testing.T) {
	require.Empty(t, ActorID(context.Background()))

	ctx := ContextWithPrincipal(context.Background(), Principal{})
	require.Empty(t, ActorID(ctx))

	ctx = ContextWithPrincipal(context.Background(), Principal{User: &User{ID: "u-42"}})
	require.Equal(t, "u-42", ActorID(ctx))
}

func TestTokenContextRoundTrip(t *testing.T) {
	_, ok := TokenFromContext(context.Background())
	require.False(t, ok)

	ctx := ContextWithToken(context.Background(), "raw-token")
	tok, ok := TokenFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "raw-token", tok)
}

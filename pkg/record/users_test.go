package record

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReconcileUser verifies the stored role set always equals the incoming
// roles, regardless of prior state.
func TestReconcileUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		roles [][]string
		want  []string
	}{
		{"first contact", [][]string{{"viewer"}}, []string{"viewer"}},
		{"roles added", [][]string{{"viewer"}, {"viewer", "editor"}}, []string{"editor", "viewer"}},
		{"roles replaced", [][]string{{"viewer", "editor"}, {"admin"}}, []string{"admin"}},
		{"roles cleared", [][]string{{"viewer"}, {}}, nil},
		{"idempotent", [][]string{{"viewer"}, {"viewer"}}, []string{"viewer"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			externalID := "user-" + tt.name
			for _, roles := range tt.roles {
				_, err := store.ReconcileUser(ctx, externalID, roles)
				require.NoError(t, err)
			}

			user, err := store.GetUserByExternalID(ctx, externalID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, user.Roles)
		})
	}
}

func TestReconcileUserStableID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.ReconcileUser(ctx, "u1", []string{"viewer"})
	require.NoError(t, err)

	second, err := store.ReconcileUser(ctx, "u1", []string{"editor"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.UpdatedAt.After(first.CreatedAt) || second.UpdatedAt.Equal(first.CreatedAt))
}

func TestReconcileUserEmptyID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReconcileUser(context.Background(), "", []string{"viewer"})
	assert.Error(t, err)
}

func TestReconcileSharedRoles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ReconcileUser(ctx, "u1", []string{"viewer"})
	require.NoError(t, err)
	_, err = store.ReconcileUser(ctx, "u2", []string{"viewer", "editor"})
	require.NoError(t, err)

	// Dropping u2's viewer role must not affect u1.
	_, err = store.ReconcileUser(ctx, "u2", []string{"editor"})
	require.NoError(t, err)

	u1, err := store.GetUserByExternalID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"viewer"}, u1.Roles)
}

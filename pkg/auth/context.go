package auth

import (
	"context"

	"github.com/twinforge/twinforge/pkg/types"
)

type contextKey int

const userKey contextKey = iota

// ContextWithUser attaches the reconciled user to a request context.
func ContextWithUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFrom returns the reconciled user attached to the context, or nil for
// unauthenticated requests.
func UserFrom(ctx context.Context) *types.User {
	user, _ := ctx.Value(userKey).(*types.User)
	return user
}

package auth

import (
	"context"

	"github.com/jw6ventures/sellerpulse/internal/store"
)

type contextKey string

const (
	contextKeyUser       contextKey = "user"
	contextKeyAPITokenID contextKey = "api_token_id"
)

func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(contextKeyUser).(*store.User)
	return u, ok
}

// WithAPITokenID marks a request as authenticated by a bearer token rather
// than a browser session.
func WithAPITokenID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, contextKeyAPITokenID, id)
}

func APITokenIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(contextKeyAPITokenID).(int64)
	return id, ok
}

package http

import (
	"context"

	"github.com/example/library-portal/internal/session"
)

type contextKey string

const storeContextKey contextKey = "session_store"

type storeBinding struct {
	store *session.Store
	token string
}

// ContextWithStore attaches the request's session store and portal token.
func ContextWithStore(ctx context.Context, store *session.Store, portalToken string) context.Context {
	return context.WithValue(ctx, storeContextKey, storeBinding{store: store, token: portalToken})
}

// StoreFromContext extracts the session store bound to the request, if any.
func StoreFromContext(ctx context.Context) (*session.Store, string, bool) {
	binding, ok := ctx.Value(storeContextKey).(storeBinding)
	if !ok {
		return nil, "", false
	}
	return binding.store, binding.token, true
}

package http

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/example/library-portal/internal/logging"
)

// RequestLogger tags every request with a sequential id and logs start and
// completion through the context logger.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := logging.ContextWithLogger(r.Context(), logger)
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(w, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "duration", time.Since(start))
		})
	}
}

// WithStore resolves the portal cookie to a session store and binds it to
// the request context. Requests without a resolvable store pass through
// unbound; RequireIdentity decides whether that matters.
func (s *Server) WithStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := portalTokenFromRequest(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		store, ok := s.registry.Get(r.Context(), token)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithStore(r.Context(), store, token)))
	})
}

// RequireIdentity rejects requests whose store is missing or signed out.
func (s *Server) RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, _, ok := StoreFromContext(r.Context())
		if !ok {
			s.responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
				ErrorCode: "AUTH_REQUIRED",
				Message:   errNotSignedIn.Error(),
			})
			return
		}
		if _, err := store.EnsureValidSession(r.Context()); err != nil {
			s.responder.handlePlatformError(r.Context(), w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin gates the admin surface on the resolved profile's role. A
// store whose profile has not resolved yet, or resolved without the admin
// role, is turned away.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, _, ok := StoreFromContext(r.Context())
		if !ok || !store.IsAdmin() {
			s.responder.writeJSON(r.Context(), w, http.StatusForbidden, errorResponse{
				ErrorCode: "AUTH_FORBIDDEN",
				Message:   "administrator access required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

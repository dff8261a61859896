// Package http exposes the portal's JSON surface: public catalog and form
// endpoints, the authenticated member area, and the admin views with their
// live streams.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/example/library-portal/internal/catalog"
	"github.com/example/library-portal/internal/metrics"
	"github.com/example/library-portal/internal/mirror"
	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/session"
)

// PlatformAPI is everything the handlers ask of the platform client.
type PlatformAPI interface {
	mirror.Platform
	Insert(ctx context.Context, accessToken, relation string, row, dest any) error
}

// Server wires the handlers to their dependencies.
type Server struct {
	registry  *session.Registry
	platform  PlatformAPI
	catalog   *catalog.Catalog
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

// ServerConfig collects the Server dependencies.
type ServerConfig struct {
	Registry *session.Registry
	Platform PlatformAPI
	Catalog  *catalog.Catalog
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewServer constructs the portal server.
func NewServer(cfg ServerConfig) *Server {
	logger := defaultLogger(cfg.Logger)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		registry:  cfg.Registry,
		platform:  cfg.Platform,
		catalog:   cfg.Catalog,
		responder: newResponder(logger),
		logger:    logger,
		now:       now,
	}
}

// Router assembles the full route tree with its middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(metrics.Middleware())
	r.Use(s.WithStore)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", s.handleLogin)
		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/logout", s.handleLogout)
		api.Get("/auth/me", s.handleMe)

		api.Get("/books", s.handleBooks)
		api.Get("/notes", s.handleNotes)
		api.Post("/contact", s.handleContact)
		api.Post("/donations", s.handleDonation)
		api.Post("/library-cards", s.handleCardApplication)

		api.Group(func(member chi.Router) {
			member.Use(s.RequireIdentity)
			member.Get("/me/borrows", s.handleMyBorrows)
			member.Post("/borrows", s.handleBorrowBook)

			member.Route("/admin", func(admin chi.Router) {
				admin.Use(s.RequireAdmin)

				admin.Get("/messages", s.handleAdminMessages)
				admin.Patch("/messages/{id}/seen", s.handleToggleMessageSeen)
				admin.Delete("/messages/{id}", s.handleDeleteMessage)

				admin.Get("/borrows", s.handleAdminBorrows)
				admin.Post("/borrows/{id}/return", s.handleMarkBorrowReturned)
				admin.Delete("/borrows/{id}", s.handleDeleteBorrow)

				admin.Get("/cards", s.handleAdminCards)
				admin.Patch("/cards/{id}/status", s.handleUpdateCardStatus)
				admin.Delete("/cards/{id}", s.handleDeleteCard)

				admin.Get("/donations", s.handleAdminDonations)
				admin.Delete("/donations/{id}", s.handleDeleteDonation)

				admin.Get("/members/students", s.handleAdminStudents)
				admin.Delete("/members/students/{id}", s.handleDeleteStudent)
				admin.Get("/members/non-students", s.handleAdminNonStudents)
				admin.Delete("/members/non-students/{id}", s.handleDeleteNonStudent)

				admin.Get("/stream/{relation}", s.handleAdminStream)
			})
		})
	})

	return r
}

var _ PlatformAPI = (*platform.Client)(nil)

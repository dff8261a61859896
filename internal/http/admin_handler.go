package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/library-portal/internal/mirror"
	"github.com/example/library-portal/internal/session"
)

// viewsFor binds the admin views to the request's session. Tokens rotate
// underneath long requests; the views pull a valid one per platform call.
func (s *Server) viewsFor(store *session.Store) *mirror.Views {
	return mirror.NewViews(s.platform, func(ctx context.Context) (string, error) {
		sess, err := store.EnsureValidSession(ctx)
		if err != nil {
			return "", err
		}
		return sess.AccessToken, nil
	}, s.logger, s.now)
}

// writeSnapshot serves a one-shot load of a mirror for the plain list
// endpoints. The live variant sits behind the stream handler.
func writeSnapshot[T any](s *Server, w http.ResponseWriter, r *http.Request, m *mirror.Mirror[T]) {
	if err := m.Load(r.Context()); err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}
	s.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"rows": m.Rows()})
}

func (s *Server) handleAdminMessages(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	writeSnapshot(s, w, r, s.viewsFor(store).Messages())
}

func (s *Server) handleAdminBorrows(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	writeSnapshot(s, w, r, s.viewsFor(store).Borrows())
}

func (s *Server) handleAdminCards(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	writeSnapshot(s, w, r, s.viewsFor(store).Cards())
}

func (s *Server) handleAdminDonations(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	writeSnapshot(s, w, r, s.viewsFor(store).Donations())
}

func (s *Server) handleAdminStudents(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	writeSnapshot(s, w, r, s.viewsFor(store).Students())
}

func (s *Server) handleAdminNonStudents(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	writeSnapshot(s, w, r, s.viewsFor(store).NonStudents())
}

// runAction executes one admin row action. The response carries no row data:
// the change notification drives the mirrors that display it.
func (s *Server) runAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, v *mirror.Views, id string) error) {
	id := chi.URLParam(r, "id")
	store, _, _ := StoreFromContext(r.Context())
	if err := action(r.Context(), s.viewsFor(store), id); err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}
	s.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type seenRequest struct {
	Seen bool `json:"seen"`
}

func (s *Server) handleToggleMessageSeen(w http.ResponseWriter, r *http.Request) {
	var req seenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.ToggleMessageSeen(ctx, id, req.Seen)
	})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.DeleteMessage(ctx, id)
	})
}

func (s *Server) handleMarkBorrowReturned(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.MarkBorrowReturned(ctx, id)
	})
}

func (s *Server) handleDeleteBorrow(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.DeleteBorrow(ctx, id)
	})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateCardStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.UpdateCardStatus(ctx, id, req.Status)
	})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.DeleteCard(ctx, id)
	})
}

func (s *Server) handleDeleteDonation(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.DeleteDonation(ctx, id)
	})
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.DeleteStudent(ctx, id)
	})
}

func (s *Server) handleDeleteNonStudent(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, v *mirror.Views, id string) error {
		return v.DeleteNonStudent(ctx, id)
	})
}

package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/library-portal/internal/mirror"
	"github.com/example/library-portal/internal/records"
)

// handleAdminStream keeps one mirror mounted for the lifetime of the
// connection and pushes a full snapshot on every change. Each open stream is
// its own subscription; closing the tab tears it down.
func (s *Server) handleAdminStream(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	views := s.viewsFor(store)

	var run func() error
	switch chi.URLParam(r, "relation") {
	case records.RelationContactMessages:
		run = streamRunner(w, r, views.Messages())
	case records.RelationBookBorrows:
		run = streamRunner(w, r, views.Borrows())
	case records.RelationCardApplications:
		run = streamRunner(w, r, views.Cards())
	case records.RelationDonations:
		run = streamRunner(w, r, views.Donations())
	case records.RelationStudents:
		run = streamRunner(w, r, views.Students())
	case records.RelationNonStudents:
		run = streamRunner(w, r, views.NonStudents())
	default:
		s.responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: "unknown stream"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.responder.writeError(r.Context(), w, http.StatusInternalServerError,
			fmt.Errorf("response writer does not support streaming"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 2000\n\n")
	flusher.Flush()

	if err := run(); err != nil && r.Context().Err() == nil {
		handlerLogger(r.Context(), s.logger, "stream", "run").ErrorContext(r.Context(),
			"admin stream ended with error", "error", err)
	}
}

func streamRunner[T any](w http.ResponseWriter, r *http.Request, m *mirror.Mirror[T]) func() error {
	flusher, _ := w.(http.Flusher)
	return func() error {
		return m.Run(r.Context(), func(rows []T) {
			payload, err := json.Marshal(map[string]any{"rows": rows})
			if err != nil {
				return
			}
			fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
			if flusher != nil {
				flusher.Flush()
			}
		})
	}
}

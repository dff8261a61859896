package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/library-portal/internal/logging"
	"github.com/example/library-portal/internal/mirror"
	"github.com/example/library-portal/internal/platform"
)

var (
	errBadRequestBody = errors.New("the request body could not be read")
	errNotSignedIn    = errors.New("sign in to continue")
)

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := err.Error(); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}
	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handlePlatformError maps upstream failures onto portal responses. The
// user-facing message never carries provider detail; the full error goes to
// the log.
func (r responder) handlePlatformError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	r.loggerFor(ctx).ErrorContext(ctx, "platform operation failed",
		"error", err, "error_kind", platform.ErrorKind(err))

	switch {
	case errors.Is(err, platform.ErrSessionExpired):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_SESSION_EXPIRED",
			Message:   platform.UserMessage(err),
		})
	case errors.Is(err, platform.ErrInvalidCredentials):
		r.writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_INVALID_CREDENTIALS",
			Message:   platform.UserMessage(err),
		})
	case errors.Is(err, platform.ErrPermissionDenied):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: "AUTH_FORBIDDEN",
			Message:   platform.UserMessage(err),
		})
	case errors.Is(err, platform.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Message: platform.UserMessage(err)})
	case errors.Is(err, mirror.ErrUnknownStatus):
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{Message: err.Error()})
	case errors.Is(err, platform.ErrUnavailable):
		r.writeJSON(ctx, w, http.StatusBadGateway, errorResponse{Message: platform.UserMessage(err)})
	default:
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{
			Message: "something went wrong, please try again",
		})
	}
}

type fieldErrors map[string]string

func (r responder) writeValidation(ctx context.Context, w http.ResponseWriter, fe fieldErrors) {
	r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
		Message: "please correct the highlighted fields",
		Errors:  fe,
	})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

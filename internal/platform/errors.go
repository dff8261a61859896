package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects a password sign-in.
	ErrInvalidCredentials = errors.New("platform: invalid credentials")
	// ErrEmailTaken is returned when sign-up collides with an existing account.
	ErrEmailTaken = errors.New("platform: email already registered")
	// ErrPermissionDenied is returned when row-level access control rejects an operation.
	ErrPermissionDenied = errors.New("platform: permission denied")
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("platform: not found")
	// ErrSessionExpired is returned when the presented token is no longer accepted.
	ErrSessionExpired = errors.New("platform: session expired")
	// ErrUnavailable is returned for transport failures and provider outages.
	ErrUnavailable = errors.New("platform: service unavailable")
)

// APIError is the structured error payload the provider returns alongside a
// non-2xx status. Message is human readable; Code is a stable machine label.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("platform: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("platform: %s (status %d)", e.Message, e.StatusCode)
}

// Unwrap maps provider error codes and statuses onto the package sentinels so
// callers can branch with errors.Is without inspecting payloads.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_credentials", "invalid_grant":
		return ErrInvalidCredentials
	case "email_exists", "user_already_exists":
		return ErrEmailTaken
	case "session_expired", "refresh_token_expired":
		return ErrSessionExpired
	}
	switch e.StatusCode {
	case 401:
		return ErrSessionExpired
	case 403:
		return ErrPermissionDenied
	case 404, 406:
		return ErrNotFound
	case 502, 503, 504:
		return ErrUnavailable
	}
	return nil
}

// UserMessage reduces any platform error to a short, non-technical sentence
// suitable for direct display. Technical detail stays in logs.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrEmailTaken):
		return "An account with this email already exists"
	case errors.Is(err, ErrPermissionDenied):
		return "You are not allowed to perform this action"
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please sign in again"
	default:
		return "Something went wrong. Please try again"
	}
}

// ErrorKind maps platform errors to a stable logging label.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailTaken):
		return "email_taken"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return "unexpected"
}

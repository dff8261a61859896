package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/example/library-portal/internal/profile"
)

const portalCookieName = "portal_token"

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type meResponse struct {
	IdentityID string           `json:"identity_id"`
	Email      string           `json:"email"`
	Profile    *profile.Profile `json:"profile,omitempty"`
	IsAdmin    bool             `json:"is_admin"`
	Loading    bool             `json:"loading"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	logger := handlerLogger(r.Context(), s.logger, "auth", "login", "email", email)

	token, store := s.registry.Create(r.Context())
	result := store.SignIn(r.Context(), email, req.Password)
	if !result.Success {
		s.registry.Remove(token)
		logger.InfoContext(r.Context(), "login rejected")
		s.responder.writeJSON(r.Context(), w, http.StatusUnauthorized, result)
		return
	}

	setPortalCookie(w, token)
	logger.InfoContext(r.Context(), "login succeeded")
	s.responder.writeJSON(r.Context(), w, http.StatusOK, result)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	fe := fieldErrors{}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		fe["email"] = "email is required"
	}
	if req.Password == "" {
		fe["password"] = "password is required"
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fe["full_name"] = "full name is required"
	}
	if len(fe) > 0 {
		s.responder.writeValidation(r.Context(), w, fe)
		return
	}

	logger := handlerLogger(r.Context(), s.logger, "auth", "register", "email", email)

	token, store := s.registry.Create(r.Context())
	result := store.SignUp(r.Context(), email, req.Password, fullName)
	if !result.Success {
		s.registry.Remove(token)
		logger.InfoContext(r.Context(), "registration rejected")
		s.responder.writeJSON(r.Context(), w, http.StatusConflict, result)
		return
	}

	setPortalCookie(w, token)
	logger.InfoContext(r.Context(), "registration succeeded")
	s.responder.writeJSON(r.Context(), w, http.StatusCreated, result)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if store, token, ok := StoreFromContext(r.Context()); ok {
		store.SignOut(r.Context())
		s.registry.Remove(token)
		handlerLogger(r.Context(), s.logger, "auth", "logout").InfoContext(r.Context(), "signed out")
	}
	clearPortalCookie(w)
	s.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	store, _, ok := StoreFromContext(r.Context())
	if !ok {
		s.responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{
			ErrorCode: "AUTH_REQUIRED",
			Message:   errNotSignedIn.Error(),
		})
		return
	}
	sess, err := store.EnsureValidSession(r.Context())
	if err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}

	resp := meResponse{
		IdentityID: sess.Identity.ID,
		Email:      sess.Identity.Email,
		IsAdmin:    store.IsAdmin(),
		Loading:    store.Loading(),
	}
	if p, ok := store.Profile(); ok {
		resp.Profile = &p
	}
	s.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func setPortalCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     portalCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearPortalCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     portalCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func portalTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(portalCookieName); err == nil {
		return cookie.Value
	}
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(header, prefix))
		}
	}
	return ""
}

package http

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/records"
)

const borrowPeriod = 14 * 24 * time.Hour

func selectNewestFor(userID string) platform.SelectOptions {
	return platform.SelectOptions{
		Filters:    map[string]string{"user_id": userID},
		OrderBy:    "created_at",
		Descending: true,
	}
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	s.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"books":      s.catalog.Books(query, category),
		"categories": s.catalog.Categories(),
	})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	subject := r.URL.Query().Get("subject")
	s.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"notes":    s.catalog.Notes(query, subject),
		"subjects": s.catalog.Subjects(),
	})
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// handleContact accepts public contact form submissions. No session is
// required; the insert rides on the portal's anonymous platform access.
func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	fe := fieldErrors{}
	if strings.TrimSpace(req.Name) == "" {
		fe["name"] = "name is required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		fe["email"] = "email is invalid"
	}
	if strings.TrimSpace(req.Subject) == "" {
		fe["subject"] = "subject is required"
	}
	if strings.TrimSpace(req.Message) == "" {
		fe["message"] = "message is required"
	}
	if len(fe) > 0 {
		s.responder.writeValidation(r.Context(), w, fe)
		return
	}

	row := records.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Subject: strings.TrimSpace(req.Subject),
		Message: strings.TrimSpace(req.Message),
	}
	if err := s.platform.Insert(r.Context(), "", records.RelationContactMessages, row, nil); err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}
	s.responder.writeJSON(r.Context(), w, http.StatusCreated, map[string]bool{"received": true})
}

type donationRequest struct {
	Amount  float64 `json:"amount"`
	Method  string  `json:"method"`
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Message *string `json:"message,omitempty"`
}

func (s *Server) handleDonation(w http.ResponseWriter, r *http.Request) {
	var req donationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	fe := fieldErrors{}
	if req.Amount <= 0 {
		fe["amount"] = "amount must be positive"
	}
	if strings.TrimSpace(req.Method) == "" {
		fe["method"] = "payment method is required"
	}
	if len(fe) > 0 {
		s.responder.writeValidation(r.Context(), w, fe)
		return
	}

	row := records.Donation{
		Amount:  req.Amount,
		Method:  strings.TrimSpace(req.Method),
		Name:    req.Name,
		Email:   req.Email,
		Message: req.Message,
	}
	var created []records.Donation
	if err := s.platform.Insert(r.Context(), "", records.RelationDonations, row, &created); err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}
	if len(created) > 0 {
		s.responder.writeJSON(r.Context(), w, http.StatusCreated, created[0])
		return
	}
	s.responder.writeJSON(r.Context(), w, http.StatusCreated, row)
}

type cardApplicationRequest struct {
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	FatherName    *string `json:"father_name,omitempty"`
	DOB           *string `json:"dob,omitempty"`
	Class         string  `json:"class"`
	Field         *string `json:"field,omitempty"`
	RollNo        string  `json:"roll_no"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	AddressStreet string  `json:"address_street"`
	AddressCity   string  `json:"address_city"`
	AddressState  string  `json:"address_state"`
	AddressZip    string  `json:"address_zip"`
}

// handleCardApplication files a library card application. A signed-in
// session attaches its identity; anonymous applications are accepted too.
// The platform assigns the card number, which the response echoes back.
func (s *Server) handleCardApplication(w http.ResponseWriter, r *http.Request) {
	var req cardApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	fe := fieldErrors{}
	required := map[string]string{
		"first_name":     req.FirstName,
		"last_name":      req.LastName,
		"class":          req.Class,
		"roll_no":        req.RollNo,
		"phone":          req.Phone,
		"address_street": req.AddressStreet,
		"address_city":   req.AddressCity,
		"address_state":  req.AddressState,
		"address_zip":    req.AddressZip,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			fe[field] = strings.ReplaceAll(field, "_", " ") + " is required"
		}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		fe["email"] = "email is invalid"
	}
	if len(fe) > 0 {
		s.responder.writeValidation(r.Context(), w, fe)
		return
	}

	row := records.CardApplication{
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		FatherName:    req.FatherName,
		DOB:           req.DOB,
		Class:         strings.TrimSpace(req.Class),
		Field:         req.Field,
		RollNo:        strings.TrimSpace(req.RollNo),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		AddressStreet: strings.TrimSpace(req.AddressStreet),
		AddressCity:   strings.TrimSpace(req.AddressCity),
		AddressState:  strings.TrimSpace(req.AddressState),
		AddressZip:    strings.TrimSpace(req.AddressZip),
	}

	accessToken := ""
	if store, _, ok := StoreFromContext(r.Context()); ok {
		if sess, err := store.EnsureValidSession(r.Context()); err == nil {
			accessToken = sess.AccessToken
			id := sess.Identity.ID
			row.UserID = &id
		}
	}

	var created []records.CardApplication
	if err := s.platform.Insert(r.Context(), accessToken, records.RelationCardApplications, row, &created); err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}
	if len(created) > 0 {
		s.responder.writeJSON(r.Context(), w, http.StatusCreated, created[0])
		return
	}
	s.responder.writeJSON(r.Context(), w, http.StatusCreated, row)
}

func (s *Server) handleMyBorrows(w http.ResponseWriter, r *http.Request) {
	store, _, _ := StoreFromContext(r.Context())
	sess, err := store.EnsureValidSession(r.Context())
	if err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}

	var borrows []records.BookBorrow
	err = s.platform.Select(r.Context(), sess.AccessToken, records.RelationBookBorrows, selectNewestFor(sess.Identity.ID), &borrows)
	if err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}
	s.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"borrows": borrows})
}

type borrowRequest struct {
	BookID string `json:"book_id"`
}

func (s *Server) handleBorrowBook(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	book, ok := s.catalog.Book(strings.TrimSpace(req.BookID))
	if !ok {
		s.responder.writeJSON(r.Context(), w, http.StatusNotFound, errorResponse{Message: "unknown book"})
		return
	}
	if !book.Available {
		s.responder.writeJSON(r.Context(), w, http.StatusConflict, errorResponse{Message: "this book is currently unavailable"})
		return
	}

	store, _, _ := StoreFromContext(r.Context())
	sess, err := store.EnsureValidSession(r.Context())
	if err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}

	now := s.now()
	row := records.BookBorrow{
		UserID:     sess.Identity.ID,
		BookID:     book.ID,
		BookTitle:  book.Title,
		BorrowDate: now.UTC().Format("2006-01-02"),
		DueDate:    now.Add(borrowPeriod).UTC().Format("2006-01-02"),
		Status:     records.BorrowStatusBorrowed,
	}
	var created []records.BookBorrow
	if err := s.platform.Insert(r.Context(), sess.AccessToken, records.RelationBookBorrows, row, &created); err != nil {
		s.responder.handlePlatformError(r.Context(), w, err)
		return
	}
	if len(created) > 0 {
		s.responder.writeJSON(r.Context(), w, http.StatusCreated, created[0])
		return
	}
	s.responder.writeJSON(r.Context(), w, http.StatusCreated, row)
}

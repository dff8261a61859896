package testfixtures

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PlatformServer is an in-memory imitation of the hosted platform: password
// auth minting real signed tokens, relational CRUD with eq filters, and a
// change feed over server-sent events. It backs integration-style tests
// without any network dependency.
type PlatformServer struct {
	Server *httptest.Server
	APIKey string

	signingKey []byte
	now        func() time.Time

	mu          sync.Mutex
	users       map[string]*fakeUser // keyed by email
	access      map[string]string    // access token -> user id
	refresh     map[string]string    // refresh token -> user id
	rows        map[string][]map[string]any
	nextID      int
	subscribers map[string]map[chan changeEvent]struct{}

	// FailNext makes the next request to a path prefix return 503.
	failNext map[string]int
}

type fakeUser struct {
	ID       string
	Email    string
	Password string
}

type changeEvent struct {
	Relation string `json:"relation"`
	Type     string `json:"type"`
}

// NewPlatformServer starts the fake platform. Callers own the shutdown via
// Close.
func NewPlatformServer(now func() time.Time) *PlatformServer {
	if now == nil {
		now = time.Now
	}
	p := &PlatformServer{
		APIKey:      "test-api-key",
		signingKey:  []byte("test-signing-key"),
		now:         now,
		users:       map[string]*fakeUser{},
		access:      map[string]string{},
		refresh:     map[string]string{},
		rows:        map[string][]map[string]any{},
		subscribers: map[string]map[chan changeEvent]struct{}{},
		failNext:    map[string]int{},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.route))
	return p
}

// Close shuts the server down.
func (p *PlatformServer) Close() {
	p.Server.Close()
}

// URL is the base address the platform client should point at.
func (p *PlatformServer) URL() string {
	return p.Server.URL
}

// RegisterUser seeds an account and returns its identity id.
func (p *PlatformServer) RegisterUser(email, password string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	user := &fakeUser{ID: uuid.NewString(), Email: email, Password: password}
	p.users[email] = user
	return user.ID
}

// Seed appends a row to a relation, assigning id and created_at when absent,
// and notifies change subscribers like a regular insert would.
func (p *PlatformServer) Seed(relation string, row map[string]any) map[string]any {
	p.mu.Lock()
	created := p.insertLocked(relation, row)
	p.mu.Unlock()
	p.broadcast(relation, "INSERT")
	return created
}

// Rows returns a copy of a relation's rows in insertion order.
func (p *PlatformServer) Rows(relation string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, len(p.rows[relation]))
	for i, row := range p.rows[relation] {
		copied := make(map[string]any, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out[i] = copied
	}
	return out
}

// FailNextRequests makes the next n requests whose path starts with prefix
// answer 503.
func (p *PlatformServer) FailNextRequests(prefix string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[prefix] = n
}

func (p *PlatformServer) route(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	for prefix, n := range p.failNext {
		if n > 0 && strings.HasPrefix(r.URL.Path, prefix) {
			p.failNext[prefix] = n - 1
			p.mu.Unlock()
			writeError(w, http.StatusServiceUnavailable, "", "synthetic outage")
			return
		}
	}
	p.mu.Unlock()

	switch {
	case r.URL.Path == "/auth/v1/token":
		p.handleToken(w, r)
	case r.URL.Path == "/auth/v1/signup":
		p.handleSignup(w, r)
	case r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		p.handleRest(w, r)
	case r.URL.Path == "/realtime/v1/changes":
		p.handleChanges(w, r)
	default:
		writeError(w, http.StatusNotFound, "", "no such endpoint")
	}
}

func (p *PlatformServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch r.URL.Query().Get("grant_type") {
	case "password":
		p.mu.Lock()
		user, ok := p.users[body.Email]
		p.mu.Unlock()
		if !ok || user.Password != body.Password {
			writeError(w, http.StatusBadRequest, "invalid_credentials", "wrong email or password")
			return
		}
		p.writeSession(w, user)
	case "refresh_token":
		p.mu.Lock()
		userID, ok := p.refresh[body.RefreshToken]
		if ok {
			delete(p.refresh, body.RefreshToken)
		}
		var user *fakeUser
		for _, u := range p.users {
			if u.ID == userID {
				user = u
			}
		}
		p.mu.Unlock()
		if !ok || user == nil {
			writeError(w, http.StatusBadRequest, "refresh_token_expired", "refresh token is not valid")
			return
		}
		p.writeSession(w, user)
	default:
		writeError(w, http.StatusBadRequest, "", "unsupported grant type")
	}
}

func (p *PlatformServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string         `json:"email"`
		Password string         `json:"password"`
		Data     map[string]any `json:"data"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	p.mu.Lock()
	if _, exists := p.users[body.Email]; exists {
		p.mu.Unlock()
		writeError(w, http.StatusBadRequest, "user_already_exists", "account exists")
		return
	}
	user := &fakeUser{ID: uuid.NewString(), Email: body.Email, Password: body.Password}
	p.users[body.Email] = user
	p.mu.Unlock()

	p.writeSession(w, user)
}

func (p *PlatformServer) writeSession(w http.ResponseWriter, user *fakeUser) {
	const lifetime = time.Hour
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"exp":   p.now().Add(lifetime).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", err.Error())
		return
	}
	refresh := uuid.NewString()

	p.mu.Lock()
	p.access[access] = user.ID
	p.refresh[refresh] = user.ID
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    int64(lifetime / time.Second),
		"user":          map[string]string{"id": user.ID, "email": user.Email},
	})
}

func (p *PlatformServer) handleRest(w http.ResponseWriter, r *http.Request) {
	relation := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	query := r.URL.Query()

	switch r.Method {
	case http.MethodGet:
		p.mu.Lock()
		rows := p.selectLocked(relation, query)
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	case http.MethodPost:
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			writeError(w, http.StatusBadRequest, "", "bad row payload")
			return
		}
		p.mu.Lock()
		created := p.insertLocked(relation, row)
		p.mu.Unlock()
		p.broadcast(relation, "INSERT")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode([]map[string]any{created})
	case http.MethodPatch:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "", "bad patch payload")
			return
		}
		id, ok := eqFilter(query, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "", "missing id filter")
			return
		}
		p.mu.Lock()
		updated := false
		for _, row := range p.rows[relation] {
			if fmt.Sprint(row["id"]) == id {
				for k, v := range patch {
					row[k] = v
				}
				updated = true
			}
		}
		p.mu.Unlock()
		if !updated {
			writeError(w, http.StatusNotFound, "", "row not found")
			return
		}
		p.broadcast(relation, "UPDATE")
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		id, ok := eqFilter(query, "id")
		if !ok {
			writeError(w, http.StatusBadRequest, "", "missing id filter")
			return
		}
		p.mu.Lock()
		kept := p.rows[relation][:0]
		removed := false
		for _, row := range p.rows[relation] {
			if fmt.Sprint(row["id"]) == id {
				removed = true
				continue
			}
			kept = append(kept, row)
		}
		p.rows[relation] = kept
		p.mu.Unlock()
		if removed {
			p.broadcast(relation, "DELETE")
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "", "unsupported method")
	}
}

func (p *PlatformServer) insertLocked(relation string, row map[string]any) map[string]any {
	copied := make(map[string]any, len(row)+2)
	for k, v := range row {
		copied[k] = v
	}
	if _, ok := copied["id"]; !ok {
		p.nextID++
		copied["id"] = strconv.Itoa(p.nextID)
	}
	if _, ok := copied["created_at"]; !ok {
		copied["created_at"] = p.now().UTC().Format(time.RFC3339)
	}
	if relation == "library_card_applications" {
		if _, ok := copied["card_number"]; !ok {
			copied["card_number"] = fmt.Sprintf("LC-%05d", p.nextID)
		}
		if _, ok := copied["status"]; !ok {
			copied["status"] = "pending"
		}
	}
	p.rows[relation] = append(p.rows[relation], copied)
	return copied
}

func eqFilter(query url.Values, column string) (string, bool) {
	return strings.CutPrefix(query.Get(column), "eq.")
}

func (p *PlatformServer) selectLocked(relation string, query url.Values) []map[string]any {
	var out []map[string]any
	for _, row := range p.rows[relation] {
		match := true
		for key, values := range query {
			switch key {
			case "select", "order", "limit":
				continue
			}
			want, ok := strings.CutPrefix(values[0], "eq.")
			if !ok {
				continue
			}
			if fmt.Sprint(row[key]) != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
	}

	if order := query.Get("order"); order != "" {
		column, direction, _ := strings.Cut(order, ".")
		sort.SliceStable(out, func(i, j int) bool {
			a, b := fmt.Sprint(out[i][column]), fmt.Sprint(out[j][column])
			if direction == "desc" {
				return a > b
			}
			return a < b
		})
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit < len(out) {
			out = out[:limit]
		}
	}
	if out == nil {
		out = []map[string]any{}
	}
	return out
}

func (p *PlatformServer) handleChanges(w http.ResponseWriter, r *http.Request) {
	relation := r.URL.Query().Get("relation")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "", "streaming unsupported")
		return
	}

	ch := make(chan changeEvent, 16)
	p.mu.Lock()
	if p.subscribers[relation] == nil {
		p.subscribers[relation] = map[chan changeEvent]struct{}{}
	}
	p.subscribers[relation][ch] = struct{}{}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.subscribers[relation], ch)
		p.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event := <-ch:
			payload, _ := json.Marshal(event)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (p *PlatformServer) broadcast(relation, changeType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers[relation] {
		select {
		case ch <- changeEvent{Relation: relation, Type: changeType}:
		default:
		}
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

// Package session holds the per-browser authentication state machine. Each
// signed-in browser maps to exactly one Store; a Registry hands them out by
// portal token.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/profile"
	"github.com/example/library-portal/internal/records"
)

// AuthEvent names a transition of the authentication state.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "initial_session"
	EventSignedIn       AuthEvent = "signed_in"
	EventSignedOut      AuthEvent = "signed_out"
	EventTokenRefreshed AuthEvent = "token_refreshed"
)

// AuthAPI is the authentication slice of the platform client.
type AuthAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (platform.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (platform.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (platform.Session, error)
}

// DataAPI is the write slice the store needs during registration.
type DataAPI interface {
	Insert(ctx context.Context, accessToken, relation string, row, dest any) error
}

// ProfileResolver rebuilds profile metadata for a signed-in identity.
type ProfileResolver interface {
	Resolve(ctx context.Context, accessToken, identityID, email string) profile.Profile
}

// Keeper persists one browser's platform session across portal restarts.
type Keeper interface {
	Save(ctx context.Context, session platform.Session) error
	Load(ctx context.Context) (platform.Session, bool, error)
	Clear(ctx context.Context) error
}

// Listener observes auth events. Listeners run synchronously in event order,
// before the deferred profile resolution for the same event starts.
type Listener func(event AuthEvent, session *platform.Session)

// Result reports the outcome of a sign-in or registration attempt. Error is
// a short user-facing message, set only when Success is false.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Config collects the Store dependencies.
type Config struct {
	Auth     AuthAPI
	Data     DataAPI
	Resolver ProfileResolver
	Keeper   Keeper
	Logger   *slog.Logger
	Now      func() time.Time
}

// Store tracks the session and derived profile for one browser. All state
// transitions are synchronous; only profile resolution is deferred, and a
// generation counter discards resolutions that a later transition outran.
type Store struct {
	auth     AuthAPI
	data     DataAPI
	resolver ProfileResolver
	keeper   Keeper
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	session    *platform.Session
	profile    *profile.Profile
	loading    bool
	generation uint64
	listeners  []Listener

	resolves sync.WaitGroup
}

// NewStore constructs a Store. It performs no I/O; call Subscribe for any
// listeners and then Initialize.
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		auth:     cfg.Auth,
		data:     cfg.Data,
		resolver: cfg.Resolver,
		keeper:   cfg.Keeper,
		logger:   logger,
		now:      now,
		loading:  true,
	}
}

// Subscribe registers a listener. It must be called before Initialize so the
// listener observes the initial session event.
func (s *Store) Subscribe(listener Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Initialize restores any persisted session and emits the initial session
// event. The store is usable afterwards even when restoration fails.
func (s *Store) Initialize(ctx context.Context) {
	restored := s.restorePersisted(ctx)
	s.handleAuthEvent(ctx, EventInitialSession, restored)

	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Store) restorePersisted(ctx context.Context) *platform.Session {
	if s.keeper == nil {
		return nil
	}
	persisted, ok, err := s.keeper.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "persisted session unreadable, starting signed out", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	if !persisted.Expired(s.now()) {
		return &persisted
	}

	refreshed, err := s.auth.RefreshSession(ctx, persisted.RefreshToken)
	if err != nil {
		s.logger.InfoContext(ctx, "persisted session expired and refresh failed",
			"error", err, "error_kind", platform.ErrorKind(err))
		s.clearKeeper(ctx)
		return nil
	}
	s.saveKeeper(ctx, refreshed)
	return &refreshed
}

// SignIn exchanges credentials for a session. Failure leaves the current
// state untouched and reports a user-facing message.
func (s *Store) SignIn(ctx context.Context, email, password string) Result {
	sess, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		s.logger.InfoContext(ctx, "sign in rejected",
			"email", email, "error_kind", platform.ErrorKind(err))
		return Result{Error: platform.UserMessage(err)}
	}
	s.saveKeeper(ctx, sess)
	s.handleAuthEvent(ctx, EventSignedIn, &sess)
	return Result{Success: true}
}

// SignUp registers a new identity and signs it in. The profile and role rows
// are written synchronously with the new session's own token; either write
// may fail without failing the registration, the resolver's defaults cover
// the gap until an administrator repairs the rows.
func (s *Store) SignUp(ctx context.Context, email, password, fullName string) Result {
	sess, err := s.auth.SignUp(ctx, email, password, map[string]any{"full_name": fullName})
	if err != nil {
		s.logger.InfoContext(ctx, "registration rejected",
			"email", email, "error_kind", platform.ErrorKind(err))
		return Result{Error: platform.UserMessage(err)}
	}

	if err := s.data.Insert(ctx, sess.AccessToken, records.RelationProfiles, records.ProfileRow{
		UserID:   sess.Identity.ID,
		FullName: fullName,
	}, nil); err != nil {
		s.logger.ErrorContext(ctx, "profile row write failed during registration",
			"identity_id", sess.Identity.ID, "error", err)
	}
	if err := s.data.Insert(ctx, sess.AccessToken, records.RelationUserRoles, records.RoleAssignment{
		UserID: sess.Identity.ID,
		Role:   profile.RoleUser,
	}, nil); err != nil {
		s.logger.ErrorContext(ctx, "role row write failed during registration",
			"identity_id", sess.Identity.ID, "error", err)
	}

	s.saveKeeper(ctx, sess)
	s.handleAuthEvent(ctx, EventSignedIn, &sess)
	return Result{Success: true}
}

// SignOut revokes the session upstream and clears local state. The local
// clear happens regardless of whether revocation succeeds.
func (s *Store) SignOut(ctx context.Context) {
	s.mu.Lock()
	current := s.session
	s.mu.Unlock()

	if current != nil {
		if err := s.auth.SignOut(ctx, current.AccessToken); err != nil {
			s.logger.WarnContext(ctx, "upstream sign out failed, clearing locally anyway",
				"error", err, "error_kind", platform.ErrorKind(err))
		}
	}
	s.clearKeeper(ctx)
	s.handleAuthEvent(ctx, EventSignedOut, nil)
}

// EnsureValidSession returns the current session, refreshing it first when
// it is expired. A failed refresh signs the store out.
func (s *Store) EnsureValidSession(ctx context.Context) (platform.Session, error) {
	s.mu.Lock()
	current := s.session
	s.mu.Unlock()

	if current == nil {
		return platform.Session{}, platform.ErrSessionExpired
	}
	if !current.Expired(s.now()) {
		return *current, nil
	}

	refreshed, err := s.auth.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		s.logger.InfoContext(ctx, "session refresh failed, signing out",
			"error", err, "error_kind", platform.ErrorKind(err))
		s.clearKeeper(ctx)
		s.handleAuthEvent(ctx, EventSignedOut, nil)
		return platform.Session{}, err
	}
	s.saveKeeper(ctx, refreshed)
	s.handleAuthEvent(ctx, EventTokenRefreshed, &refreshed)
	return refreshed, nil
}

// handleAuthEvent applies the transition synchronously, notifies listeners,
// and schedules profile resolution when a session is present. The generation
// counter ties each resolution to the transition that started it.
func (s *Store) handleAuthEvent(ctx context.Context, event AuthEvent, sess *platform.Session) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.session = sess
	if sess == nil {
		s.profile = nil
	}
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(event, sess)
	}

	if sess == nil {
		return
	}

	resolveCtx := context.WithoutCancel(ctx)
	token, id, email := sess.AccessToken, sess.Identity.ID, sess.Identity.Email
	s.resolves.Add(1)
	go func() {
		defer s.resolves.Done()
		resolved := s.resolver.Resolve(resolveCtx, token, id, email)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != gen {
			return
		}
		s.profile = &resolved
	}()
}

// Session returns a copy of the current session, or false when signed out.
func (s *Store) Session() (platform.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return platform.Session{}, false
	}
	return *s.session, true
}

// Profile returns a copy of the resolved profile, or false while resolution
// is pending or the store is signed out.
func (s *Store) Profile() (profile.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return profile.Profile{}, false
	}
	return *s.profile, true
}

// IsAdmin reports whether the resolved profile carries the admin role. An
// unresolved or absent profile is non-admin.
func (s *Store) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.IsAdmin()
}

// Loading reports whether the initial session restoration is still running.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Flush blocks until every scheduled profile resolution has settled.
func (s *Store) Flush() {
	s.resolves.Wait()
}

func (s *Store) saveKeeper(ctx context.Context, sess platform.Session) {
	if s.keeper == nil {
		return
	}
	if err := s.keeper.Save(ctx, sess); err != nil {
		s.logger.ErrorContext(ctx, "session persistence failed", "error", err)
	}
}

func (s *Store) clearKeeper(ctx context.Context) {
	if s.keeper == nil {
		return
	}
	if err := s.keeper.Clear(ctx); err != nil {
		s.logger.ErrorContext(ctx, "session clear failed", "error", err)
	}
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/profile"
	"github.com/example/library-portal/internal/records"
)

var fixedNow = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func testSession(id, email string) platform.Session {
	return platform.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		TokenType:    "bearer",
		ExpiresAt:    fixedNow.Add(time.Hour),
		Identity:     platform.Identity{ID: id, Email: email},
	}
}

type stubAuth struct {
	mu sync.Mutex

	signInSession platform.Session
	signInErr     error

	signUpSession platform.Session
	signUpErr     error

	signOutErr   error
	signOutCalls int

	refreshSession platform.Session
	refreshErr     error
	refreshCalls   int
}

func (a *stubAuth) SignInWithPassword(context.Context, string, string) (platform.Session, error) {
	return a.signInSession, a.signInErr
}

func (a *stubAuth) SignUp(context.Context, string, string, map[string]any) (platform.Session, error) {
	return a.signUpSession, a.signUpErr
}

func (a *stubAuth) SignOut(context.Context, string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signOutCalls++
	return a.signOutErr
}

func (a *stubAuth) RefreshSession(context.Context, string) (platform.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshCalls++
	return a.refreshSession, a.refreshErr
}

type insertCall struct {
	relation string
	row      any
}

type stubData struct {
	mu      sync.Mutex
	inserts []insertCall
	errs    map[string]error
}

func (d *stubData) Insert(_ context.Context, _ string, relation string, row, _ any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inserts = append(d.inserts, insertCall{relation: relation, row: row})
	return d.errs[relation]
}

// stubResolver blocks each Resolve on the gate channel when one is set, so
// tests can order resolution against later transitions.
type stubResolver struct {
	gate    chan struct{}
	profile profile.Profile
}

func (r *stubResolver) Resolve(_ context.Context, _, id, email string) profile.Profile {
	if r.gate != nil {
		<-r.gate
	}
	p := r.profile
	p.IdentityID = id
	p.Email = email
	return p
}

type stubKeeper struct {
	mu      sync.Mutex
	session *platform.Session
	loadErr error
	saveErr error
	clears  int
}

func (k *stubKeeper) Save(_ context.Context, sess platform.Session) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.saveErr != nil {
		return k.saveErr
	}
	k.session = &sess
	return nil
}

func (k *stubKeeper) Load(_ context.Context) (platform.Session, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.loadErr != nil {
		return platform.Session{}, false, k.loadErr
	}
	if k.session == nil {
		return platform.Session{}, false, nil
	}
	return *k.session, true, nil
}

func (k *stubKeeper) Clear(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.clears++
	k.session = nil
	return nil
}

func newTestStore(auth *stubAuth, data *stubData, resolver *stubResolver, keeper *stubKeeper) *Store {
	if auth == nil {
		auth = &stubAuth{}
	}
	if data == nil {
		data = &stubData{}
	}
	if resolver == nil {
		resolver = &stubResolver{profile: profile.Profile{Role: profile.RoleUser}}
	}
	cfg := Config{
		Auth:     auth,
		Data:     data,
		Resolver: resolver,
		Now:      func() time.Time { return fixedNow },
	}
	// A nil *stubKeeper must not become a non-nil Keeper interface value.
	if keeper != nil {
		cfg.Keeper = keeper
	}
	return NewStore(cfg)
}

func TestInitializeEmitsInitialSessionToEarlyListener(t *testing.T) {
	t.Parallel()

	store := newTestStore(nil, nil, nil, nil)

	var events []AuthEvent
	store.Subscribe(func(event AuthEvent, _ *platform.Session) {
		events = append(events, event)
	})
	store.Initialize(context.Background())

	if len(events) != 1 || events[0] != EventInitialSession {
		t.Fatalf("events = %v, want exactly [%s]", events, EventInitialSession)
	}
	if store.Loading() {
		t.Error("store still loading after Initialize")
	}
	if _, ok := store.Session(); ok {
		t.Error("fresh store should be signed out")
	}
}

func TestInitializeRestoresPersistedSession(t *testing.T) {
	t.Parallel()

	sess := testSession("id-1", "chris@example.edu")
	keeper := &stubKeeper{session: &sess}
	store := newTestStore(nil, nil, nil, keeper)

	var got *platform.Session
	store.Subscribe(func(event AuthEvent, s *platform.Session) {
		if event == EventInitialSession {
			got = s
		}
	})
	store.Initialize(context.Background())
	store.Flush()

	if got == nil || got.Identity.ID != "id-1" {
		t.Fatalf("initial session event carried %+v, want restored session", got)
	}
	if p, ok := store.Profile(); !ok || p.IdentityID != "id-1" {
		t.Errorf("profile after restore = %+v, %v", p, ok)
	}
}

func TestInitializeRefreshesExpiredPersistedSession(t *testing.T) {
	t.Parallel()

	expired := testSession("id-1", "chris@example.edu")
	expired.ExpiresAt = fixedNow.Add(-time.Minute)
	refreshed := testSession("id-1", "chris@example.edu")
	refreshed.AccessToken = "access-rotated"

	auth := &stubAuth{refreshSession: refreshed}
	keeper := &stubKeeper{session: &expired}
	store := newTestStore(auth, nil, nil, keeper)
	store.Initialize(context.Background())

	sess, ok := store.Session()
	if !ok || sess.AccessToken != "access-rotated" {
		t.Fatalf("session = %+v, %v, want refreshed session", sess, ok)
	}
	if keeper.session == nil || keeper.session.AccessToken != "access-rotated" {
		t.Error("refreshed session not persisted")
	}
}

func TestInitializeDropsUnrefreshableSession(t *testing.T) {
	t.Parallel()

	expired := testSession("id-1", "chris@example.edu")
	expired.ExpiresAt = fixedNow.Add(-time.Minute)
	auth := &stubAuth{refreshErr: platform.ErrSessionExpired}
	keeper := &stubKeeper{session: &expired}
	store := newTestStore(auth, nil, nil, keeper)
	store.Initialize(context.Background())

	if _, ok := store.Session(); ok {
		t.Error("store should be signed out after failed refresh")
	}
	if keeper.clears == 0 {
		t.Error("unrefreshable persisted session not cleared")
	}
}

func TestSignInSuccess(t *testing.T) {
	t.Parallel()

	sess := testSession("id-1", "chris@example.edu")
	auth := &stubAuth{signInSession: sess}
	keeper := &stubKeeper{}
	store := newTestStore(auth, nil, nil, keeper)
	store.Initialize(context.Background())

	var events []AuthEvent
	store.Subscribe(func(event AuthEvent, _ *platform.Session) {
		events = append(events, event)
	})

	result := store.SignIn(context.Background(), "chris@example.edu", "secret")
	if !result.Success || result.Error != "" {
		t.Fatalf("result = %+v, want success", result)
	}

	// The session is visible before the deferred resolution settles.
	if got, ok := store.Session(); !ok || got.Identity.ID != "id-1" {
		t.Errorf("session = %+v, %v", got, ok)
	}
	if len(events) != 1 || events[0] != EventSignedIn {
		t.Errorf("events = %v, want [%s]", events, EventSignedIn)
	}
	if keeper.session == nil {
		t.Error("session not persisted")
	}

	store.Flush()
	if p, ok := store.Profile(); !ok || p.Email != "chris@example.edu" {
		t.Errorf("profile = %+v, %v", p, ok)
	}
}

func TestSignInFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	auth := &stubAuth{signInErr: platform.ErrInvalidCredentials}
	store := newTestStore(auth, nil, nil, nil)
	store.Initialize(context.Background())

	result := store.SignIn(context.Background(), "chris@example.edu", "wrong")
	if result.Success {
		t.Fatal("sign in with bad credentials must not succeed")
	}
	if result.Error != platform.UserMessage(platform.ErrInvalidCredentials) {
		t.Errorf("error message = %q", result.Error)
	}
	if _, ok := store.Session(); ok {
		t.Error("failed sign in must not install a session")
	}
}

func TestSignUpWritesProfileAndRoleRows(t *testing.T) {
	t.Parallel()

	sess := testSession("id-9", "dana@example.edu")
	auth := &stubAuth{signUpSession: sess}
	data := &stubData{}
	store := newTestStore(auth, data, nil, nil)
	store.Initialize(context.Background())

	result := store.SignUp(context.Background(), "dana@example.edu", "secret", "Dana Smith")
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}

	if len(data.inserts) != 2 {
		t.Fatalf("inserts = %d, want 2", len(data.inserts))
	}
	row, ok := data.inserts[0].row.(records.ProfileRow)
	if data.inserts[0].relation != records.RelationProfiles || !ok {
		t.Fatalf("first insert = %+v, want profile row", data.inserts[0])
	}
	if row.UserID != "id-9" || row.FullName != "Dana Smith" {
		t.Errorf("profile row = %+v", row)
	}
	role, ok := data.inserts[1].row.(records.RoleAssignment)
	if data.inserts[1].relation != records.RelationUserRoles || !ok {
		t.Fatalf("second insert = %+v, want role row", data.inserts[1])
	}
	if role.UserID != "id-9" || role.Role != profile.RoleUser {
		t.Errorf("role row = %+v", role)
	}
}

func TestSignUpToleratesRowWriteFailures(t *testing.T) {
	t.Parallel()

	sess := testSession("id-9", "dana@example.edu")
	auth := &stubAuth{signUpSession: sess}
	data := &stubData{errs: map[string]error{
		records.RelationProfiles:  errors.New("duplicate"),
		records.RelationUserRoles: platform.ErrPermissionDenied,
	}}
	store := newTestStore(auth, data, nil, nil)
	store.Initialize(context.Background())

	result := store.SignUp(context.Background(), "dana@example.edu", "secret", "Dana Smith")
	if !result.Success {
		t.Fatalf("registration must succeed despite row write failures: %+v", result)
	}
	if _, ok := store.Session(); !ok {
		t.Error("registration must leave the store signed in")
	}
}

func TestSignOutClearsDespiteUpstreamError(t *testing.T) {
	t.Parallel()

	sess := testSession("id-1", "chris@example.edu")
	auth := &stubAuth{signInSession: sess, signOutErr: platform.ErrUnavailable}
	keeper := &stubKeeper{}
	store := newTestStore(auth, nil, nil, keeper)
	store.Initialize(context.Background())
	store.SignIn(context.Background(), "chris@example.edu", "secret")
	store.Flush()

	var events []AuthEvent
	store.Subscribe(func(event AuthEvent, _ *platform.Session) {
		events = append(events, event)
	})
	store.SignOut(context.Background())

	if _, ok := store.Session(); ok {
		t.Error("session survives sign out")
	}
	if _, ok := store.Profile(); ok {
		t.Error("profile survives sign out")
	}
	if keeper.session != nil {
		t.Error("persisted session survives sign out")
	}
	if auth.signOutCalls != 1 {
		t.Errorf("upstream sign out calls = %d, want 1", auth.signOutCalls)
	}
	if len(events) != 1 || events[0] != EventSignedOut {
		t.Errorf("events = %v, want [%s]", events, EventSignedOut)
	}
}

func TestSignOutDuringResolveDoesNotResurrectProfile(t *testing.T) {
	t.Parallel()

	sess := testSession("id-1", "chris@example.edu")
	auth := &stubAuth{signInSession: sess}
	resolver := &stubResolver{gate: make(chan struct{}), profile: profile.Profile{Role: profile.RoleAdmin}}
	store := newTestStore(auth, nil, resolver, nil)
	store.Initialize(context.Background())

	store.SignIn(context.Background(), "chris@example.edu", "secret")
	store.SignOut(context.Background())
	close(resolver.gate)
	store.Flush()

	if _, ok := store.Profile(); ok {
		t.Error("resolution finishing after sign out must be discarded")
	}
	if store.IsAdmin() {
		t.Error("signed-out store must not report admin")
	}
}

func TestEnsureValidSessionRefreshesExpiredSession(t *testing.T) {
	t.Parallel()

	sess := testSession("id-1", "chris@example.edu")
	sess.ExpiresAt = fixedNow.Add(-time.Minute)
	refreshed := testSession("id-1", "chris@example.edu")
	refreshed.AccessToken = "access-rotated"

	auth := &stubAuth{signInSession: sess, refreshSession: refreshed}
	keeper := &stubKeeper{}
	store := newTestStore(auth, nil, nil, keeper)
	store.Initialize(context.Background())
	store.SignIn(context.Background(), "chris@example.edu", "secret")

	var events []AuthEvent
	store.Subscribe(func(event AuthEvent, _ *platform.Session) {
		events = append(events, event)
	})

	got, err := store.EnsureValidSession(context.Background())
	if err != nil {
		t.Fatalf("EnsureValidSession: %v", err)
	}
	if got.AccessToken != "access-rotated" {
		t.Errorf("access token = %q, want rotated token", got.AccessToken)
	}
	if len(events) != 1 || events[0] != EventTokenRefreshed {
		t.Errorf("events = %v, want [%s]", events, EventTokenRefreshed)
	}
	if keeper.session == nil || keeper.session.AccessToken != "access-rotated" {
		t.Error("rotated session not persisted")
	}
}

func TestEnsureValidSessionSignsOutOnFailedRefresh(t *testing.T) {
	t.Parallel()

	sess := testSession("id-1", "chris@example.edu")
	sess.ExpiresAt = fixedNow.Add(-time.Minute)
	auth := &stubAuth{signInSession: sess, refreshErr: platform.ErrSessionExpired}
	store := newTestStore(auth, nil, nil, nil)
	store.Initialize(context.Background())
	store.SignIn(context.Background(), "chris@example.edu", "secret")

	if _, err := store.EnsureValidSession(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if _, ok := store.Session(); ok {
		t.Error("store must be signed out after failed refresh")
	}
}

func TestEnsureValidSessionWhenSignedOut(t *testing.T) {
	t.Parallel()

	store := newTestStore(nil, nil, nil, nil)
	store.Initialize(context.Background())

	_, err := store.EnsureValidSession(context.Background())
	if !errors.Is(err, platform.ErrSessionExpired) {
		t.Errorf("err = %v, want %v", err, platform.ErrSessionExpired)
	}
}

func TestStoreWithoutKeeperRunsFullLifecycle(t *testing.T) {
	t.Parallel()

	sess := testSession("id-1", "chris@example.edu")
	store := newTestStore(&stubAuth{signInSession: sess}, nil, nil, nil)

	store.Initialize(context.Background())
	if _, ok := store.Session(); ok {
		t.Fatal("store without persistence must start signed out")
	}

	if result := store.SignIn(context.Background(), "chris@example.edu", "secret"); !result.Success {
		t.Fatalf("SignIn = %+v", result)
	}
	if _, ok := store.Session(); !ok {
		t.Error("session missing after sign-in")
	}

	store.SignOut(context.Background())
	if _, ok := store.Session(); ok {
		t.Error("session survives sign-out")
	}
}

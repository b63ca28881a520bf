package auth

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/studio-console/gate"
)

const waitTimeout = 2 * time.Second

func newTestManager(t *testing.T) (*Manager, *fakeIdentity, *fakeProfiles) {
	t.Helper()
	idp := newFakeIdentity()
	profiles := newFakeProfiles()
	m := NewManager(idp, profiles)
	t.Cleanup(m.Close)
	return m, idp, profiles
}

func newLoggedManager(t *testing.T) (*Manager, *fakeIdentity, *fakeProfiles, *logRecorder) {
	t.Helper()
	idp := newFakeIdentity()
	profiles := newFakeProfiles()
	logs := &logRecorder{}
	m := NewManager(idp, profiles, WithLogger(slog.New(logs)))
	t.Cleanup(m.Close)
	return m, idp, profiles, logs
}

func waitLogged(t *testing.T, logs *logRecorder, msg string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return logs.count(msg) >= n }, waitTimeout, time.Millisecond, "waiting for %d x %q", n, msg)
}

func waitFor(t *testing.T, m *Manager, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	s, err := m.WaitFor(ctx, cond)
	require.NoError(t, err, "last snapshot: %+v", s)
	return s
}

func waitSettled(t *testing.T, m *Manager) Snapshot {
	t.Helper()
	return waitFor(t, m, Settled)
}

func isAuthenticated(s Snapshot) bool { return s.Authenticated() && !s.Loading }

func appGate(t *testing.T) *gate.Gate {
	t.Helper()
	g := gate.NewGate()
	require.NoError(t, g.Register("/dashboard", gate.AllowAll()))
	require.NoError(t, g.Register("/clients", gate.Allow(gate.RoleAdmin)))
	return g
}

func TestManager_InitialState(t *testing.T) {
	m, _, _ := newTestManager(t)
	s := m.Snapshot()
	assert.Equal(t, StateInitializing, s.State)
	assert.False(t, s.Ready())
	assert.Nil(t, s.User)

	d := gate.Decide(s, gate.AllowAll())
	assert.Equal(t, gate.ShowLoading, d.Outcome)
}

// Fresh load with no stored token.
func TestManager_FreshLoadWithoutSession(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.Start(context.Background()))

	s := waitSettled(t, m)
	assert.Equal(t, StateUnauthenticated, s.State)
	assert.Nil(t, s.User)
	assert.NoError(t, s.Err)

	d, err := appGate(t).Check(s, "/dashboard")
	require.NoError(t, err)
	assert.Equal(t, gate.Redirect, d.Outcome)
	assert.Equal(t, "/login", d.Path)
	assert.Equal(t, "/dashboard", d.From)
}

// Admin login renders the admin-only route.
func TestManager_LoginAdmin(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.addAccount("admin@x.com", "u-admin", "secret")
	profiles.put("u-admin", "admin")

	require.NoError(t, m.Start(context.Background()))
	waitSettled(t, m)

	require.NoError(t, m.Login(context.Background(), "admin@x.com", "secret"))
	s := waitFor(t, m, isAuthenticated)

	assert.Equal(t, StateAuthenticated, s.State)
	assert.Equal(t, "u-admin", s.User.ID)
	assert.Equal(t, gate.RoleAdmin, s.User.Role)
	require.NotNil(t, m.Session())
	assert.Equal(t, "u-admin", m.Session().UserID)

	d, err := appGate(t).Check(s, "/clients")
	require.NoError(t, err)
	assert.Equal(t, gate.Render, d.Outcome)
}

// Same login, but the profile is a client.
func TestManager_LoginClientDeniedAdminRoute(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.addAccount("client@x.com", "u-client", "secret")
	profiles.put("u-client", "client")

	require.NoError(t, m.Start(context.Background()))
	waitSettled(t, m)
	require.NoError(t, m.Login(context.Background(), "client@x.com", "secret"))
	s := waitFor(t, m, isAuthenticated)

	d, err := appGate(t).Check(s, "/clients")
	require.NoError(t, err)
	assert.Equal(t, gate.Redirect, d.Outcome)
	assert.Equal(t, "/dashboard", d.Path)
	assert.False(t, d.RememberOrigin)
}

// Valid session with no profile row fails closed.
func TestManager_ProfileMissingFailsClosed(t *testing.T) {
	m, idp, _ := newTestManager(t)
	idp.storeSession("u-orphan")

	require.NoError(t, m.Start(context.Background()))
	s := waitSettled(t, m)

	assert.Equal(t, StateUnauthenticated, s.State)
	assert.Nil(t, s.User)
	assert.ErrorIs(t, s.Err, ErrProfileMissing)
	assert.Equal(t, KindProfileMissing, Classify(s.Err))
	assert.Nil(t, m.Session())

	for _, route := range []string{"/dashboard", "/clients"} {
		d, err := appGate(t).Check(s, route)
		require.NoError(t, err)
		assert.Equal(t, "/login", d.Path, route)
	}
}

func TestManager_ProfileMissingAfterLogin(t *testing.T) {
	m, idp, _ := newTestManager(t)
	idp.addAccount("new@x.com", "u-new", "secret")

	require.NoError(t, m.Start(context.Background()))
	waitSettled(t, m)
	require.NoError(t, m.Login(context.Background(), "new@x.com", "secret"))

	s := waitFor(t, m, func(s Snapshot) bool { return s.Err != nil && !s.Loading })
	assert.Equal(t, StateUnauthenticated, s.State)
	assert.ErrorIs(t, s.Err, ErrProfileMissing)
}

func TestManager_ProfileLookupFailureFailsClosed(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "admin")
	profiles.setErr(errors.New("connection refused"))

	require.NoError(t, m.Start(context.Background()))
	s := waitSettled(t, m)

	assert.Equal(t, StateUnauthenticated, s.State)
	assert.Nil(t, s.User)
	assert.ErrorIs(t, s.Err, ErrTransport)
}

func TestManager_ProbeFailureFailsClosed(t *testing.T) {
	m, idp, _ := newTestManager(t)
	idp.getErr = errors.New("dial tcp: timeout")

	require.NoError(t, m.Start(context.Background()))
	s := waitSettled(t, m)

	assert.Equal(t, StateUnauthenticated, s.State)
	assert.Equal(t, KindTransport, Classify(s.Err))
}

// A rejected sign-out leaves everything as it was.
func TestManager_LogoutFailurePreservesState(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "collaborator")

	require.NoError(t, m.Start(context.Background()))
	before := waitFor(t, m, isAuthenticated)

	idp.signOutErr = errors.New("503 service unavailable")
	err := m.Logout(context.Background())
	require.ErrorIs(t, err, ErrLogoutFailed)
	assert.Equal(t, KindLogout, Classify(err))

	after := m.Snapshot()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Authenticated(), after.Authenticated())
	assert.Equal(t, *before.User, *after.User)
	assert.False(t, after.Loading)
	assert.NotNil(t, m.Session())

	// Retry succeeds once the provider recovers.
	idp.signOutErr = nil
	require.NoError(t, m.Logout(context.Background()))
	s := waitFor(t, m, func(s Snapshot) bool { return s.State == StateUnauthenticated })
	assert.Nil(t, s.User)
	assert.Nil(t, m.Session())
}

func TestManager_InvalidCredentials(t *testing.T) {
	m, idp, _ := newTestManager(t)
	idp.addAccount("a@x.com", "u1", "right")

	require.NoError(t, m.Start(context.Background()))
	waitSettled(t, m)

	err := m.Login(context.Background(), "a@x.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, KindAuthRejected, Classify(err))

	s := m.Snapshot()
	assert.Equal(t, StateUnauthenticated, s.State)
	assert.False(t, s.Loading)
}

func TestManager_LoginTransportError(t *testing.T) {
	m, idp, _ := newTestManager(t)
	idp.signInErr = errors.New("no route to host")

	err := m.Login(context.Background(), "a@x.com", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no route to host")
	assert.False(t, m.Snapshot().Loading)
}

func TestManager_LoadingDuringLogin(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.addAccount("a@x.com", "u1", "pw")
	profiles.put("u1", "client")
	idp.signInGate = make(chan struct{})

	require.NoError(t, m.Start(context.Background()))
	waitSettled(t, m)

	done := make(chan error, 1)
	go func() { done <- m.Login(context.Background(), "a@x.com", "pw") }()

	s := waitFor(t, m, func(s Snapshot) bool { return s.Loading })
	assert.Equal(t, StateUnauthenticated, s.State)

	close(idp.signInGate)
	require.NoError(t, <-done)

	s = waitFor(t, m, isAuthenticated)
	assert.False(t, s.Loading)
}

// A sign-in accepted before Start has no event stream to land it; Loading
// must not stick, and Start picks the session up through the probe.
func TestManager_LoginBeforeStart(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.addAccount("a@x.com", "u1", "pw")
	profiles.put("u1", "admin")

	require.NoError(t, m.Login(context.Background(), "a@x.com", "pw"))
	s := m.Snapshot()
	assert.False(t, s.Loading)
	assert.Equal(t, StateInitializing, s.State)

	require.NoError(t, m.Start(context.Background()))
	s = waitFor(t, m, isAuthenticated)
	assert.Equal(t, "u1", s.User.ID)
	assert.False(t, s.Loading)
}

func TestManager_StartRehydratesStoredSession(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "collaborator")

	require.NoError(t, m.Start(context.Background()))
	s := waitFor(t, m, isAuthenticated)
	assert.Equal(t, gate.RoleCollaborator, s.Role())
}

func TestManager_UnrecognizedRoleGoesToFallback(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "owner")

	require.NoError(t, m.Start(context.Background()))
	s := waitFor(t, m, isAuthenticated)
	assert.Equal(t, gate.RoleUnknown, s.Role())

	d, err := appGate(t).Check(s, "/clients")
	require.NoError(t, err)
	assert.Equal(t, gate.Redirect, d.Outcome)
	assert.Equal(t, "/dashboard", d.Path)
}

// Delivering the same session/profile pair twice changes nothing.
func TestManager_IdempotentTransitions(t *testing.T) {
	m, idp, profiles, logs := newLoggedManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "admin")

	require.NoError(t, m.Start(context.Background()))
	first := waitFor(t, m, isAuthenticated)

	updates, cancel := m.Subscribe()
	defer cancel()
	<-updates // current snapshot

	session := m.Session()
	for i := 0; i < 2; i++ {
		idp.emit(Event{Kind: EventTokenRefreshed, Session: session})
	}
	waitLogged(t, logs, "session state unchanged", 2)
	assert.Equal(t, 3, profiles.callsFor("u1"))

	select {
	case s := <-updates:
		t.Fatalf("unexpected state change: %+v", s)
	default:
	}
	assert.Equal(t, *first.User, *m.Snapshot().User)

	// Applying the exact same resolution directly is equally silent.
	res := resolution{seq: m.issued, kind: EventTokenRefreshed, session: session, profile: first.User}
	m.apply(res)
	m.apply(res)
	select {
	case s := <-updates:
		t.Fatalf("unexpected state change: %+v", s)
	default:
	}
}

// A lookup that completes after Close must not change anything.
func TestManager_NoMutationAfterClose(t *testing.T) {
	idp := newFakeIdentity()
	profiles := newFakeProfiles()
	idp.storeSession("u1")
	profiles.put("u1", "admin")
	release := profiles.hold("u1")
	defer release()

	logs := &logRecorder{}
	m := NewManager(idp, profiles, WithLogger(slog.New(logs)))
	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return profiles.callsFor("u1") == 1 }, waitTimeout, time.Millisecond)

	updates, _ := m.Subscribe()
	<-updates

	m.Close()
	assert.Zero(t, idp.subscribers(), "provider subscription must be released")

	release()
	waitLogged(t, logs, "dropping resolution after close", 1)

	s := m.Snapshot()
	assert.Equal(t, StateInitializing, s.State)
	assert.Nil(t, s.User)
	assert.Nil(t, m.Session())

	_, open := <-updates
	assert.False(t, open, "subscriber channel should be closed, not fed")
}

func TestManager_StaleProbeDropped(t *testing.T) {
	m, idp, profiles, logs := newLoggedManager(t)
	idp.storeSession("u-old")
	profiles.put("u-old", "client")
	idp.addAccount("b@x.com", "u-new", "pw")
	profiles.put("u-new", "admin")
	release := profiles.hold("u-old")
	defer release()

	require.NoError(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { return profiles.callsFor("u-old") == 1 }, waitTimeout, time.Millisecond)

	require.NoError(t, m.Login(context.Background(), "b@x.com", "pw"))
	s := waitFor(t, m, isAuthenticated)
	assert.Equal(t, "u-new", s.User.ID)

	release()
	waitLogged(t, logs, "dropping stale resolution", 1)
	assert.Equal(t, "u-new", m.Snapshot().User.ID)
}

func TestManager_IdentityMismatchNotOverwritten(t *testing.T) {
	m, idp, profiles, logs := newLoggedManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "collaborator")
	profiles.put("u2", "admin")

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, m, isAuthenticated)

	idp.emit(Event{Kind: EventTokenRefreshed, Session: &Session{UserID: "u2", AccessToken: "other"}})
	waitLogged(t, logs, "profile identity mismatch; keeping current profile", 1)
	assert.Equal(t, 1, profiles.callsFor("u2"))

	s := m.Snapshot()
	assert.Equal(t, "u1", s.User.ID)
	assert.Equal(t, gate.RoleCollaborator, s.Role())
}

func TestManager_TransportFailureKeepsEstablishedSession(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "admin")

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, m, isAuthenticated)

	profiles.setErr(errors.New("connection reset"))
	idp.emit(Event{Kind: EventTokenRefreshed, Session: m.Session()})

	s := waitFor(t, m, func(s Snapshot) bool { return s.Err != nil })
	assert.Equal(t, StateAuthenticated, s.State)
	assert.Equal(t, "u1", s.User.ID)
	assert.ErrorIs(t, s.Err, ErrTransport)
	assert.NotNil(t, m.Session())
}

func TestManager_RevocationSignsOut(t *testing.T) {
	m, idp, profiles := newTestManager(t)
	idp.storeSession("u1")
	profiles.put("u1", "admin")

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, m, isAuthenticated)

	idp.emit(Event{Kind: EventSignedOut})
	s := waitFor(t, m, func(s Snapshot) bool { return s.State == StateUnauthenticated })
	assert.Nil(t, s.User)
	assert.NoError(t, s.Err)
}

func TestManager_Signup(t *testing.T) {
	m, idp, _ := newTestManager(t)

	require.NoError(t, m.Signup(context.Background(), SignupRequest{
		Email: "new@x.com", Password: "long-enough", DisplayName: "Nova",
	}))
	assert.Equal(t, gate.RoleClient, idp.lastSignup.Role, "role should default to client")
	assert.Equal(t, "Nova", idp.lastSignup.DisplayName)
	assert.Equal(t, StateInitializing, m.Snapshot().State, "signup must not touch the session state")

	err := m.Signup(context.Background(), SignupRequest{Email: "new@x.com", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrEmailAlreadyInUse)

	idp.signUpErr = ErrWeakPassword
	err = m.Signup(context.Background(), SignupRequest{Email: "other@x.com", Password: "123"})
	assert.ErrorIs(t, err, ErrWeakPassword)

	idp.signUpErr = errors.New("boom")
	err = m.Signup(context.Background(), SignupRequest{Email: "other@x.com", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrSignupFailed)

	err = m.Signup(context.Background(), SignupRequest{Email: "x@x.com", Password: "pw", Role: gate.Role(9)})
	assert.ErrorIs(t, err, ErrSignupFailed)
}

func TestManager_StartTwice(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)

	m.Close()
	m.Close()
	assert.ErrorIs(t, m.Start(context.Background()), ErrClosed)
}

func TestManager_WaitForAfterClose(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.Close()
	_, err := m.WaitFor(context.Background(), func(s Snapshot) bool { return s.Authenticated() })
	assert.ErrorIs(t, err, ErrClosed)
}

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// fakeIdentity is an in-memory IdentityProvider that emits events the way
// the real SDK does: SignedIn after a successful sign-in, SignedOut after a
// successful sign-out.
type fakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]account // by email
	session  *Session
	subs     map[int]chan Event
	nextSub  int

	signInErr  error
	signUpErr  error
	signOutErr error
	getErr     error

	// probeGate, when set, holds GetSession until closed.
	probeGate chan struct{}
	// signInGate, when set, holds SignInWithPassword until closed.
	signInGate chan struct{}

	lastSignup SignupMetadata
}

type account struct {
	id       string
	password string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		accounts: make(map[string]account),
		subs:     make(map[int]chan Event),
	}
}

func (f *fakeIdentity) addAccount(email, id, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = account{id: id, password: password}
}

func (f *fakeIdentity) storeSession(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = &Session{UserID: userID, AccessToken: "stored-" + userID, ExpiresAt: time.Now().Add(time.Hour)}
}

func (f *fakeIdentity) SignInWithPassword(_ context.Context, email, password string) (*Session, error) {
	if f.signInGate != nil {
		<-f.signInGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		return nil, ErrInvalidCredentials
	}
	f.session = &Session{UserID: acc.id, AccessToken: "token-" + acc.id, ExpiresAt: time.Now().Add(time.Hour)}
	f.emitLocked(Event{Kind: EventSignedIn, Session: f.session})
	return f.session, nil
}

func (f *fakeIdentity) SignUp(_ context.Context, email, password string, meta SignupMetadata) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSignup = meta
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	if _, exists := f.accounts[email]; exists {
		return nil, ErrEmailAlreadyInUse
	}
	f.accounts[email] = account{id: "new-" + email, password: password}
	return nil, nil
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.session = nil
	f.emitLocked(Event{Kind: EventSignedOut})
	return nil
}

func (f *fakeIdentity) GetSession(context.Context) (*Session, error) {
	if f.probeGate != nil {
		<-f.probeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

func (f *fakeIdentity) OnSessionChange() (<-chan Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	ch := make(chan Event, 16)
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			close(c)
			delete(f.subs, id)
		}
	}
}

func (f *fakeIdentity) emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitLocked(ev)
}

func (f *fakeIdentity) emitLocked(ev Event) {
	for _, ch := range f.subs {
		ch <- ev
	}
}

func (f *fakeIdentity) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// fakeProfiles is an in-memory ProfileStore.
type fakeProfiles struct {
	mu    sync.Mutex
	rows  map[string]ProfileRow
	err   error
	gates map[string]chan struct{}
	calls map[string]int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		rows:  make(map[string]ProfileRow),
		gates: make(map[string]chan struct{}),
		calls: make(map[string]int),
	}
}

func (s *fakeProfiles) put(id, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id] = ProfileRow{ID: id, DisplayName: "User " + id, Email: id + "@studio.test", Role: role}
}

func (s *fakeProfiles) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// hold makes lookups for id block until the returned function is called.
func (s *fakeProfiles) hold(id string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := make(chan struct{})
	s.gates[id] = g
	var once sync.Once
	return func() { once.Do(func() { close(g) }) }
}

func (s *fakeProfiles) callsFor(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func (s *fakeProfiles) FindUserByID(_ context.Context, id string) (*ProfileRow, error) {
	s.mu.Lock()
	s.calls[id]++
	g := s.gates[id]
	s.mu.Unlock()
	if g != nil {
		<-g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// logRecorder is a slog.Handler that keeps record messages so tests can
// wait for a resolution to be applied or dropped.
type logRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *logRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *logRecorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, rec.Message)
	return nil
}

func (r *logRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *logRecorder) WithGroup(string) slog.Handler      { return r }

func (r *logRecorder) count(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m == msg {
			n++
		}
	}
	return n
}

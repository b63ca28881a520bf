package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/diewo77/studio-console/gate"
)

// Manager owns the session state of one running client. Create it once at
// the composition root and hand it to whatever needs to read or change the
// session.
//
// State only changes in response to provider events and the startup probe.
// Login and Logout call the provider and let the resulting event drive the
// transition.
type Manager struct {
	idp      IdentityProvider
	profiles ProfileStore
	log      *slog.Logger

	mu       sync.Mutex
	snap     Snapshot
	session  *Session
	started  bool
	closed   bool
	busy     int  // in-flight Login/Signup/Logout calls
	awaiting bool // a sign-in was accepted and its transition has not landed
	issued   uint64
	barrier  uint64 // seq of the last explicit event
	subs     map[int]chan Snapshot
	nextSub  int

	cancel      context.CancelFunc
	unsubscribe func()
	loop        sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager creates a manager in StateInitializing. Call Start to begin.
func NewManager(idp IdentityProvider, profiles ProfileStore, opts ...Option) *Manager {
	m := &Manager{
		idp:      idp,
		profiles: profiles,
		log:      slog.New(slog.DiscardHandler),
		subs:     make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to the provider and launches the startup probe. Both are
// registered before Start returns; neither is awaited.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	events, unsubscribe := m.idp.OnSessionChange()
	m.unsubscribe = unsubscribe
	m.issued++
	probeSeq := m.issued
	m.mu.Unlock()

	m.loop.Add(1)
	go m.watch(ctx, events)

	go func() { m.apply(m.probe(ctx, probeSeq)) }()
	return nil
}

// Close releases the provider subscription. Results that arrive afterwards
// are discarded and Snapshot keeps returning the last state. Subscriber
// channels are closed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	cancel, unsubscribe := m.cancel, m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	m.loop.Wait()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// Session returns a copy of the session behind the current state, nil when
// unauthenticated.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. Only the latest undelivered snapshot is kept. The returned
// function stops delivery and closes the channel.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		ch <- m.snap.clone()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snap.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if c, ok := m.subs[id]; ok {
				close(c)
				delete(m.subs, id)
			}
		})
	}
}

// WaitFor blocks until a snapshot satisfies cond, ctx is done or the manager
// is closed.
func (m *Manager) WaitFor(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	ch, cancel := m.Subscribe()
	defer cancel()
	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return m.Snapshot(), ErrClosed
			}
			if cond(s) {
				return s, nil
			}
		case <-ctx.Done():
			return m.Snapshot(), ctx.Err()
		}
	}
}

// Settled reports whether the manager left StateInitializing and has no
// pending operation. Use it with WaitFor.
func Settled(s Snapshot) bool {
	return s.Ready() && !s.Loading
}

// Login signs in with email and password. A nil error means the provider
// accepted the credentials; the Authenticated transition follows when the
// provider's SignedIn event has been resolved into a profile.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	start := m.begin()
	_, err := m.idp.SignInWithPassword(ctx, email, password)
	m.finish(start, err == nil)
	if err != nil {
		m.log.Info("login rejected", "email", email, "kind", Classify(err).String())
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrTransport) {
			return err
		}
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// Signup registers a new identity. It does not establish a session by
// itself; the backend creates the profile row for the new identity.
func (m *Manager) Signup(ctx context.Context, req SignupRequest) error {
	role := req.Role
	if role == gate.RoleUnknown {
		role = gate.RoleClient
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %w", ErrSignupFailed, gate.ErrUnknownRole)
	}

	start := m.begin()
	_, err := m.idp.SignUp(ctx, req.Email, req.Password, SignupMetadata{
		DisplayName: req.DisplayName,
		Role:        role,
	})
	m.finish(start, false)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmailAlreadyInUse), errors.Is(err, ErrWeakPassword), errors.Is(err, ErrSignupFailed):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrSignupFailed, err)
	}
}

// Logout signs out. When the provider fails the session and state are left
// untouched so the caller can retry.
func (m *Manager) Logout(ctx context.Context) error {
	start := m.begin()
	err := m.idp.SignOut(ctx)
	m.finish(start, false)
	if err != nil {
		m.log.Warn("logout failed", "error", err)
		return fmt.Errorf("%w: %w", ErrLogoutFailed, err)
	}
	return nil
}

func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy++
	m.refresh()
	return m.issued
}

// finish ends an operation started at seq start. A successful sign-in keeps
// Loading set until its transition lands, unless it already has. Before
// Start there is no event stream to land it, so Loading clears at once.
func (m *Manager) finish(start uint64, signedIn bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy--
	if signedIn && m.started && !m.closed && m.barrier <= start {
		m.awaiting = true
	}
	m.refresh()
}

// watch consumes provider events until ctx is cancelled or the stream ends.
func (m *Manager) watch(ctx context.Context, events <-chan Event) {
	defer m.loop.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handle(ctx, ev)
		}
	}
}

func (m *Manager) handle(ctx context.Context, ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.issued++
	seq := m.issued
	if ev.Kind.explicit() {
		m.barrier = seq
	}
	if ev.Kind == EventSignedIn {
		m.awaiting = true
		m.refresh()
	}
	m.mu.Unlock()

	m.log.Debug("session event", "event", ev.Kind.String(), "seq", seq)

	if ev.Kind == EventSignedOut || ev.Session == nil {
		m.apply(resolution{seq: seq, kind: ev.Kind})
		return
	}
	go func() { m.apply(m.resolve(ctx, seq, ev.Kind, ev.Session)) }()
}

// refresh republishes the snapshot after a change to busy or awaiting.
// Callers hold mu.
func (m *Manager) refresh() {
	if m.closed {
		return
	}
	next := m.snap
	next.Loading = m.busy > 0 || m.awaiting
	m.set(next)
}

// set stores next and notifies subscribers if it differs from the current
// snapshot. Callers hold mu.
func (m *Manager) set(next Snapshot) bool {
	if next.equal(m.snap) {
		return false
	}
	m.snap = next
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next.clone()
	}
	return true
}

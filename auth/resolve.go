package auth

import (
	"context"
	"errors"
	"fmt"
)

// resolution is the outcome of turning one credential signal into a state.
type resolution struct {
	seq     uint64
	kind    EventKind
	session *Session
	profile *UserProfile
	err     error
}

// probe checks for a stored session at startup.
func (m *Manager) probe(ctx context.Context, seq uint64) resolution {
	session, err := m.idp.GetSession(ctx)
	if err != nil {
		return resolution{seq: seq, kind: EventInitialSession, err: transportError("probe session", err)}
	}
	if session == nil {
		return resolution{seq: seq, kind: EventInitialSession}
	}
	return m.resolve(ctx, seq, EventInitialSession, session)
}

func (m *Manager) resolve(ctx context.Context, seq uint64, kind EventKind, session *Session) resolution {
	res := resolution{seq: seq, kind: kind, session: session}
	res.profile, res.err = m.resolveProfile(ctx, session.UserID)
	if res.err == nil && res.profile == nil {
		res.err = ErrProfileMissing
	}
	return res
}

// resolveProfile performs a single lookup. A missing row is (nil, nil); only
// store failures are errors.
func (m *Manager) resolveProfile(ctx context.Context, userID string) (*UserProfile, error) {
	row, err := m.profiles.FindUserByID(ctx, userID)
	if err != nil {
		return nil, transportError("resolve profile", err)
	}
	if row == nil {
		m.log.Warn("no profile row for session", "user_id", userID)
		return nil, nil
	}
	p := row.Profile()
	if !p.Role.Valid() {
		m.log.Warn("unrecognized role on profile", "user_id", userID, "role", row.Role)
	}
	return &p, nil
}

func transportError(op string, err error) error {
	if errors.Is(err, ErrTransport) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// apply folds a resolution into the state. It is the only place the
// session/profile pair changes.
func (m *Manager) apply(res resolution) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		m.log.Debug("dropping resolution after close", "seq", res.seq)
		return
	}
	if res.seq < m.barrier {
		m.log.Debug("dropping stale resolution", "seq", res.seq, "barrier", m.barrier)
		return
	}
	if res.kind.explicit() || res.seq == m.barrier {
		m.awaiting = false
	}

	prev := m.snap
	next := Snapshot{Loading: m.busy > 0 || m.awaiting}
	session := res.session

	switch {
	case res.err == nil && res.profile == nil:
		next.State = StateUnauthenticated
		session = nil

	case res.err != nil && m.keepOnTransportFailure(res, prev):
		m.log.Warn("profile refresh failed; keeping session", "user_id", res.session.UserID, "error", res.err)
		next.State = prev.State
		next.User = prev.User
		next.Err = res.err
		session = m.session

	case res.err != nil:
		m.log.Info("session rejected", "event", res.kind.String(), "kind", Classify(res.err).String(), "error", res.err)
		next.State = StateUnauthenticated
		next.Err = res.err
		session = nil

	default:
		if prev.Authenticated() && prev.User.ID != res.profile.ID && !res.kind.explicit() && res.kind != EventUserUpdated {
			m.log.Error("profile identity mismatch; keeping current profile",
				"event", res.kind.String(), "current", prev.User.ID, "incoming", res.profile.ID)
			m.refresh()
			return
		}
		next.State = StateAuthenticated
		next.User = res.profile
	}

	m.session = session
	if m.set(next) {
		m.log.Info("session state changed", "from", prev.State.String(), "to", next.State.String(), "event", res.kind.String())
	} else {
		m.log.Debug("session state unchanged", "event", res.kind.String(), "seq", res.seq)
	}
}

// keepOnTransportFailure reports whether a failed lookup should leave an
// established session alone: a background signal for the user that is
// already signed in must not log them out because the backend was
// unreachable.
func (m *Manager) keepOnTransportFailure(res resolution, prev Snapshot) bool {
	return errors.Is(res.err, ErrTransport) &&
		!errors.Is(res.err, ErrProfileMissing) &&
		!res.kind.explicit() &&
		res.session != nil &&
		prev.Authenticated() &&
		prev.User.ID == res.session.UserID
}

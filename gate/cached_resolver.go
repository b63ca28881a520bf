package gate

import (
	"context"
	"sync"
	"time"
)

// CachedResolver keeps resolved profiles for a fixed TTL. Concurrent misses
// for the same user share one lookup. Missing profiles and errors are not
// cached, and a lookup that was in flight when the user was invalidated does
// not populate the cache.
type CachedResolver[U comparable] struct {
	inner   ProfileResolver[U]
	ttl     time.Duration
	now     func() time.Time
	observe func(hit bool)

	mu       sync.Mutex
	entries  map[U]cacheEntry
	inflight map[U]*lookup
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

type lookup struct {
	done    chan struct{}
	profile Profile
	err     error
}

// NewCachedResolver wraps inner, keeping profiles for ttl.
func NewCachedResolver[U comparable](inner ProfileResolver[U], ttl time.Duration) *CachedResolver[U] {
	return &CachedResolver[U]{
		inner:    inner,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[U]cacheEntry),
		inflight: make(map[U]*lookup),
	}
}

// OnLookup registers a callback told whether each lookup was served without
// calling the inner resolver.
func (r *CachedResolver[U]) OnLookup(fn func(hit bool)) *CachedResolver[U] {
	r.observe = fn
	return r
}

func (r *CachedResolver[U]) Resolve(ctx context.Context, user U) (Profile, error) {
	r.mu.Lock()
	if e, ok := r.entries[user]; ok && r.now().Before(e.expiresAt) {
		r.mu.Unlock()
		r.record(true)
		return e.profile, nil
	}
	if l, ok := r.inflight[user]; ok {
		r.mu.Unlock()
		r.record(true)
		return l.wait(ctx)
	}
	l := &lookup{done: make(chan struct{})}
	r.inflight[user] = l
	r.mu.Unlock()
	r.record(false)

	// The lookup is shared, so no single caller's cancellation ends it.
	go r.fetch(context.WithoutCancel(ctx), user, l)
	return l.wait(ctx)
}

func (r *CachedResolver[U]) fetch(ctx context.Context, user U, l *lookup) {
	l.profile, l.err = r.inner.Resolve(ctx, user)

	r.mu.Lock()
	if r.inflight[user] == l {
		delete(r.inflight, user)
		if l.err == nil && l.profile != nil {
			r.entries[user] = cacheEntry{profile: l.profile, expiresAt: r.now().Add(r.ttl)}
		}
	}
	r.mu.Unlock()
	close(l.done)
}

func (l *lookup) wait(ctx context.Context) (Profile, error) {
	select {
	case <-l.done:
		return l.profile, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached profile for user. Call it when the user's role
// changes.
func (r *CachedResolver[U]) Invalidate(user U) {
	r.mu.Lock()
	delete(r.entries, user)
	delete(r.inflight, user)
	r.mu.Unlock()
}

// InvalidateAll drops every cached profile.
func (r *CachedResolver[U]) InvalidateAll() {
	r.mu.Lock()
	r.entries = make(map[U]cacheEntry)
	r.inflight = make(map[U]*lookup)
	r.mu.Unlock()
}

// Len is the number of cached profiles, expired ones included.
func (r *CachedResolver[U]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *CachedResolver[U]) record(hit bool) {
	if r.observe != nil {
		r.observe(hit)
	}
}

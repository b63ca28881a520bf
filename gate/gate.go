// Package gate is the access guard of the console: a closed role set, static
// per-route access policies and a pure decision function over the current
// session. The package has no dependency on how sessions are obtained; any
// type implementing Viewer can be checked.
package gate

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Gate is the route table. Register a policy per path, then call Check with
// the viewer and the requested location. Lookups match the longest registered
// path prefix on a segment boundary, so "/clients" also covers "/clients/42".
type Gate struct {
	mu     sync.RWMutex
	routes map[string]AccessPolicy
}

// NewGate creates an empty Gate ready to register routes.
func NewGate() *Gate {
	return &Gate{routes: make(map[string]AccessPolicy)}
}

// Register adds a policy for path. Overwrites any existing policy for it.
func (g *Gate) Register(path string, p AccessPolicy) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.routes[clean] = p
	g.mu.Unlock()
	return nil
}

// PolicyFor returns the policy governing location.
// Returns ErrNoPolicyDefined when no registered path covers it.
func (g *Gate) PolicyFor(location string) (AccessPolicy, error) {
	path, err := cleanPath(location)
	if err != nil {
		return AccessPolicy{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for candidate := path; ; candidate = parent(candidate) {
		if p, ok := g.routes[candidate]; ok {
			return p, nil
		}
		if candidate == "/" {
			break
		}
	}
	return AccessPolicy{}, fmt.Errorf("%w: %s", ErrNoPolicyDefined, path)
}

// Check decides what to do with a navigation to location.
// Login redirects carry the requested location in Decision.From.
func (g *Gate) Check(v Viewer, location string) (Decision, error) {
	p, err := g.PolicyFor(location)
	if err != nil {
		return Decision{}, err
	}
	d := Decide(v, p)
	if d.RememberOrigin {
		d.From = location
	}
	return d, nil
}

// Authorize is Check expressed as an error: nil means render.
func (g *Gate) Authorize(v Viewer, location string) error {
	d, err := g.Check(v, location)
	if err != nil {
		return err
	}
	switch {
	case d.Outcome == ShowLoading:
		return ErrNotReady
	case d.Outcome == Redirect && d.RememberOrigin:
		return ErrUnauthenticated
	case d.Outcome == Redirect:
		return ErrUnauthorized
	}
	return nil
}

// Can is a convenience wrapper returning bool instead of error.
func (g *Gate) Can(v Viewer, location string) bool {
	return g.Authorize(v, location) == nil
}

// Routes lists the registered paths in lexical order.
func (g *Gate) Routes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	paths := make([]string, 0, len(g.routes))
	for p := range g.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// cleanPath strips query and fragment and any trailing slash.
func cleanPath(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse location %q: %w", location, err)
	}
	path := u.Path
	if !strings.HasPrefix(path, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoutePath, location)
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path, nil
}

func parent(path string) string {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

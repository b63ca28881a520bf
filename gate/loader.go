package gate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RouteFile is the YAML layout of a route policy file:
//
//	login_path: /login
//	fallback_path: /dashboard
//	routes:
//	  - path: /clients
//	    roles: [admin]
type RouteFile struct {
	LoginPath    string      `yaml:"login_path"`
	FallbackPath string      `yaml:"fallback_path"`
	Routes       []RouteSpec `yaml:"routes"`
}

// RouteSpec is one entry of a RouteFile. Empty redirect paths inherit the
// file-level ones.
type RouteSpec struct {
	Path         string   `yaml:"path"`
	Roles        []string `yaml:"roles"`
	LoginPath    string   `yaml:"login_path,omitempty"`
	FallbackPath string   `yaml:"fallback_path,omitempty"`
}

// LoadFile reads a route policy file and registers its routes on g,
// overriding existing entries with the same path.
func (g *Gate) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read route file: %w", err)
	}
	return g.LoadYAML(data)
}

// LoadYAML registers the routes described by data. Nothing is registered if
// any entry is invalid.
func (g *Gate) LoadYAML(data []byte) error {
	var file RouteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("unmarshal route file: %w", err)
	}

	policies := make(map[string]AccessPolicy, len(file.Routes))
	for _, r := range file.Routes {
		p := AccessPolicy{
			FallbackPath: firstNonEmpty(r.FallbackPath, file.FallbackPath, DefaultFallbackPath),
			LoginPath:    firstNonEmpty(r.LoginPath, file.LoginPath, DefaultLoginPath),
		}
		for _, name := range r.Roles {
			role := ParseRole(name)
			if !role.Valid() {
				return fmt.Errorf("route %s: %w: %q", r.Path, ErrUnknownRole, name)
			}
			p.AllowedRoles = append(p.AllowedRoles, role)
		}
		clean, err := cleanPath(r.Path)
		if err != nil {
			return err
		}
		policies[clean] = p
	}

	g.mu.Lock()
	for path, p := range policies {
		g.routes[path] = p
	}
	g.mu.Unlock()
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

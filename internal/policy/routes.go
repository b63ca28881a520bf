package policy

import (
	"fmt"

	"github.com/diewo77/studio-console/gate"
)

type route struct {
	path  string
	label string
	roles []gate.Role // nil: every role
}

var agencyRoutes = []route{
	{"/dashboard", "Dashboard", nil},
	{"/tasks", "Tasks", []gate.Role{gate.RoleCollaborator, gate.RoleAdmin}},
	{"/calendar", "Calendar", []gate.Role{gate.RoleCollaborator, gate.RoleAdmin}},
	{"/projects", "Projects", nil},
	{"/clients", "Clients", []gate.Role{gate.RoleAdmin}},
	{"/prospects", "Prospects", []gate.Role{gate.RoleAdmin}},
	{"/messages", "Messages", nil},
	{"/notifications", "Notifications", nil},
	{"/team", "Team", []gate.Role{gate.RoleAdmin}},
	{"/settings", "Settings", nil},
}

// NavItems is the side navigation in display order.
func NavItems() []gate.NavItem {
	items := make([]gate.NavItem, len(agencyRoutes))
	for i, r := range agencyRoutes {
		items[i] = gate.NavItem{Label: r.label, Path: r.path}
	}
	return items
}

// DefaultRoutes returns the console's route table.
func DefaultRoutes() *gate.Gate {
	g := gate.NewGate()
	for _, r := range agencyRoutes {
		p := gate.AllowAll()
		if r.roles != nil {
			p = gate.Allow(r.roles...)
		}
		if err := g.Register(r.path, p); err != nil {
			panic(fmt.Sprintf("policy: register %s: %v", r.path, err))
		}
	}
	return g
}

// LoadRoutes returns DefaultRoutes with the entries of the YAML file at path
// applied on top. An empty path returns the defaults.
func LoadRoutes(path string) (*gate.Gate, error) {
	g := DefaultRoutes()
	if path == "" {
		return g, nil
	}
	if err := g.LoadFile(path); err != nil {
		return nil, err
	}
	return g, nil
}

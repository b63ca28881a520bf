package gate

// NavItem is one entry of the side navigation.
type NavItem struct {
	Label string `yaml:"label" json:"label"`
	Path  string `yaml:"path" json:"path"`
}

// Visible filters items down to those the viewer may open. Items without a
// registered policy are hidden.
func (g *Gate) Visible(v Viewer, items []NavItem) []NavItem {
	out := make([]NavItem, 0, len(items))
	for _, item := range items {
		if g.Can(v, item.Path) {
			out = append(out, item)
		}
	}
	return out
}

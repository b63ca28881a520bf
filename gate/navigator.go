package gate

// Navigator is the router the guard hands its redirects to. Replace must not
// leave the denied location in history; from is the location to return to
// after login, empty when there is none.
type Navigator interface {
	Replace(path, from string)
}

// Guard checks location and performs any redirect on nav. It reports whether
// the caller should render location.
func (g *Gate) Guard(v Viewer, location string, nav Navigator) (Decision, error) {
	d, err := g.Check(v, location)
	if err != nil {
		return d, err
	}
	if d.Outcome == Redirect {
		nav.Replace(d.Path, d.From)
	}
	return d, nil
}

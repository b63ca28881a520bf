package console

import (
	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/internal/client"
)

// navigator applies guard redirects for a one-shot command: the denied
// location is replaced rather than visited, and a login redirect stores its
// origin so the next login can return there.
type navigator struct {
	client   *client.Client
	location string
	err      error
}

var _ gate.Navigator = (*navigator)(nil)

func (n *navigator) Replace(path, from string) {
	n.location = path
	if from != "" {
		n.err = n.client.SetReturnTo(from)
	}
}

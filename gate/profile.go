package gate

import "context"

// Profile is the role-bearing identity the server resolves for a request.
type Profile interface {
	Subject() string
	Name() string
	Role() Role
}

// ProfileResolver resolves a user to their profile.
// A nil profile with a nil error means the user has no profile row.
type ProfileResolver[U any] interface {
	Resolve(ctx context.Context, user U) (Profile, error)
}

// ResolverFunc adapts a function to ProfileResolver.
type ResolverFunc[U any] func(ctx context.Context, user U) (Profile, error)

func (f ResolverFunc[U]) Resolve(ctx context.Context, user U) (Profile, error) {
	return f(ctx, user)
}

// Member is a Profile held by value.
type Member struct {
	id   string
	name string
	role Role
}

// NewMember builds a profile for subject with the given display name and role.
func NewMember(subject, name string, role Role) Member {
	return Member{id: subject, name: name, role: role}
}

func (m Member) Subject() string { return m.id }
func (m Member) Name() string    { return m.name }
func (m Member) Role() Role      { return m.role }

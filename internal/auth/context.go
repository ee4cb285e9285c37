package auth

import (
	"context"
	"strconv"
)

type Kind string

const (
	KindMember    Kind = "member"
	KindAdmin     Kind = "admin"
	KindAdminUser Kind = "admin_user"
	KindSystem    Kind = "system"
)

// Actor identifies who performed a write. It is resolved once when a request
// is authenticated and recorded on rows as Ref().
type Actor struct {
	Kind Kind
	ID   int64
	Name string
}

func Member(id int64) Actor {
	return Actor{Kind: KindMember, ID: id}
}

func System(name string) Actor {
	return Actor{Kind: KindSystem, Name: name}
}

// Ref renders the actor as "<kind>:<id>", or "system:<name>" for system actors.
func (a Actor) Ref() string {
	if a.Kind == KindSystem {
		return string(a.Kind) + ":" + a.Name
	}
	return string(a.Kind) + ":" + strconv.FormatInt(a.ID, 10)
}

// IsAdmin reports whether the actor may take attendance for other members.
func (a Actor) IsAdmin() bool {
	return a.Kind == KindAdmin || a.Kind == KindAdminUser
}

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

// Package auth models who is making a request and how their passwords are
// stored.
package auth

import "context"

// Kind tags a Principal.
type Kind int

const (
	KindAnonymous Kind = iota
	KindCustomer
	KindAdministrator
)

func (k Kind) String() string {
	switch k {
	case KindCustomer:
		return "customer"
	case KindAdministrator:
		return "administrator"
	default:
		return "anonymous"
	}
}

// Principal is the caller of a request: anonymous, a customer or an
// administrator. The zero value is Anonymous.
type Principal struct {
	kind Kind
	id   string
}

// Anonymous returns the unauthenticated principal.
func Anonymous() Principal {
	return Principal{}
}

// Customer returns an authenticated customer identified by id.
func Customer(id string) Principal {
	return Principal{kind: KindCustomer, id: id}
}

// Administrator returns an authenticated administrator identified by id.
func Administrator(id string) Principal {
	return Principal{kind: KindAdministrator, id: id}
}

func (p Principal) Kind() Kind { return p.kind }

// ID is empty for Anonymous.
func (p Principal) ID() string { return p.id }

func (p Principal) IsAuthenticated() bool { return p.kind != KindAnonymous }

func (p Principal) IsAdministrator() bool { return p.kind == KindAdministrator }

func (p Principal) String() string {
	if p.kind == KindAnonymous {
		return p.kind.String()
	}
	return p.kind.String() + ":" + p.id
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx, or Anonymous.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(contextKey{}).(Principal)
	return p
}

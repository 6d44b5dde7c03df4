package identity

import "context"

// Principal is the authenticated identity handed to route logic.
// It never carries the password hash or any token material.
type Principal struct {
	UserID        string
	Email         string
	Name          *string
	EmailVerified bool
	Roles         RoleSet
}

// Project strips credential fields from u.
func Project(u User) Principal {
	var name *string
	if u.Name != nil {
		n := *u.Name
		name = &n
	}
	return Principal{
		UserID:        u.ID,
		Email:         u.Email,
		Name:          name,
		EmailVerified: u.EmailVerifiedAt != nil,
		Roles:         NewRoleSet(u.Roles...),
	}
}

// HasRole reports whether p holds r.
func (p Principal) HasRole(r RoleName) bool {
	return p.Roles.Has(r)
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached by WithPrincipal.
// ok=false means the request is anonymous.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}

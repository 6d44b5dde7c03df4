package identity

import "sort"

// RoleName is the closed set of capability tags a user may hold.
type RoleName string

const (
	// RoleUser is the unprivileged role every account receives at registration.
	RoleUser RoleName = "USER"
	// RoleAdmin gates content-management and account-administration endpoints.
	RoleAdmin RoleName = "ADMIN"
)

// DefaultRole is assigned by CreateUser.
const DefaultRole = RoleUser

// AllRoles lists every known role name in a stable order.
func AllRoles() []RoleName {
	return []RoleName{RoleAdmin, RoleUser}
}

// Valid reports whether r is a known role.
func (r RoleName) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRoleName maps a stored or user-supplied string onto a RoleName.
func ParseRoleName(s string) (RoleName, error) {
	r := RoleName(s)
	if !r.Valid() {
		return "", invalid("identity.ParseRoleName", "unknown role "+s)
	}
	return r, nil
}

// RoleSet is an unordered set of role names.
type RoleSet map[RoleName]struct{}

// NewRoleSet builds a set from names, ignoring unknown ones.
func NewRoleSet(names ...RoleName) RoleSet {
	set := make(RoleSet, len(names))
	for _, n := range names {
		if n.Valid() {
			set[n] = struct{}{}
		}
	}
	return set
}

// Has reports set membership.
func (s RoleSet) Has(r RoleName) bool {
	_, ok := s[r]
	return ok
}

// Sorted returns the members in lexical order.
func (s RoleSet) Sorted() []RoleName {
	out := make([]RoleName, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// parseStoredRoles drops names the binary does not know; an unknown role grants nothing.
func parseStoredRoles(raw []string) []RoleName {
	out := make([]RoleName, 0, len(raw))
	for _, s := range raw {
		if r := RoleName(s); r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

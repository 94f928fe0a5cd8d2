// Package role defines the fixed, totally-ordered permission hierarchy every
// access decision funnels through. It is pure: no I/O, no clock, no state, so
// the storage layer's row policies can mirror its semantics exactly.
package role

// Role is a permission level held by a user within their team.
type Role string

const (
	Member     Role = "member"
	Admin      Role = "admin"
	Owner      Role = "owner"
	SuperAdmin Role = "super_admin"
)

// Rank maps a role onto the total order member < admin < owner < super_admin.
// Unknown roles rank 0 and never satisfy any requirement.
func (r Role) Rank() int {
	switch r {
	case Member:
		return 1
	case Admin:
		return 2
	case Owner:
		return 3
	case SuperAdmin:
		return 4
	default:
		return 0
	}
}

// Known reports whether r is one of the four defined roles.
func (r Role) Known() bool {
	return r.Rank() > 0
}

// Satisfies reports whether r meets the required level. With strict set, only
// an exact match passes; otherwise any rank at or above the requirement does.
// An unknown role on either side fails closed.
func (r Role) Satisfies(required Role, strict bool) bool {
	if !r.Known() || !required.Known() {
		return false
	}
	if strict {
		return r == required
	}
	return r.Rank() >= required.Rank()
}

// Parse returns the Role for raw, reporting whether it is a known role.
func Parse(raw string) (Role, bool) {
	r := Role(raw)
	return r, r.Known()
}

// All lists the defined roles in ascending rank order.
func All() []Role {
	return []Role{Member, Admin, Owner, SuperAdmin}
}

// Assignable reports whether a role may be granted through the team
// membership API. SuperAdmin is operator-granted and never team-managed.
func Assignable(r Role) bool {
	switch r {
	case Member, Admin, Owner:
		return true
	default:
		return false
	}
}

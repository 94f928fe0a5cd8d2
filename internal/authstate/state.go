package authstate

import (
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	profiledomain "github.com/smallbiznis/teamauth/internal/profile/domain"
	"github.com/smallbiznis/teamauth/internal/role"
	teamdomain "github.com/smallbiznis/teamauth/internal/team/domain"
)

// Status is the lifecycle of an aggregated auth snapshot. A store starts
// Loading exactly once and then only ever moves between Authenticated and
// Unauthenticated.
type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
)

// AuthState is an immutable snapshot of everything downstream access
// decisions need about the requester. Fields are replaced together, never
// piecemeal, so a reader can never observe a session from one load and a
// membership from another.
type AuthState struct {
	// Generation increases on every replacement. Readers can compare
	// generations to detect staleness across await points.
	Generation uint64

	Status     Status
	Session    *identitydomain.Session
	User       *identitydomain.User
	Profile    *profiledomain.Profile
	Membership *teamdomain.Membership
	Members    []teamdomain.TeamMember
}

// SignedIn reports whether the snapshot carries a live session.
func (s AuthState) SignedIn() bool {
	return s.Status == StatusAuthenticated && s.Session != nil
}

// HasTeam reports whether the requester belongs to a team.
func (s AuthState) HasTeam() bool {
	return s.Membership != nil
}

// Role resolves the requester's effective role. An operator-granted
// system role outranks any team role; without a team membership the
// result is the empty Role, which ranks 0 and satisfies nothing.
func (s AuthState) Role() role.Role {
	if s.User != nil && role.Role(s.User.SystemRole) == role.SuperAdmin {
		return role.SuperAdmin
	}
	if s.Membership != nil {
		return s.Membership.Role
	}
	return ""
}

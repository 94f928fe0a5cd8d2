package domain

import "errors"

var (
	ErrInvalidName       = errors.New("team name is required")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrTeamNotFound      = errors.New("team not found")
	ErrNotMember         = errors.New("user is not a member of any team")
	ErrMemberNotFound    = errors.New("team member not found")
	ErrAlreadyMember     = errors.New("user is already a team member")
	ErrAlreadyInTeam     = errors.New("user already belongs to a team")
	ErrLastOwner         = errors.New("team must retain at least one owner")
	ErrRoleNotAssignable = errors.New("role cannot be assigned to team members")
	ErrInviteNotFound    = errors.New("invite not found")
	ErrInviteExpired     = errors.New("invite has expired")
	ErrInviteNotPending  = errors.New("invite is no longer pending")
)

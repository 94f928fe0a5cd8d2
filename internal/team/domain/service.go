package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/role"
)

type CreateTeamRequest struct {
	Name string `json:"name"`
}

type InviteRequest struct {
	Email string    `json:"email"`
	Role  role.Role `json:"role"`
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateTeamRequest) (*Team, error)
	Get(ctx context.Context, teamID snowflake.ID) (*Team, error)

	// MembershipForUser returns the caller's team membership, or
	// ErrNotMember when the user has no team. The auth state aggregator
	// treats ErrNotMember as a valid signed-in-without-team state.
	MembershipForUser(ctx context.Context, userID snowflake.ID) (*Membership, error)

	ListMembers(ctx context.Context, teamID snowflake.ID) ([]TeamMember, error)
	UpdateMemberRole(ctx context.Context, teamID, userID snowflake.ID, newRole role.Role) (*TeamMember, error)
	RemoveMember(ctx context.Context, teamID, userID snowflake.ID) error
	TransferOwnership(ctx context.Context, teamID, fromUserID, toUserID snowflake.ID) error

	Invite(ctx context.Context, teamID snowflake.ID, req InviteRequest) (*TeamInvite, error)
	AcceptInvite(ctx context.Context, userID snowflake.ID, code string) (*Membership, error)
	RevokeInvite(ctx context.Context, teamID, inviteID snowflake.ID) error
	ListInvites(ctx context.Context, teamID snowflake.ID) ([]TeamInvite, error)
}

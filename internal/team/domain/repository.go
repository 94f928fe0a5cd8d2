package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/role"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTeam(ctx context.Context, team Team) error
	FindTeam(ctx context.Context, teamID snowflake.ID) (*Team, error)
	FindTeamBySlug(ctx context.Context, slug string) (*Team, error)

	AddMember(ctx context.Context, member TeamMember) error
	FindMember(ctx context.Context, teamID, userID snowflake.ID) (*TeamMember, error)
	UpdateMemberRole(ctx context.Context, teamID, userID snowflake.ID, newRole role.Role) error
	RemoveMember(ctx context.Context, teamID, userID snowflake.ID) error
	ListMembers(ctx context.Context, teamID snowflake.ID) ([]TeamMember, error)
	CountByRole(ctx context.Context, teamID snowflake.ID, r role.Role) (int64, error)

	// MembershipForUser resolves the user's team membership joined with
	// the team row. Returns ErrNotMember when the user belongs to no team.
	MembershipForUser(ctx context.Context, userID snowflake.ID) (*Membership, error)

	CreateInvite(ctx context.Context, invite TeamInvite) error
	FindInvite(ctx context.Context, inviteID snowflake.ID) (*TeamInvite, error)
	FindInviteByCode(ctx context.Context, code string) (*TeamInvite, error)
	UpdateInvite(ctx context.Context, invite TeamInvite) error
	ListInvites(ctx context.Context, teamID snowflake.ID) ([]TeamInvite, error)
}

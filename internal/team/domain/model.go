package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/role"
)

type Team struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"size:255;not null" json:"name"`
	Slug      string       `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (Team) TableName() string {
	return "teams"
}

type TeamMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TeamID    snowflake.ID `gorm:"uniqueIndex:idx_team_members_team_user;not null" json:"team_id"`
	UserID    snowflake.ID `gorm:"uniqueIndex:idx_team_members_team_user;index;not null" json:"user_id"`
	Role      role.Role    `gorm:"size:32;not null" json:"role"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (TeamMember) TableName() string {
	return "team_members"
}

type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteRevoked  InviteStatus = "REVOKED"
)

type TeamInvite struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TeamID    snowflake.ID `gorm:"index;not null" json:"team_id"`
	Email     string       `gorm:"size:320;not null" json:"email"`
	Role      role.Role    `gorm:"size:32;not null" json:"role"`
	Code      string       `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Status    InviteStatus `gorm:"size:16;not null" json:"status"`
	ExpiresAt time.Time    `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (TeamInvite) TableName() string {
	return "team_invites"
}

// Membership is the flattened team view handed to the auth state
// aggregator and the guard: the team the user belongs to plus their
// role within it.
type Membership struct {
	TeamID   snowflake.ID `json:"team_id"`
	TeamName string       `json:"team_name"`
	TeamSlug string       `json:"team_slug"`
	UserID   snowflake.ID `json:"user_id"`
	Role     role.Role    `json:"role"`
}

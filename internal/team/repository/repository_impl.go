package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/role"
	"github.com/smallbiznis/teamauth/internal/team/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) WithTx(tx *gorm.DB) domain.Repository {
	return &repo{db: tx}
}

func (r *repo) CreateTeam(ctx context.Context, team domain.Team) error {
	return r.db.WithContext(ctx).Create(&team).Error
}

func (r *repo) FindTeam(ctx context.Context, teamID snowflake.ID) (*domain.Team, error) {
	var team domain.Team
	err := r.db.WithContext(ctx).Where("id = ?", teamID).First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

func (r *repo) FindTeamBySlug(ctx context.Context, slug string) (*domain.Team, error) {
	var team domain.Team
	err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&team).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTeamNotFound
		}
		return nil, err
	}
	return &team, nil
}

func (r *repo) AddMember(ctx context.Context, member domain.TeamMember) error {
	return r.db.WithContext(ctx).Create(&member).Error
}

func (r *repo) FindMember(ctx context.Context, teamID, userID snowflake.ID) (*domain.TeamMember, error) {
	var member domain.TeamMember
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (r *repo) UpdateMemberRole(ctx context.Context, teamID, userID snowflake.ID, newRole role.Role) error {
	result := r.db.WithContext(ctx).Model(&domain.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Update("role", newRole)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repo) RemoveMember(ctx context.Context, teamID, userID snowflake.ID) error {
	result := r.db.WithContext(ctx).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Delete(&domain.TeamMember{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (r *repo) ListMembers(ctx context.Context, teamID snowflake.ID) ([]domain.TeamMember, error) {
	var members []domain.TeamMember
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

func (r *repo) CountByRole(ctx context.Context, teamID snowflake.ID, rr role.Role) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.TeamMember{}).
		Where("team_id = ? AND role = ?", teamID, rr).
		Count(&count).Error
	return count, err
}

func (r *repo) MembershipForUser(ctx context.Context, userID snowflake.ID) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Table("team_members").
		Select("team_members.team_id, teams.name AS team_name, teams.slug AS team_slug, team_members.user_id, team_members.role").
		Joins("JOIN teams ON teams.id = team_members.team_id").
		Where("team_members.user_id = ?", userID).
		Order("team_members.created_at ASC").
		Limit(1).
		Scan(&membership).Error
	if err != nil {
		return nil, err
	}
	if membership.TeamID == 0 {
		return nil, domain.ErrNotMember
	}
	return &membership, nil
}

func (r *repo) CreateInvite(ctx context.Context, invite domain.TeamInvite) error {
	return r.db.WithContext(ctx).Create(&invite).Error
}

func (r *repo) FindInvite(ctx context.Context, inviteID snowflake.ID) (*domain.TeamInvite, error) {
	var invite domain.TeamInvite
	err := r.db.WithContext(ctx).Where("id = ?", inviteID).First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func (r *repo) FindInviteByCode(ctx context.Context, code string) (*domain.TeamInvite, error) {
	var invite domain.TeamInvite
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, err
	}
	return &invite, nil
}

func (r *repo) UpdateInvite(ctx context.Context, invite domain.TeamInvite) error {
	return r.db.WithContext(ctx).Save(&invite).Error
}

func (r *repo) ListInvites(ctx context.Context, teamID snowflake.ID) ([]domain.TeamInvite, error) {
	var invites []domain.TeamInvite
	err := r.db.WithContext(ctx).
		Where("team_id = ?", teamID).
		Order("created_at DESC").
		Find(&invites).Error
	return invites, err
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/teamauth/internal/clock"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/role"
	"github.com/smallbiznis/teamauth/internal/team/domain"
	"github.com/smallbiznis/teamauth/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const inviteTTL = 7 * 24 * time.Hour

type Service struct {
	log      *zap.Logger
	db       *gorm.DB
	repo     domain.Repository
	identity identitydomain.Provider
	clk      clock.Clock
	genID    *snowflake.Node
}

func New(
	log *zap.Logger,
	gdb *gorm.DB,
	repo domain.Repository,
	identity identitydomain.Provider,
	clk clock.Clock,
	genID *snowflake.Node,
) domain.Service {
	return &Service{
		log:      log.Named("team.service"),
		db:       gdb,
		repo:     repo,
		identity: identity,
		clk:      clk,
		genID:    genID,
	}
}

func (s *Service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateTeamRequest) (*domain.Team, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clk.Now()
	teamID := s.genID.Generate()
	team := domain.Team{
		ID:        teamID,
		Name:      name,
		Slug:      slug.Make(name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.requireNoTeam(ctx, repo, userID); err != nil {
			return err
		}
		if err := repo.CreateTeam(ctx, team); err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return err
			}
			// Slug collision with an existing team name.
			team.Slug = fmt.Sprintf("%s-%s", team.Slug, teamID.String()[len(teamID.String())-6:])
			if err := repo.CreateTeam(ctx, team); err != nil {
				return err
			}
		}

		member := domain.TeamMember{
			ID:        s.genID.Generate(),
			TeamID:    teamID,
			UserID:    userID,
			Role:      role.Owner,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return repo.AddMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("team created",
		zap.String("team_id", teamID.String()),
		zap.String("owner_user_id", userID.String()),
	)
	return &team, nil
}

func (s *Service) Get(ctx context.Context, teamID snowflake.ID) (*domain.Team, error) {
	return s.repo.FindTeam(ctx, teamID)
}

func (s *Service) MembershipForUser(ctx context.Context, userID snowflake.ID) (*domain.Membership, error) {
	return s.repo.MembershipForUser(ctx, userID)
}

func (s *Service) ListMembers(ctx context.Context, teamID snowflake.ID) ([]domain.TeamMember, error) {
	if _, err := s.repo.FindTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}

func (s *Service) UpdateMemberRole(ctx context.Context, teamID, userID snowflake.ID, newRole role.Role) (*domain.TeamMember, error) {
	if !role.Assignable(newRole) {
		return nil, domain.ErrRoleNotAssignable
	}

	var updated *domain.TeamMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		member, err := repo.FindMember(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if member.Role == newRole {
			updated = member
			return nil
		}

		if member.Role == role.Owner {
			if err := s.requireAnotherOwner(ctx, repo, teamID); err != nil {
				return err
			}
		}

		if err := repo.UpdateMemberRole(ctx, teamID, userID, newRole); err != nil {
			return err
		}
		member.Role = newRole
		member.UpdatedAt = s.clk.Now()
		updated = member
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("member role updated",
		zap.String("team_id", teamID.String()),
		zap.String("user_id", userID.String()),
		zap.String("role", string(newRole)),
	)
	return updated, nil
}

func (s *Service) RemoveMember(ctx context.Context, teamID, userID snowflake.ID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		member, err := repo.FindMember(ctx, teamID, userID)
		if err != nil {
			return err
		}
		if member.Role == role.Owner {
			if err := s.requireAnotherOwner(ctx, repo, teamID); err != nil {
				return err
			}
		}
		return repo.RemoveMember(ctx, teamID, userID)
	})
	if err != nil {
		return err
	}

	s.log.Info("member removed",
		zap.String("team_id", teamID.String()),
		zap.String("user_id", userID.String()),
	)
	return nil
}

func (s *Service) TransferOwnership(ctx context.Context, teamID, fromUserID, toUserID snowflake.ID) error {
	if fromUserID == toUserID {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		from, err := repo.FindMember(ctx, teamID, fromUserID)
		if err != nil {
			return err
		}
		if from.Role != role.Owner {
			return domain.ErrMemberNotFound
		}
		if _, err := repo.FindMember(ctx, teamID, toUserID); err != nil {
			return err
		}

		if err := repo.UpdateMemberRole(ctx, teamID, toUserID, role.Owner); err != nil {
			return err
		}
		return repo.UpdateMemberRole(ctx, teamID, fromUserID, role.Admin)
	})
	if err != nil {
		return err
	}

	s.log.Info("ownership transferred",
		zap.String("team_id", teamID.String()),
		zap.String("from_user_id", fromUserID.String()),
		zap.String("to_user_id", toUserID.String()),
	)
	return nil
}

func (s *Service) Invite(ctx context.Context, teamID snowflake.ID, req domain.InviteRequest) (*domain.TeamInvite, error) {
	if !role.Assignable(req.Role) {
		return nil, domain.ErrRoleNotAssignable
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindTeam(ctx, teamID); err != nil {
		return nil, err
	}

	code, err := randomCode()
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	invite := domain.TeamInvite{
		ID:        s.genID.Generate(),
		TeamID:    teamID,
		Email:     email,
		Role:      req.Role,
		Code:      code,
		Status:    domain.InvitePending,
		ExpiresAt: now.Add(inviteTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateInvite(ctx, invite); err != nil {
		return nil, err
	}

	s.log.Info("invite created",
		zap.String("team_id", teamID.String()),
		zap.String("invite_id", invite.ID.String()),
		zap.String("role", string(req.Role)),
	)
	return &invite, nil
}

func (s *Service) AcceptInvite(ctx context.Context, userID snowflake.ID, code string) (*domain.Membership, error) {
	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var membership *domain.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		invite, err := repo.FindInviteByCode(ctx, code)
		if err != nil {
			return err
		}
		if invite.Status != domain.InvitePending {
			return domain.ErrInviteNotPending
		}
		if s.clk.Now().After(invite.ExpiresAt) {
			return domain.ErrInviteExpired
		}
		if !strings.EqualFold(invite.Email, user.Email) {
			return domain.ErrInviteNotFound
		}
		if _, err := repo.FindMember(ctx, invite.TeamID, userID); err == nil {
			return domain.ErrAlreadyMember
		} else if err != domain.ErrMemberNotFound {
			return err
		}
		if err := s.requireNoTeam(ctx, repo, userID); err != nil {
			return err
		}

		now := s.clk.Now()
		member := domain.TeamMember{
			ID:        s.genID.Generate(),
			TeamID:    invite.TeamID,
			UserID:    userID,
			Role:      invite.Role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.AddMember(ctx, member); err != nil {
			return err
		}

		invite.Status = domain.InviteAccepted
		invite.UpdatedAt = now
		if err := repo.UpdateInvite(ctx, *invite); err != nil {
			return err
		}

		team, err := repo.FindTeam(ctx, invite.TeamID)
		if err != nil {
			return err
		}
		membership = &domain.Membership{
			TeamID:   team.ID,
			TeamName: team.Name,
			TeamSlug: team.Slug,
			UserID:   userID,
			Role:     invite.Role,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invite accepted",
		zap.String("team_id", membership.TeamID.String()),
		zap.String("user_id", userID.String()),
	)
	return membership, nil
}

func (s *Service) RevokeInvite(ctx context.Context, teamID, inviteID snowflake.ID) error {
	invite, err := s.repo.FindInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if invite.TeamID != teamID {
		return domain.ErrInviteNotFound
	}
	if invite.Status != domain.InvitePending {
		return domain.ErrInviteNotPending
	}

	invite.Status = domain.InviteRevoked
	invite.UpdatedAt = s.clk.Now()
	return s.repo.UpdateInvite(ctx, *invite)
}

func (s *Service) ListInvites(ctx context.Context, teamID snowflake.ID) ([]domain.TeamInvite, error) {
	return s.repo.ListInvites(ctx, teamID)
}

// requireNoTeam enforces the single-team model: a user holds at most
// one membership, so joining or founding a second team is refused.
func (s *Service) requireNoTeam(ctx context.Context, repo domain.Repository, userID snowflake.ID) error {
	if _, err := repo.MembershipForUser(ctx, userID); err == nil {
		return domain.ErrAlreadyInTeam
	} else if err != domain.ErrNotMember {
		return err
	}
	return nil
}

func (s *Service) requireAnotherOwner(ctx context.Context, repo domain.Repository, teamID snowflake.ID) error {
	owners, err := repo.CountByRole(ctx, teamID, role.Owner)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return domain.ErrLastOwner
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func randomCode() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

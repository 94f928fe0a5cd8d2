package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/profile/domain"
	"go.uber.org/zap"
)

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	identity identitydomain.Provider
	genID    *snowflake.Node
}

func New(log *zap.Logger, repo domain.Repository, identity identitydomain.Provider, genID *snowflake.Node) domain.Service {
	return &Service{
		log:      log.Named("profile.service"),
		repo:     repo,
		identity: identity,
		genID:    genID,
	}
}

func (s *Service) GetByUser(ctx context.Context, userID snowflake.ID) (*domain.Profile, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, err
	}

	user, err := s.identity.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile = &domain.Profile{
		ID:          s.genID.Generate(),
		UserID:      user.ID,
		DisplayName: user.Email,
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		// Lost a create race with a concurrent first access.
		if existing, findErr := s.repo.FindByUserID(ctx, userID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}

	s.log.Info("profile created", zap.String("user_id", userID.String()))
	return profile, nil
}

func (s *Service) Update(ctx context.Context, userID snowflake.ID, req domain.UpdateProfileRequest) (*domain.Profile, error) {
	profile, err := s.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		profile.DisplayName = *req.DisplayName
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = *req.AvatarURL
	}

	if err := s.repo.Update(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

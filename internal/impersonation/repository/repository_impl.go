package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/teamauth/internal/impersonation/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, session *domain.ImpersonationSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByID(ctx context.Context, id snowflake.ID) (*domain.ImpersonationSession, error) {
	var session domain.ImpersonationSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) FindActiveForTarget(ctx context.Context, targetUserID snowflake.ID, now time.Time) (*domain.ImpersonationSession, error) {
	var session domain.ImpersonationSession
	err := r.db.WithContext(ctx).
		Where("target_user_id = ? AND ended_at IS NULL AND expires_at > ?", targetUserID, now).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *repo) Close(ctx context.Context, id snowflake.ID, endedAt time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.ImpersonationSession{}).
		Where("id = ? AND ended_at IS NULL", id).
		Update("ended_at", endedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *repo) ListForAdmin(ctx context.Context, adminUserID snowflake.ID) ([]domain.ImpersonationSession, error) {
	var sessions []domain.ImpersonationSession
	err := r.db.WithContext(ctx).
		Where("admin_user_id = ?", adminUserID).
		Order("started_at DESC").
		Find(&sessions).Error
	return sessions, err
}

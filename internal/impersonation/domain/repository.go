package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, session *ImpersonationSession) error
	FindByID(ctx context.Context, id snowflake.ID) (*ImpersonationSession, error)
	FindActiveForTarget(ctx context.Context, targetUserID snowflake.ID, now time.Time) (*ImpersonationSession, error)
	Close(ctx context.Context, id snowflake.ID, endedAt time.Time) error
	ListForAdmin(ctx context.Context, adminUserID snowflake.ID) ([]ImpersonationSession, error)
}

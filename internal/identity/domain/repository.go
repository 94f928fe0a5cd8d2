package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *IdentitySession) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*IdentitySession, error)
	UpdateLastSeen(ctx context.Context, sessionID snowflake.ID, lastSeen time.Time) error
	// ExtendSession pushes the expiry of a live session forward. Revoked
	// sessions are not extendable.
	ExtendSession(ctx context.Context, sessionID snowflake.ID, expiresAt time.Time) error
	RevokeSession(ctx context.Context, sessionID snowflake.ID, revokedAt time.Time) error
}

type ExchangeTokenRepository interface {
	CreateToken(ctx context.Context, token *ExchangeToken) error
	// ConsumeToken marks the token consumed and returns it, failing if it
	// is already consumed or expired. The consume must be atomic.
	ConsumeToken(ctx context.Context, tokenHash string, now time.Time) (*ExchangeToken, error)
}

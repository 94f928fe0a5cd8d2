package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Provider is the identity provider boundary. The session-identity core
// consumes it; the local implementation under service/ provides it.
type Provider interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error

	// CurrentSession verifies an opaque session token and returns the
	// session it identifies.
	CurrentSession(ctx context.Context, rawToken string) (*Session, error)

	// GenerateExchangeToken mints a single-use, short-lived token that can
	// be redeemed for a fresh session as the given user.
	GenerateExchangeToken(ctx context.Context, userID snowflake.ID) (string, error)

	// RedeemExchangeToken consumes the token and mints a session for its
	// user. A consumed or expired token fails with ErrExchangeTokenInvalid.
	RedeemExchangeToken(ctx context.Context, rawToken string) (*LoginResult, error)
}

type CreateUserRequest struct {
	Email    string
	Password string
	Metadata map[string]any
}

type LoginRequest struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

type LoginResult struct {
	Session   *Session
	User      *User
	ExpiresAt time.Time
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/smallbiznis/teamauth/internal/identity/domain"
	"github.com/smallbiznis/teamauth/internal/role"
)

type StartRequest struct {
	ActorUserID  snowflake.ID
	ActorRole    role.Role
	TargetUserID snowflake.ID
	Reason       string
}

type StartResult struct {
	Record       *ImpersonationSession
	Session      *identitydomain.Session
	CustodyToken string
	ExpiresAt    time.Time
	OriginalUser *identitydomain.User
	TargetUser   *identitydomain.User
}

type StopRequest struct {
	SessionID snowflake.ID
	// CurrentUserID is the impersonated target, taken from the caller's
	// live session, never from the request body.
	CurrentUserID snowflake.ID
	CustodyToken  string
}

type StopResult struct {
	Session *identitydomain.Session
}

type Service interface {
	Start(ctx context.Context, req StartRequest) (*StartResult, error)
	Stop(ctx context.Context, req StopRequest) (*StopResult, error)

	// ActiveFor returns the open, unexpired session targeting userID, or
	// nil when the user is not being impersonated.
	ActiveFor(ctx context.Context, userID snowflake.ID) (*ImpersonationSession, error)
}

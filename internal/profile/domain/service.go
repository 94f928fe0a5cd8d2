package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

type Service interface {
	// GetByUser returns the profile for userID, creating an empty one on
	// first access so callers never observe a missing profile for a
	// valid user.
	GetByUser(ctx context.Context, userID snowflake.ID) (*Profile, error)
	Update(ctx context.Context, userID snowflake.ID, req UpdateProfileRequest) (*Profile, error)
}

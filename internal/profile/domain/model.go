package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Profile is the display-facing record for a user. Exactly one profile
// exists per user once the user has signed in.
type Profile struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID      `gorm:"uniqueIndex;not null" json:"user_id"`
	DisplayName string            `gorm:"size:255" json:"display_name"`
	AvatarURL   string            `gorm:"size:1024" json:"avatar_url,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

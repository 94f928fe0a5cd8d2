package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser     ActorType = "user"
	ActorTypeOperator ActorType = "operator"
	ActorTypeSystem   ActorType = "system"
)

// AuditLog is an append-only record of a security-relevant action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TeamID     *snowflake.ID     `gorm:"index" json:"team_id,omitempty"`
	ActorType  string            `gorm:"size:32;not null" json:"actor_type"`
	ActorID    *string           `gorm:"size:64" json:"actor_id,omitempty"`
	Action     string            `gorm:"size:128;not null;index" json:"action"`
	TargetType string            `gorm:"size:64;not null" json:"target_type"`
	TargetID   *string           `gorm:"size:64" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"size:512" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditCursor positions a cursor-paginated list query.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TeamID     snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

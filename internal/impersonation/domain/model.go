package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ImpersonationSession is the audit record for one operator-as-user
// session. Rows are closed by setting EndedAt, never deleted.
type ImpersonationSession struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	AdminUserID  snowflake.ID `gorm:"index;not null" json:"admin_user_id"`
	TargetUserID snowflake.ID `gorm:"index;not null" json:"target_user_id"`
	Reason       string       `gorm:"type:text;not null" json:"reason"`
	StartedAt    time.Time    `gorm:"not null" json:"started_at"`
	ExpiresAt    time.Time    `gorm:"not null" json:"expires_at"`
	EndedAt      *time.Time   `json:"ended_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (ImpersonationSession) TableName() string {
	return "impersonation_sessions"
}

// Active reports whether the session is open and inside its window. The
// deadline is never extended, so a session past ExpiresAt counts as
// stopped even before its row is closed.
func (s ImpersonationSession) Active(now time.Time) bool {
	return s.EndedAt == nil && now.Before(s.ExpiresAt)
}

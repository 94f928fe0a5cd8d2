// Package domain contains core types for the identity provider adapter.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User represents an identity provider user account.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex" json:"email"`
	PasswordHash *string      `gorm:"type:text" json:"-"`

	// SystemRole is operator-granted (super_admin). Team roles live on the
	// membership row; this field never holds a team-assignable role.
	SystemRole string `gorm:"column:system_role;size:32;not null;default:''" json:"system_role,omitempty"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// IdentitySession is a persisted login session. Only the hash of the opaque
// token is stored; the raw value lives in the caller's cookie.
type IdentitySession struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (IdentitySession) TableName() string { return "identity_sessions" }

// ExchangeToken is a single-use credential that mints a session for its user
// when redeemed. Used for impersonation identity switches.
type ExchangeToken struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UserID     snowflake.ID `gorm:"column:user_id;not null;index"`
	TokenHash  string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt  time.Time    `gorm:"column:expires_at;not null"`
	ConsumedAt *time.Time   `gorm:"column:consumed_at"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ExchangeToken) TableName() string { return "identity_exchange_tokens" }

// Session is the view of an active session handed to the rest of the system.
// The raw token is only populated when the session was just minted.
type Session struct {
	ID        snowflake.ID `json:"id"`
	UserID    snowflake.ID `json:"user_id"`
	RawToken  string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
}

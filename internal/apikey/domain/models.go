package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAffiliate Role = "affiliate"
)

// APIKey stores hashed bearer credentials. Affiliate keys are bound to one
// affiliate; admin keys are not.
type APIKey struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	KeyID       string         `gorm:"column:key_id;type:varchar(32);not null;uniqueIndex:ux_api_keys_key_id"`
	Name        string         `gorm:"type:varchar(255);not null"`
	KeyHash     string         `gorm:"column:key_hash;type:varchar(64);not null;uniqueIndex:ux_api_keys_key_hash"`
	Role        Role           `gorm:"type:varchar(16);not null"`
	AffiliateID *snowflake.ID  `gorm:"column:affiliate_id;index"`
	Scopes      pq.StringArray `gorm:"type:text"`
	IsActive    bool           `gorm:"column:is_active;not null;default:true"`
	LastUsedAt  *time.Time     `gorm:"column:last_used_at"`
	ExpiresAt   *time.Time     `gorm:"column:expires_at"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Principal is the authenticated caller behind a bearer key.
type Principal struct {
	KeyID       string
	Role        Role
	AffiliateID *snowflake.ID
	Scopes      []string
}

// Subject is the casbin subject for the principal.
func (p Principal) Subject() string {
	return "api_key:" + p.KeyID
}

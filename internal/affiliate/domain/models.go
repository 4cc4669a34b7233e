package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MaxTierDepth bounds the recruitment tree; the root affiliate is tier 1.
const MaxTierDepth = 3

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusInvited  Status = "invited"
)

type Role string

const (
	RoleAffiliate Role = "affiliate"
	RoleAdmin     Role = "admin"
)

type Affiliate struct {
	ID                       snowflake.ID  `gorm:"primaryKey" json:"id"`
	Slug                     string        `gorm:"type:varchar(64);not null;uniqueIndex:ux_affiliates_slug" json:"slug"`
	Name                     string        `gorm:"type:varchar(255);not null" json:"name"`
	Email                    string        `gorm:"type:varchar(255);not null;uniqueIndex:ux_affiliates_email" json:"email"`
	CommissionRate           float64       `gorm:"type:numeric(5,2);not null" json:"commission_rate"`
	CommissionDurationMonths int           `gorm:"not null" json:"commission_duration_months"`
	SubAffiliateRate         float64       `gorm:"type:numeric(5,2);not null" json:"sub_affiliate_rate"`
	ParentID                 *snowflake.ID `gorm:"index" json:"parent_id,omitempty"`
	Tier                     int           `gorm:"not null" json:"tier"`
	Status                   Status        `gorm:"type:varchar(16);not null" json:"status"`
	Role                     Role          `gorm:"type:varchar(16);not null" json:"role"`
	InviteCode               *string       `gorm:"type:varchar(64);uniqueIndex:ux_affiliates_invite_code" json:"-"`
	CreatedAt                time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time     `gorm:"not null" json:"updated_at"`
}

func (Affiliate) TableName() string { return "affiliates" }

func (a Affiliate) IsActive() bool { return a.Status == StatusActive }

type PayoutMethodKind string

const (
	PayoutMethodPayPal PayoutMethodKind = "paypal"
	PayoutMethodManual PayoutMethodKind = "manual"
)

type PayoutMethod struct {
	ID          snowflake.ID     `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID     `gorm:"not null;uniqueIndex:ux_payout_methods_affiliate_kind,priority:1" json:"affiliate_id"`
	Kind        PayoutMethodKind `gorm:"type:varchar(16);not null;uniqueIndex:ux_payout_methods_affiliate_kind,priority:2" json:"kind"`
	Account     string           `gorm:"type:varchar(255);not null" json:"account"`
	IsPrimary   bool             `gorm:"not null" json:"is_primary"`
	CreatedAt   time.Time        `gorm:"not null" json:"created_at"`
}

func (PayoutMethod) TableName() string { return "affiliate_payout_methods" }

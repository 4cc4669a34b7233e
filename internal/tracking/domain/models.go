package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Click is an immutable visit through an affiliate link. The raw client IP is
// never stored, only a truncated keyed hash.
type Click struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AffiliateID snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	IPHash      string       `gorm:"type:varchar(32)" json:"ip_hash"`
	Referrer    string       `gorm:"type:varchar(500)" json:"referrer,omitempty"`
	LandingPage string       `gorm:"type:varchar(500)" json:"landing_page,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (Click) TableName() string { return "clicks" }

// Lead binds an email to the one affiliate credited with it.
type Lead struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	AffiliateID      snowflake.ID `gorm:"not null;uniqueIndex:ux_leads_affiliate_email,priority:1" json:"affiliate_id"`
	Email            string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_leads_affiliate_email,priority:2;index" json:"email"`
	StripeCustomerID *string      `gorm:"type:varchar(255);index" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

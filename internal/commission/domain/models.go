package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusPaid     Status = "paid"
	StatusVoided   Status = "voided"
)

type TierType string

const (
	TierDirect TierType = "direct"
	TierTwo    TierType = "tier2"
	TierThree  TierType = "tier3"
)

// TierForLevel maps an ancestor distance (1 = paying affiliate) to its tier type.
func TierForLevel(level int) TierType {
	switch level {
	case 1:
		return TierDirect
	case 2:
		return TierTwo
	default:
		return TierThree
	}
}

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanAnnual  PlanType = "annual"
)

// Commission is one credited line for one affiliate on one invoice. Amount
// and rate are snapshots; later changes to affiliate terms never touch them.
type Commission struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	AffiliateID     snowflake.ID  `gorm:"not null;uniqueIndex:ux_commissions_affiliate_invoice,priority:1" json:"affiliate_id"`
	CustomerID      snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	StripeInvoiceID string        `gorm:"type:varchar(255);not null;uniqueIndex:ux_commissions_affiliate_invoice,priority:2;index" json:"stripe_invoice_id"`
	AmountCents     int64         `gorm:"not null" json:"amount_cents"`
	RateSnapshot    float64       `gorm:"type:numeric(5,2);not null" json:"rate_snapshot"`
	PaymentNumber   int           `gorm:"not null" json:"payment_number"`
	TierType        TierType      `gorm:"type:varchar(16);not null" json:"tier_type"`
	Status          Status        `gorm:"type:varchar(16);not null;index" json:"status"`
	PayoutID        *snowflake.ID `gorm:"index" json:"payout_id,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	VoidedAt        *time.Time    `json:"voided_at,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`
}

func (Commission) TableName() string { return "commissions" }

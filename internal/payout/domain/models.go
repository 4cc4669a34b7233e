package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	// StatusProcessing marks payouts claimed by a Pay call. Only that call
	// may complete them or hand them back to approved.
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusDenied     Status = "denied"
)

type Method string

const (
	MethodPayPal Method = "paypal"
	MethodManual Method = "manual"
)

// Payout batches one affiliate's approved commissions. Commissions point at
// their payout through commissions.payout_id.
type Payout struct {
	ID                    snowflake.ID `gorm:"primaryKey" json:"id"`
	AffiliateID           snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	AmountCents           int64        `gorm:"not null" json:"amount_cents"`
	Currency              string       `gorm:"type:varchar(3);not null" json:"currency"`
	Status                Status       `gorm:"type:varchar(16);not null;index" json:"status"`
	Method                Method       `gorm:"type:varchar(16);not null" json:"method"`
	DisbursementReference *string      `gorm:"type:varchar(255)" json:"disbursement_reference,omitempty"`
	CommissionCount       int          `gorm:"not null" json:"commission_count"`
	CompletedAt           *time.Time   `json:"completed_at,omitempty"`
	CreatedAt             time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time    `gorm:"not null" json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

type Detail struct {
	Payout
	Commissions []commissiondomain.Commission `json:"commissions"`
}

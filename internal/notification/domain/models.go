package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindCommissionEarned Kind = "commission_earned"
	KindPayoutApproved   Kind = "payout_approved"
	KindPayoutPaid       Kind = "payout_paid"
	KindAffiliateInvited Kind = "affiliate_invited"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Notification is an outbox row. Rows are written in the same transaction as
// the state change that caused them and delivered later by the dispatcher.
type Notification struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind          Kind              `gorm:"type:varchar(32);not null" json:"kind"`
	Recipient     string            `gorm:"type:varchar(255);not null" json:"recipient"`
	Payload       datatypes.JSONMap `gorm:"not null" json:"payload"`
	DedupeKey     string            `gorm:"type:varchar(191);not null;uniqueIndex:ux_notifications_dedupe_key" json:"dedupe_key"`
	Status        Status            `gorm:"type:varchar(16);not null;index:ix_notifications_due,priority:1" json:"status"`
	Attempts      int               `gorm:"not null" json:"attempts"`
	NextAttemptAt time.Time         `gorm:"not null;index:ix_notifications_due,priority:2" json:"next_attempt_at"`
	LastError     *string           `gorm:"type:text" json:"last_error,omitempty"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }

// Intent describes a notification to enqueue. DedupeKey makes enqueueing
// idempotent across replays of the triggering operation.
type Intent struct {
	Kind      Kind
	Recipient string
	Payload   map[string]any
	DedupeKey string
}

type DispatchResult struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
}

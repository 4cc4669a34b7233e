package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type State string

const (
	StateSignedUp      State = "signed_up"
	StateTrialing      State = "trialing"
	StateActiveMonthly State = "active_monthly"
	StateActiveAnnual  State = "active_annual"
	StateCanceled      State = "canceled"
	// StateDormant is set by processes outside the webhook flow.
	StateDormant State = "dormant"
)

type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanAnnual  PlanType = "annual"
)

// ActiveState maps a plan interval to the matching active state.
func ActiveState(plan PlanType) State {
	if plan == PlanAnnual {
		return StateActiveAnnual
	}
	return StateActiveMonthly
}

type Customer struct {
	ID                   snowflake.ID `gorm:"primaryKey" json:"id"`
	LeadID               snowflake.ID `gorm:"not null;uniqueIndex:ux_customers_lead_id" json:"lead_id"`
	AffiliateID          snowflake.ID `gorm:"not null;index" json:"affiliate_id"`
	StripeCustomerID     string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_customers_stripe_customer_id" json:"stripe_customer_id"`
	StripeSubscriptionID *string      `gorm:"type:varchar(255)" json:"stripe_subscription_id,omitempty"`
	State                State        `gorm:"type:varchar(32);not null" json:"state"`
	PlanType             PlanType     `gorm:"type:varchar(16);not null" json:"plan_type"`
	PaymentCount         int          `gorm:"not null" json:"payment_count"`
	FirstPaymentAt       *time.Time   `json:"first_payment_at,omitempty"`
	CanceledAt           *time.Time   `json:"canceled_at,omitempty"`
	CreatedAt            time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time    `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type EventType string

const (
	EventSignedUp         EventType = "signed_up"
	EventTrialStarted     EventType = "trial_started"
	EventFirstPayment     EventType = "first_payment"
	EventRecurringPayment EventType = "recurring_payment"
	EventPaymentFailed    EventType = "payment_failed"
	EventResubscribed     EventType = "resubscribed"
	EventCanceled         EventType = "canceled"
	EventRefunded         EventType = "refunded"
	EventDisputed         EventType = "disputed"
)

// Event is the append-only lifecycle log of a customer.
type Event struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID  *snowflake.ID `gorm:"index" json:"customer_id,omitempty"`
	LeadID      *snowflake.ID `gorm:"index" json:"lead_id,omitempty"`
	EventType   EventType     `gorm:"type:varchar(32);not null" json:"event_type"`
	AmountCents int64         `gorm:"not null" json:"amount_cents"`
	// StripeInvoiceID is set on payment events; one invoice counts once.
	StripeInvoiceID string    `gorm:"type:varchar(255);index" json:"stripe_invoice_id,omitempty"`
	StripeChargeID  string    `gorm:"type:varchar(255);index" json:"stripe_charge_id,omitempty"`
	StripeEventID   string    `gorm:"type:varchar(255)" json:"stripe_event_id,omitempty"`
	CreatedAt       time.Time `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "customer_events" }

// CountedInvoice claims an invoice for the payment counter. The primary key
// is the invoice id, so a second delivery of the same invoice cannot count.
type CountedInvoice struct {
	StripeInvoiceID string       `gorm:"type:varchar(255);primaryKey" json:"stripe_invoice_id"`
	CustomerID      snowflake.ID `gorm:"not null;index" json:"customer_id"`
	StripeEventID   string       `gorm:"type:varchar(255);not null" json:"stripe_event_id"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
}

func (CountedInvoice) TableName() string { return "counted_invoices" }

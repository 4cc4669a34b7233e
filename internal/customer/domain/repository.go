package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PaymentUpdate struct {
	State    State
	PlanType PlanType
	PaidAt   time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Customer, error)
	FindByStripeCustomerID(ctx context.Context, db *gorm.DB, stripeCustomerID string) (*Customer, error)
	// RecordPayment atomically bumps payment_count and returns the new value.
	RecordPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, update PaymentUpdate) (int, error)
	UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, state State, now time.Time) error
	SetSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID string, now time.Time) error
	Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	// Resubscribe resets counters of a canceled customer. It returns false if
	// the customer was not canceled.
	Resubscribe(ctx context.Context, db *gorm.DB, id snowflake.ID, state State, plan PlanType, now time.Time) (bool, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	// ClaimInvoice inserts the counted_invoices row for an invoice. A second
	// claim of the same invoice fails with a duplicate key error.
	ClaimInvoice(ctx context.Context, db *gorm.DB, claim *CountedInvoice) error
	// PaymentRecorded reports whether a payment event already counted the invoice.
	PaymentRecorded(ctx context.Context, db *gorm.DB, invoiceID string) (bool, error)
	// InvoiceForCharge resolves the invoice a charge paid, from earlier payment events.
	InvoiceForCharge(ctx context.Context, db *gorm.DB, chargeID string) (string, error)
	ListEvents(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]Event, error)
}

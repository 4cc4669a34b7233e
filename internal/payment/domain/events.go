package domain

import (
	"time"

	customerdomain "github.com/smallbiznis/hightide/internal/customer/domain"
)

// Envelope carries the processor's event identity. Every Event embeds it.
type Envelope struct {
	ID      string
	Type    string
	Created time.Time
}

func (e Envelope) Header() Envelope { return e }

func (Envelope) isEvent() {}

// Event is the closed set of payment-processor events the normalizer acts on.
// Unrecognised processor types arrive as Ignored.
type Event interface {
	Header() Envelope
	isEvent()
}

type CheckoutCompleted struct {
	Envelope
	SessionID          string
	CustomerID         string
	SubscriptionID     string
	Email              string
	AffiliateSlug      string
	SubscriptionStatus string
	PlanType           customerdomain.PlanType
}

type InvoicePaymentSucceeded struct {
	Envelope
	InvoiceID       string
	ChargeID        string
	CustomerID      string
	SubscriptionID  string
	Email           string
	AmountPaidCents int64
	PlanType        customerdomain.PlanType
}

type InvoicePaymentFailed struct {
	Envelope
	InvoiceID      string
	CustomerID     string
	Email          string
	AmountDueCents int64
}

type SubscriptionCreated struct {
	Envelope
	SubscriptionID string
	CustomerID     string
	Status         string
	PlanType       customerdomain.PlanType
}

type SubscriptionUpdated struct {
	Envelope
	SubscriptionID string
	CustomerID     string
	Status         string
	PlanType       customerdomain.PlanType
}

type SubscriptionDeleted struct {
	Envelope
	SubscriptionID string
	CustomerID     string
}

type ChargeRefunded struct {
	Envelope
	ChargeID            string
	InvoiceID           string
	CustomerID          string
	AmountRefundedCents int64
}

type DisputeCreated struct {
	Envelope
	DisputeID   string
	ChargeID    string
	InvoiceID   string
	CustomerID  string
	AmountCents int64
}

type Ignored struct {
	Envelope
}

// Subscription statuses as reported by the processor.
const (
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

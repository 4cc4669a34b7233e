package domain

import (
	"context"
	"errors"
	"net/http"
)

// Adapter verifies and decodes one processor's webhook deliveries.
type Adapter interface {
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (Event, error)
}

// Normalizer applies each event to the customer lifecycle. Every method
// returns the outcome recorded on the webhook event.
type Normalizer interface {
	CheckoutCompleted(ctx context.Context, e CheckoutCompleted) (string, error)
	InvoicePaymentSucceeded(ctx context.Context, e InvoicePaymentSucceeded) (string, error)
	InvoicePaymentFailed(ctx context.Context, e InvoicePaymentFailed) (string, error)
	SubscriptionCreated(ctx context.Context, e SubscriptionCreated) (string, error)
	SubscriptionUpdated(ctx context.Context, e SubscriptionUpdated) (string, error)
	SubscriptionDeleted(ctx context.Context, e SubscriptionDeleted) (string, error)
	ChargeRefunded(ctx context.Context, e ChargeRefunded) (string, error)
	DisputeCreated(ctx context.Context, e DisputeCreated) (string, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error
}

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrNotConfigured         = errors.New("webhook_not_configured")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)

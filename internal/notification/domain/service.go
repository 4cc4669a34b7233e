package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Outbox records notification intents. Callers pass their transaction so the
// intent commits or rolls back with the state change.
type Outbox interface {
	Enqueue(ctx context.Context, db *gorm.DB, intent Intent) error
}

// Dispatcher delivers due outbox rows.
type Dispatcher interface {
	Dispatch(ctx context.Context, batchSize int) (DispatchResult, error)
	Backlog(ctx context.Context) (int64, error)
}

var (
	ErrInvalidKind      = errors.New("invalid_notification_kind")
	ErrInvalidRecipient = errors.New("invalid_recipient")
	ErrInvalidDedupeKey = errors.New("invalid_dedupe_key")
	ErrUnknownTemplate  = errors.New("unknown_template")
)

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert returns false when a row with the same dedupe key already exists.
	Insert(ctx context.Context, db *gorm.DB, notification *Notification) (bool, error)
	// ListDue selects pending rows whose next attempt is due, locking them on
	// postgres so concurrent dispatchers skip each other's rows.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Notification, error)
	Lease(ctx context.Context, db *gorm.DB, ids []snowflake.ID, until time.Time) error
	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, now time.Time) error
	MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error
	CountPending(ctx context.Context, db *gorm.DB) (int64, error)
}

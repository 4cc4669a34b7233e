package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status      Status
	AffiliateID *snowflake.ID
	PayoutID    *snowflake.ID
}

type Repository interface {
	// InsertBatch writes all rows in one statement.
	InsertBatch(ctx context.Context, db *gorm.DB, rows []Commission) error
	ExistsForInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Commission, error)
	Approve(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
	Void(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
	VoidPendingForInvoice(ctx context.Context, db *gorm.DB, invoiceID string, now time.Time) (int64, error)

	// ListApprovedUnassigned returns commissions eligible for a payout batch.
	// lock adds FOR UPDATE SKIP LOCKED where the dialect supports it.
	ListApprovedUnassigned(ctx context.Context, db *gorm.DB, lock bool) ([]Commission, error)
	AssignPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, ids []snowflake.ID, now time.Time) (int64, error)
	MarkPaidByPayouts(ctx context.Context, db *gorm.DB, payoutIDs []snowflake.ID, now time.Time) (int64, error)
	ListByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]Commission, error)
}

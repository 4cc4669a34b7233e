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
}

type Completion struct {
	ID        snowflake.ID
	Method    Method
	Reference *string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID, status Status) ([]Payout, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Payout, error)
	// Transition moves rows currently in one of from to the target status.
	Transition(ctx context.Context, db *gorm.DB, ids []snowflake.ID, from []Status, to Status, now time.Time) (int64, error)
	// Claim moves approved rows to processing one at a time and returns the
	// ids this call won. Rows another caller already claimed are skipped.
	Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) ([]snowflake.ID, error)
	// Complete settles a processing row.
	Complete(ctx context.Context, db *gorm.DB, completion Completion, now time.Time) (int64, error)
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	Status   Status
	ParentID *snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, affiliate *Affiliate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Affiliate, error)
	FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Affiliate, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Affiliate, error)
	FindByEmail(ctx context.Context, db *gorm.DB, email string) (*Affiliate, error)
	FindByInviteCode(ctx context.Context, db *gorm.DB, code string) (*Affiliate, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Affiliate, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Affiliate, error)
	UpdateTerms(ctx context.Context, db *gorm.DB, affiliate *Affiliate) error
	Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error)

	UpsertPayoutMethod(ctx context.Context, db *gorm.DB, method *PayoutMethod) error
	ListPayoutMethods(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]PayoutMethod, error)
	FindPrimaryPayoutMethods(ctx context.Context, db *gorm.DB, affiliateIDs []snowflake.ID) (map[snowflake.ID]PayoutMethod, error)
}

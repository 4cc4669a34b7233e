package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, campaign *Campaign) error
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Campaign, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*Campaign, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	StatsFor(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]Stats, error)
}

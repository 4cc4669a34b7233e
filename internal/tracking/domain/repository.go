package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertClick(ctx context.Context, db *gorm.DB, click *Click) error
	InsertLead(ctx context.Context, db *gorm.DB, lead *Lead) error
	FindLead(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, email string) (*Lead, error)
	FindLeadByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Lead, error)
	FindLeadByStripeCustomerID(ctx context.Context, db *gorm.DB, stripeCustomerID string) (*Lead, error)
	// FindLeadByEmail returns the oldest lead for email across affiliates.
	FindLeadByEmail(ctx context.Context, db *gorm.DB, email string) (*Lead, error)
	// AttachStripeCustomer sets the processor customer id only when the lead
	// has none yet.
	AttachStripeCustomer(ctx context.Context, db *gorm.DB, leadID snowflake.ID, stripeCustomerID string, now time.Time) (int64, error)
	CountClicks(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (int64, error)
	CountLeads(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (int64, error)
}

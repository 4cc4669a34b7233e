package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/tracking/domain"
	"gorm.io/gorm"
)

const leadColumns = `id, affiliate_id, email, stripe_customer_id, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertClick(ctx context.Context, db *gorm.DB, click *domain.Click) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO clicks (id, affiliate_id, ip_hash, referrer, landing_page, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		click.ID,
		click.AffiliateID,
		click.IPHash,
		click.Referrer,
		click.LandingPage,
		click.CreatedAt,
	).Error
}

func (r *repo) InsertLead(ctx context.Context, db *gorm.DB, lead *domain.Lead) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO leads (`+leadColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		lead.ID,
		lead.AffiliateID,
		lead.Email,
		lead.StripeCustomerID,
		lead.CreatedAt,
		lead.UpdatedAt,
	).Error
}

func (r *repo) FindLead(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID, email string) (*domain.Lead, error) {
	return r.findOne(ctx, db, `affiliate_id = ? AND email = ?`, affiliateID, email)
}

func (r *repo) FindLeadByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Lead, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindLeadByStripeCustomerID(ctx context.Context, db *gorm.DB, stripeCustomerID string) (*domain.Lead, error) {
	return r.findOne(ctx, db, `stripe_customer_id = ?`, stripeCustomerID)
}

func (r *repo) FindLeadByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Lead, error) {
	return r.findOne(ctx, db, `email = ?`, email)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Lead, error) {
	var lead domain.Lead
	err := db.WithContext(ctx).Raw(
		`SELECT `+leadColumns+` FROM leads WHERE `+where+` ORDER BY created_at ASC, id ASC LIMIT 1`,
		args...,
	).Scan(&lead).Error
	if err != nil {
		return nil, err
	}
	if lead.ID == 0 {
		return nil, nil
	}
	return &lead, nil
}

func (r *repo) AttachStripeCustomer(ctx context.Context, db *gorm.DB, leadID snowflake.ID, stripeCustomerID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE leads SET stripe_customer_id = ?, updated_at = ?
		 WHERE id = ? AND stripe_customer_id IS NULL`,
		stripeCustomerID,
		now,
		leadID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) CountClicks(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM clicks WHERE affiliate_id = ?`, affiliateID).Scan(&count).Error
	return count, err
}

func (r *repo) CountLeads(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM leads WHERE affiliate_id = ?`, affiliateID).Scan(&count).Error
	return count, err
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/commission/domain"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const commissionColumns = `id, affiliate_id, customer_id, stripe_invoice_id, amount_cents, rate_snapshot,
	payment_number, tier_type, status, payout_id, approved_at, paid_at, voided_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, rows []domain.Commission) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&rows).Error
}

func (r *repo) ExistsForInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM commissions WHERE stripe_invoice_id = ?`,
		invoiceID,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Commission, error) {
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	stmt := db.WithContext(ctx).Model(&domain.Commission{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AffiliateID != nil {
		stmt = stmt.Where("affiliate_id = ?", *filter.AffiliateID)
	}
	if filter.PayoutID != nil {
		stmt = stmt.Where("payout_id = ?", *filter.PayoutID)
	}
	if afterID > 0 {
		stmt = stmt.Where("id < ?", afterID)
	}

	var commissions []*domain.Commission
	err = stmt.
		Order("id desc").
		Limit(page.Limit() + 1).
		Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repo) Approve(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET status = ?, approved_at = ?, updated_at = ?
		 WHERE id IN ? AND status = ?`,
		domain.StatusApproved,
		now,
		now,
		ids,
		domain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Void(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET status = ?, voided_at = ?, updated_at = ?
		 WHERE id IN ? AND status IN ? AND payout_id IS NULL`,
		domain.StatusVoided,
		now,
		now,
		ids,
		[]domain.Status{domain.StatusPending, domain.StatusApproved},
	)
	return result.RowsAffected, result.Error
}

func (r *repo) VoidPendingForInvoice(ctx context.Context, db *gorm.DB, invoiceID string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET status = ?, voided_at = ?, updated_at = ?
		 WHERE stripe_invoice_id = ? AND status = ?`,
		domain.StatusVoided,
		now,
		now,
		invoiceID,
		domain.StatusPending,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListApprovedUnassigned(ctx context.Context, db *gorm.DB, lock bool) ([]domain.Commission, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Commission{}).
		Where("status = ? AND payout_id IS NULL", domain.StatusApproved).
		Order("affiliate_id, id")
	if lock {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var commissions []domain.Commission
	if err := stmt.Find(&commissions).Error; err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repo) AssignPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID, ids []snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET payout_id = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND payout_id IS NULL`,
		payoutID,
		now,
		ids,
		domain.StatusApproved,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) MarkPaidByPayouts(ctx context.Context, db *gorm.DB, payoutIDs []snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions SET status = ?, paid_at = ?, updated_at = ?
		 WHERE payout_id IN ? AND status = ?`,
		domain.StatusPaid,
		now,
		now,
		payoutIDs,
		domain.StatusApproved,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ListByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) ([]domain.Commission, error) {
	var commissions []domain.Commission
	err := db.WithContext(ctx).Raw(
		`SELECT `+commissionColumns+` FROM commissions WHERE payout_id = ? ORDER BY created_at ASC, id ASC`,
		payoutID,
	).Scan(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

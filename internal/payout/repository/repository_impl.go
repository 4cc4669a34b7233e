package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
)

const payoutColumns = `id, affiliate_id, amount_cents, currency, status, method, disbursement_reference,
	commission_count, completed_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (`+payoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.AffiliateID,
		payout.AmountCents,
		payout.Currency,
		payout.Status,
		payout.Method,
		payout.DisbursementReference,
		payout.CommissionCount,
		payout.CompletedAt,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	var payout domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payouts WHERE id = ? LIMIT 1`,
		id,
	).Scan(&payout).Error
	if err != nil {
		return nil, err
	}
	if payout.ID == 0 {
		return nil, nil
	}
	return &payout, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID, status domain.Status) ([]domain.Payout, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var payouts []domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payouts WHERE id IN ? AND status = ? ORDER BY id ASC`,
		ids,
		status,
	).Scan(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Payout, error) {
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	stmt := db.WithContext(ctx).Model(&domain.Payout{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AffiliateID != nil {
		stmt = stmt.Where("affiliate_id = ?", *filter.AffiliateID)
	}
	if afterID > 0 {
		stmt = stmt.Where("id < ?", afterID)
	}

	var payouts []*domain.Payout
	err = stmt.
		Order("id desc").
		Limit(page.Limit() + 1).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, ids []snowflake.ID, from []domain.Status, to domain.Status, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, updated_at = ? WHERE id IN ? AND status IN ?`,
		to,
		now,
		ids,
		from,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, completion domain.Completion, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payouts
		 SET status = ?, method = ?, disbursement_reference = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCompleted,
		completion.Method,
		completion.Reference,
		now,
		now,
		completion.ID,
		domain.StatusProcessing,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) ([]snowflake.ID, error) {
	claimed := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		result := db.WithContext(ctx).Exec(
			`UPDATE payouts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			domain.StatusProcessing,
			now,
			id,
			domain.StatusApproved,
		)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/affiliate/domain"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const affiliateColumns = `id, slug, name, email, commission_rate, commission_duration_months,
	sub_affiliate_rate, parent_id, tier, status, role, invite_code, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, affiliate *domain.Affiliate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO affiliates (`+affiliateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		affiliate.ID,
		affiliate.Slug,
		affiliate.Name,
		affiliate.Email,
		affiliate.CommissionRate,
		affiliate.CommissionDurationMonths,
		affiliate.SubAffiliateRate,
		affiliate.ParentID,
		affiliate.Tier,
		affiliate.Status,
		affiliate.Role,
		affiliate.InviteCode,
		affiliate.CreatedAt,
		affiliate.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindActiveByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `id = ? AND status = ?`, id, domain.StatusActive)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `slug = ?`, slug)
}

func (r *repo) FindByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `email = ?`, email)
}

func (r *repo) FindByInviteCode(ctx context.Context, db *gorm.DB, code string) (*domain.Affiliate, error) {
	return r.findOne(ctx, db, `invite_code = ?`, code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Affiliate, error) {
	var affiliate domain.Affiliate
	err := db.WithContext(ctx).Raw(
		`SELECT `+affiliateColumns+` FROM affiliates WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&affiliate).Error
	if err != nil {
		return nil, err
	}
	if affiliate.ID == 0 {
		return nil, nil
	}
	return &affiliate, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*domain.Affiliate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var affiliates []*domain.Affiliate
	err := db.WithContext(ctx).Raw(
		`SELECT `+affiliateColumns+` FROM affiliates WHERE id IN ?`,
		ids,
	).Scan(&affiliates).Error
	if err != nil {
		return nil, err
	}
	return affiliates, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM affiliates WHERE slug = ?`,
		slug,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Affiliate, error) {
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}

	stmt := db.WithContext(ctx).Model(&domain.Affiliate{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ParentID != nil {
		stmt = stmt.Where("parent_id = ?", *filter.ParentID)
	}
	if afterID > 0 {
		stmt = stmt.Where("id < ?", afterID)
	}

	var affiliates []*domain.Affiliate
	err = stmt.
		Order("id desc").
		Limit(page.Limit() + 1).
		Find(&affiliates).Error
	if err != nil {
		return nil, err
	}
	return affiliates, nil
}

func (r *repo) UpdateTerms(ctx context.Context, db *gorm.DB, affiliate *domain.Affiliate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE affiliates
		 SET name = ?, commission_rate = ?, commission_duration_months = ?,
		     sub_affiliate_rate = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		affiliate.Name,
		affiliate.CommissionRate,
		affiliate.CommissionDurationMonths,
		affiliate.SubAffiliateRate,
		affiliate.Status,
		affiliate.UpdatedAt,
		affiliate.ID,
	).Error
}

// Activate moves an invited affiliate to active and burns its invite code.
func (r *repo) Activate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE affiliates
		 SET status = ?, invite_code = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusActive,
		now,
		id,
		domain.StatusInvited,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpsertPayoutMethod(ctx context.Context, db *gorm.DB, method *domain.PayoutMethod) error {
	if method.IsPrimary {
		err := db.WithContext(ctx).Exec(
			`UPDATE affiliate_payout_methods SET is_primary = ? WHERE affiliate_id = ? AND kind <> ?`,
			false,
			method.AffiliateID,
			method.Kind,
		).Error
		if err != nil {
			return err
		}
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "affiliate_id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"account", "is_primary"}),
		}).
		Create(method).Error
}

func (r *repo) ListPayoutMethods(ctx context.Context, db *gorm.DB, affiliateID snowflake.ID) ([]domain.PayoutMethod, error) {
	var methods []domain.PayoutMethod
	err := db.WithContext(ctx).Raw(
		`SELECT id, affiliate_id, kind, account, is_primary, created_at
		 FROM affiliate_payout_methods
		 WHERE affiliate_id = ?
		 ORDER BY is_primary DESC, created_at ASC`,
		affiliateID,
	).Scan(&methods).Error
	if err != nil {
		return nil, err
	}
	return methods, nil
}

// FindPrimaryPayoutMethods picks one method per affiliate, preferring the
// primary flag and falling back to the oldest method.
func (r *repo) FindPrimaryPayoutMethods(ctx context.Context, db *gorm.DB, affiliateIDs []snowflake.ID) (map[snowflake.ID]domain.PayoutMethod, error) {
	out := make(map[snowflake.ID]domain.PayoutMethod, len(affiliateIDs))
	if len(affiliateIDs) == 0 {
		return out, nil
	}

	var methods []domain.PayoutMethod
	err := db.WithContext(ctx).Raw(
		`SELECT id, affiliate_id, kind, account, is_primary, created_at
		 FROM affiliate_payout_methods
		 WHERE affiliate_id IN ?
		 ORDER BY affiliate_id, is_primary DESC, created_at ASC`,
		affiliateIDs,
	).Scan(&methods).Error
	if err != nil {
		return nil, err
	}
	for _, method := range methods {
		if _, seen := out[method.AffiliateID]; !seen {
			out[method.AffiliateID] = method
		}
	}
	return out, nil
}

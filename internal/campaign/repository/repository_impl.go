package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/campaign/domain"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, campaign *domain.Campaign) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO campaigns (id, slug, name, landing_url, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		campaign.ID,
		campaign.Slug,
		campaign.Name,
		campaign.LandingURL,
		campaign.IsActive,
		campaign.CreatedAt,
		campaign.UpdatedAt,
	).Error
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := db.WithContext(ctx).Raw(
		`SELECT id, slug, name, landing_url, is_active, created_at, updated_at
		 FROM campaigns WHERE slug = ? LIMIT 1`,
		slug,
	).Scan(&campaign).Error
	if err != nil {
		return nil, err
	}
	if campaign.ID == 0 {
		return nil, nil
	}
	return &campaign, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(`SELECT COUNT(1) FROM campaigns WHERE slug = ?`, slug).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*domain.Campaign, error) {
	afterID, err := page.AfterID()
	if err != nil {
		return nil, err
	}
	stmt := db.WithContext(ctx).Model(&domain.Campaign{})
	if afterID > 0 {
		stmt = stmt.Where("id < ?", afterID)
	}
	var campaigns []*domain.Campaign
	if err := stmt.Order("id desc").Limit(page.Limit() + 1).Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO campaign_events (id, campaign_id, kind, email, ip_hash, referrer, landing_page, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.CampaignID,
		event.Kind,
		event.Email,
		event.IPHash,
		event.Referrer,
		event.LandingPage,
		event.CreatedAt,
	).Error
}

func (r *repo) StatsFor(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]domain.Stats, error) {
	out := make(map[snowflake.ID]domain.Stats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []struct {
		CampaignID snowflake.ID
		Kind       domain.EventKind
		Total      int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT campaign_id, kind, COUNT(1) AS total
		 FROM campaign_events
		 WHERE campaign_id IN ?
		 GROUP BY campaign_id, kind`,
		ids,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats := out[row.CampaignID]
		switch row.Kind {
		case domain.EventKindClick:
			stats.Clicks = row.Total
		case domain.EventKindLead:
			stats.Leads = row.Total
		}
		out[row.CampaignID] = stats
	}
	return out, nil
}

package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	"github.com/smallbiznis/hightide/internal/campaign/domain"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/pkg/db"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"github.com/smallbiznis/hightide/pkg/refslug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	AffiliateRepo affiliatedomain.Repository
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	affiliateRepo affiliatedomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("campaign.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		affiliateRepo: p.AffiliateRepo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Campaign, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Campaign{}, domain.ErrInvalidName
	}
	slug, err := refslug.Normalize(req.Slug, name)
	if err != nil {
		return domain.Campaign{}, domain.ErrInvalidSlug
	}

	// Affiliate and campaign slugs share the referral namespace.
	taken, err := s.affiliateRepo.SlugExists(ctx, s.db, slug)
	if err != nil {
		return domain.Campaign{}, err
	}
	if taken {
		return domain.Campaign{}, domain.ErrSlugTaken
	}

	now := s.clock.Now()
	campaign := domain.Campaign{
		ID:         s.genID.Generate(),
		Slug:       slug,
		Name:       name,
		LandingURL: strings.TrimSpace(req.LandingURL),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, s.db, &campaign); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Campaign{}, domain.ErrSlugTaken
		}
		return domain.Campaign{}, err
	}

	s.log.Info("campaign created", zap.String("campaign_id", campaign.ID.String()), zap.String("slug", slug))
	return campaign, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, page)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo := pagination.Page(items, page.Limit(), func(c *domain.Campaign) int64 { return c.ID.Int64() })

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	stats, err := s.repo.StatsFor(ctx, s.db, ids)
	if err != nil {
		return domain.ListResponse{}, err
	}

	campaigns := make([]domain.CampaignWithStats, 0, len(items))
	for _, item := range items {
		campaigns = append(campaigns, domain.CampaignWithStats{Campaign: *item, Stats: stats[item.ID]})
	}
	return domain.ListResponse{PageInfo: pageInfo, Campaigns: campaigns}, nil
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (domain.Campaign, error) {
	slug = refslug.Clean(slug)
	if slug == "" {
		return domain.Campaign{}, domain.ErrNotFound
	}
	campaign, err := s.repo.FindBySlug(ctx, s.db, slug)
	if err != nil {
		return domain.Campaign{}, err
	}
	if campaign == nil || !campaign.IsActive {
		return domain.Campaign{}, domain.ErrNotFound
	}
	return *campaign, nil
}

func (s *Service) RecordEvent(ctx context.Context, req domain.RecordEventRequest) (domain.Event, error) {
	switch req.Kind {
	case domain.EventKindClick, domain.EventKindLead:
	default:
		return domain.Event{}, domain.ErrInvalidEventKind
	}

	campaign, err := s.GetBySlug(ctx, req.Slug)
	if err != nil {
		return domain.Event{}, err
	}

	event := domain.Event{
		ID:          s.genID.Generate(),
		CampaignID:  campaign.ID,
		Kind:        req.Kind,
		IPHash:      req.IPHash,
		Referrer:    req.Referrer,
		LandingPage: req.LandingPage,
		CreatedAt:   s.clock.Now(),
	}
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		event.Email = &email
	}
	if err := s.repo.InsertEvent(ctx, s.db, &event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}


package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	campaigndomain "github.com/smallbiznis/hightide/internal/campaign/domain"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/observability/metrics"
	"github.com/smallbiznis/hightide/internal/tracking/domain"
	"github.com/smallbiznis/hightide/pkg/db"
	"github.com/smallbiznis/hightide/pkg/refslug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMetadataLength = 500

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Repo          domain.Repository
	AffiliateRepo affiliatedomain.Repository
	Campaigns     campaigndomain.Service
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	hasher        IPHasher
	repo          domain.Repository
	affiliateRepo affiliatedomain.Repository
	campaigns     campaigndomain.Service
	metrics       *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("tracking.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		hasher:        NewIPHasher(p.Cfg.Tracking.IPHashSalt),
		repo:          p.Repo,
		affiliateRepo: p.AffiliateRepo,
		campaigns:     p.Campaigns,
		metrics:       p.Metrics,
	}
}

func (s *Service) RecordClick(ctx context.Context, req domain.ClickRequest) (domain.ClickResult, error) {
	slug := refslug.Clean(req.AffiliateSlug)
	if slug == "" {
		return domain.ClickResult{}, nil
	}

	affiliate, err := s.affiliateRepo.FindBySlug(ctx, s.db, slug)
	if err != nil {
		return domain.ClickResult{}, err
	}

	ipHash := s.hasher.Hash(req.ClientIP)
	referrer := truncate(req.Referrer)
	landingPage := truncate(req.LandingPage)

	if affiliate == nil {
		_, err := s.campaigns.RecordEvent(ctx, campaigndomain.RecordEventRequest{
			Slug:        slug,
			Kind:        campaigndomain.EventKindClick,
			IPHash:      ipHash,
			Referrer:    referrer,
			LandingPage: landingPage,
		})
		if errors.Is(err, campaigndomain.ErrNotFound) {
			return domain.ClickResult{}, nil
		}
		if err != nil {
			return domain.ClickResult{}, err
		}
		s.metrics.RecordClick(ctx, "campaign")
		return domain.ClickResult{Recorded: true, Campaign: true, Slug: slug}, nil
	}
	if !affiliate.IsActive() {
		return domain.ClickResult{}, nil
	}

	click := domain.Click{
		ID:          s.genID.Generate(),
		AffiliateID: affiliate.ID,
		IPHash:      ipHash,
		Referrer:    referrer,
		LandingPage: landingPage,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertClick(ctx, s.db, &click); err != nil {
		return domain.ClickResult{}, err
	}
	s.metrics.RecordClick(ctx, "affiliate")
	return domain.ClickResult{Recorded: true, Slug: affiliate.Slug}, nil
}

// RecordLead attributes an email using the explicit slug first, then the
// affiliate cookie, then the campaign cookie.
func (s *Service) RecordLead(ctx context.Context, req domain.LeadRequest) (domain.LeadResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.LeadResult{}, err
	}

	slug := refslug.Clean(req.AffiliateSlug)
	if slug == "" {
		slug = refslug.Clean(req.CookieSlug)
	}
	if slug == "" {
		campaignSlug := refslug.Clean(req.CampaignCookie)
		if campaignSlug == "" {
			return domain.LeadResult{}, domain.ErrMissingAttribution
		}
		return s.recordCampaignLead(ctx, campaignSlug, email, req.ClientIP, domain.ErrMissingAttribution)
	}

	affiliate, err := s.affiliateRepo.FindBySlug(ctx, s.db, slug)
	if err != nil {
		return domain.LeadResult{}, err
	}
	if affiliate == nil {
		return s.recordCampaignLead(ctx, slug, email, req.ClientIP, domain.ErrAffiliateNotFound)
	}
	if !affiliate.IsActive() {
		return domain.LeadResult{}, domain.ErrAffiliateNotFound
	}

	stripeCustomerID := strings.TrimSpace(req.StripeCustomerID)
	existing, err := s.repo.FindLead(ctx, s.db, affiliate.ID, email)
	if err != nil {
		return domain.LeadResult{}, err
	}
	if existing != nil {
		return s.existingLead(ctx, existing, stripeCustomerID)
	}

	now := s.clock.Now()
	lead := domain.Lead{
		ID:          s.genID.Generate(),
		AffiliateID: affiliate.ID,
		Email:       email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if stripeCustomerID != "" {
		lead.StripeCustomerID = &stripeCustomerID
	}
	if err := s.repo.InsertLead(ctx, s.db, &lead); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.LeadResult{}, err
		}
		// Lost a race with a concurrent capture of the same pair.
		existing, findErr := s.repo.FindLead(ctx, s.db, affiliate.ID, email)
		if findErr != nil {
			return domain.LeadResult{}, findErr
		}
		if existing == nil {
			return domain.LeadResult{}, err
		}
		return s.existingLead(ctx, existing, stripeCustomerID)
	}

	s.metrics.RecordLead(ctx, "affiliate", false)
	s.log.Info("lead recorded",
		zap.String("lead_id", lead.ID.String()),
		zap.String("affiliate_id", affiliate.ID.String()),
	)
	return domain.LeadResult{LeadID: &lead.ID, AffiliateID: affiliate.ID}, nil
}

func (s *Service) existingLead(ctx context.Context, lead *domain.Lead, stripeCustomerID string) (domain.LeadResult, error) {
	if stripeCustomerID != "" && lead.StripeCustomerID == nil {
		if _, err := s.repo.AttachStripeCustomer(ctx, s.db, lead.ID, stripeCustomerID, s.clock.Now()); err != nil {
			return domain.LeadResult{}, err
		}
	}
	s.metrics.RecordLead(ctx, "affiliate", true)
	id := lead.ID
	return domain.LeadResult{LeadID: &id, AffiliateID: lead.AffiliateID, Existing: true}, nil
}

func (s *Service) recordCampaignLead(ctx context.Context, slug, email, clientIP string, notFound error) (domain.LeadResult, error) {
	_, err := s.campaigns.RecordEvent(ctx, campaigndomain.RecordEventRequest{
		Slug:   slug,
		Kind:   campaigndomain.EventKindLead,
		Email:  email,
		IPHash: s.hasher.Hash(clientIP),
	})
	if errors.Is(err, campaigndomain.ErrNotFound) {
		return domain.LeadResult{}, notFound
	}
	if err != nil {
		return domain.LeadResult{}, err
	}
	s.metrics.RecordLead(ctx, "campaign", false)
	return domain.LeadResult{Campaign: true}, nil
}

func normalizeEmail(raw string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", domain.ErrInvalidEmail
	}
	return value, nil
}

func truncate(value string) string {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) <= maxMetadataLength {
		return value
	}
	return string([]rune(value)[:maxMetadataLength])
}

package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/commission/domain"
	"github.com/smallbiznis/hightide/internal/config"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/internal/observability/metrics"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
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
	Cfg           config.Config
	Repo          domain.Repository
	AffiliateRepo affiliatedomain.Repository
	Outbox        notificationdomain.Outbox
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	currency      string
	repo          domain.Repository
	affiliateRepo affiliatedomain.Repository
	outbox        notificationdomain.Outbox
	metrics       *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("commission.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		currency:      p.Cfg.Currency,
		repo:          p.Repo,
		affiliateRepo: p.AffiliateRepo,
		outbox:        p.Outbox,
		metrics:       p.Metrics,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{}
	switch req.Status {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusPaid, domain.StatusVoided:
		filter.Status = req.Status
	default:
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}
	if raw := strings.TrimSpace(req.AffiliateID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return domain.ListResponse{}, err
		}
		filter.AffiliateID = &id
	}
	if raw := strings.TrimSpace(req.PayoutID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return domain.ListResponse{}, err
		}
		filter.PayoutID = &id
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, info := pagination.Page(items, page.Limit(), func(c *domain.Commission) int64 {
		return c.ID.Int64()
	})
	return domain.ListResponse{PageInfo: info, Commissions: items}, nil
}

func (s *Service) Approve(ctx context.Context, ids []string) (domain.BulkResult, error) {
	parsed, err := parseIDs(ids)
	if err != nil {
		return domain.BulkResult{}, err
	}
	updated, err := s.repo.Approve(ctx, s.db, parsed, s.clock.Now())
	if err != nil {
		return domain.BulkResult{}, err
	}
	s.log.Info("commissions approved", zap.Int("requested", len(parsed)), zap.Int64("updated", updated))
	return domain.BulkResult{Updated: updated}, nil
}

// Void cancels pending or approved commissions that are not yet batched.
func (s *Service) Void(ctx context.Context, ids []string) (domain.BulkResult, error) {
	parsed, err := parseIDs(ids)
	if err != nil {
		return domain.BulkResult{}, err
	}
	updated, err := s.repo.Void(ctx, s.db, parsed, s.clock.Now())
	if err != nil {
		return domain.BulkResult{}, err
	}
	s.log.Info("commissions voided", zap.Int("requested", len(parsed)), zap.Int64("updated", updated))
	return domain.BulkResult{Updated: updated}, nil
}

// VoidPendingForInvoice claws back unreviewed commissions of a refunded or
// disputed invoice. Approved and paid rows stay as they are.
func (s *Service) VoidPendingForInvoice(ctx context.Context, invoiceID string) (int64, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return 0, domain.ErrInvalidInput
	}
	updated, err := s.repo.VoidPendingForInvoice(ctx, s.db, invoiceID, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.log.Info("pending commissions voided for invoice",
			zap.String("invoice_id", invoiceID),
			zap.Int64("updated", updated),
		)
	}
	return updated, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func parseIDs(raw []string) ([]snowflake.ID, error) {
	if len(raw) == 0 {
		return nil, domain.ErrEmptySelection
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, value := range raw {
		id, err := parseID(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	"github.com/smallbiznis/hightide/internal/clock"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	"github.com/smallbiznis/hightide/internal/config"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/internal/observability/metrics"
	"github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/smallbiznis/hightide/internal/providers/pdf"
	"github.com/smallbiznis/hightide/pkg/db"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"github.com/smallbiznis/hightide/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Cfg            config.Config
	Program        *config.ProgramHolder
	Repo           domain.Repository
	CommissionRepo commissiondomain.Repository
	AffiliateRepo  affiliatedomain.Repository
	Rail           domain.DisbursementRail
	Outbox         notificationdomain.Outbox
	PDF            pdf.Provider
	Metrics        *metrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	currency       string
	program        *config.ProgramHolder
	repo           domain.Repository
	commissionRepo commissiondomain.Repository
	affiliateRepo  affiliatedomain.Repository
	rail           domain.DisbursementRail
	outbox         notificationdomain.Outbox
	pdf            pdf.Provider
	metrics        *metrics.Metrics
}

func New(p Params) domain.Service {
	currency := strings.ToLower(strings.TrimSpace(p.Cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payout.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		currency:       currency,
		program:        p.Program,
		repo:           p.Repo,
		commissionRepo: p.CommissionRepo,
		affiliateRepo:  p.AffiliateRepo,
		rail:           p.Rail,
		outbox:         p.Outbox,
		pdf:            p.PDF,
		metrics:        p.Metrics,
	}
}

type group struct {
	affiliateID snowflake.ID
	ids         []snowflake.ID
	cents       int64
}

// Generate batches every approved, unassigned commission into one pending
// payout per affiliate. Running it again without new approvals is a no-op.
func (s *Service) Generate(ctx context.Context) (domain.GenerateResult, error) {
	minimum := s.program.Get().MinimumPayoutCents
	var result domain.GenerateResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.commissionRepo.ListApprovedUnassigned(ctx, tx, db.IsPostgres(tx))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		groups := make([]*group, 0)
		index := make(map[snowflake.ID]*group)
		for _, row := range rows {
			g, ok := index[row.AffiliateID]
			if !ok {
				g = &group{affiliateID: row.AffiliateID}
				index[row.AffiliateID] = g
				groups = append(groups, g)
			}
			g.ids = append(g.ids, row.ID)
			g.cents += row.AmountCents
		}

		affiliateIDs := make([]snowflake.ID, 0, len(groups))
		for _, g := range groups {
			affiliateIDs = append(affiliateIDs, g.affiliateID)
		}
		methods, err := s.affiliateRepo.FindPrimaryPayoutMethods(ctx, tx, affiliateIDs)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for _, g := range groups {
			if g.cents <= 0 || g.cents < minimum {
				result.Deferred++
				continue
			}

			method := domain.MethodManual
			if m, ok := methods[g.affiliateID]; ok && m.Kind == affiliatedomain.PayoutMethodPayPal {
				method = domain.MethodPayPal
			}
			payout := domain.Payout{
				ID:              s.genID.Generate(),
				AffiliateID:     g.affiliateID,
				AmountCents:     g.cents,
				Currency:        s.currency,
				Status:          domain.StatusPending,
				Method:          method,
				CommissionCount: len(g.ids),
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.repo.Insert(ctx, tx, &payout); err != nil {
				return err
			}
			assigned, err := s.commissionRepo.AssignPayout(ctx, tx, payout.ID, g.ids, now)
			if err != nil {
				return err
			}
			if assigned != int64(len(g.ids)) {
				return domain.ErrAssignmentConflict
			}

			result.Payouts = append(result.Payouts, payout)
			result.CommissionCount += len(g.ids)
		}
		return nil
	})
	if err != nil {
		return domain.GenerateResult{}, err
	}

	s.metrics.RecordPayoutTransition(ctx, string(domain.StatusPending), int64(len(result.Payouts)))
	s.log.Info("payouts generated",
		zap.Int("payouts", len(result.Payouts)),
		zap.Int("commissions", result.CommissionCount),
		zap.Int("deferred", result.Deferred),
	)
	return result, nil
}

func (s *Service) Approve(ctx context.Context, ids []string) (domain.BulkResult, error) {
	parsed, err := parseIDs(ids)
	if err != nil {
		return domain.BulkResult{}, err
	}

	var updated int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, err := s.repo.FindByIDs(ctx, tx, parsed, domain.StatusPending)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}
		updated, err = s.repo.Transition(ctx, tx, idsOf(pending), []domain.Status{domain.StatusPending}, domain.StatusApproved, s.clock.Now())
		if err != nil {
			return err
		}
		return s.notify(ctx, tx, notificationdomain.KindPayoutApproved, pending, nil)
	})
	if err != nil {
		return domain.BulkResult{}, err
	}

	s.metrics.RecordPayoutTransition(ctx, string(domain.StatusApproved), updated)
	s.log.Info("payouts approved", zap.Int("requested", len(parsed)), zap.Int64("updated", updated))
	return domain.BulkResult{Updated: updated}, nil
}

func (s *Service) Deny(ctx context.Context, ids []string) (domain.BulkResult, error) {
	return s.transition(ctx, ids, []domain.Status{domain.StatusPending}, domain.StatusDenied)
}

// Revert sends denied or approved payouts back to review. Linked
// commissions keep their payout.
func (s *Service) Revert(ctx context.Context, ids []string) (domain.BulkResult, error) {
	return s.transition(ctx, ids, []domain.Status{domain.StatusDenied, domain.StatusApproved}, domain.StatusPending)
}

func (s *Service) transition(ctx context.Context, ids []string, from []domain.Status, to domain.Status) (domain.BulkResult, error) {
	parsed, err := parseIDs(ids)
	if err != nil {
		return domain.BulkResult{}, err
	}
	updated, err := s.repo.Transition(ctx, s.db, parsed, from, to, s.clock.Now())
	if err != nil {
		return domain.BulkResult{}, err
	}

	s.metrics.RecordPayoutTransition(ctx, string(to), updated)
	s.log.Info("payouts transitioned",
		zap.String("to", string(to)),
		zap.Int("requested", len(parsed)),
		zap.Int64("updated", updated),
	)
	return domain.BulkResult{Updated: updated}, nil
}

// Pay settles approved payouts. The rows are first claimed into processing so
// a concurrent Pay over the same ids disburses nothing. PayPal payouts go to
// the rail in one batch; a rail failure hands the claimed rows back to
// approved.
func (s *Service) Pay(ctx context.Context, ids []string) (domain.PayResult, error) {
	parsed, err := parseIDs(ids)
	if err != nil {
		return domain.PayResult{}, err
	}

	var payouts []domain.Payout
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.repo.Claim(ctx, tx, parsed, s.clock.Now())
		if err != nil {
			return err
		}
		payouts, err = s.repo.FindByIDs(ctx, tx, claimed, domain.StatusProcessing)
		return err
	})
	if err != nil {
		return domain.PayResult{}, err
	}
	if len(payouts) == 0 {
		return domain.PayResult{}, nil
	}

	affiliateIDs := make([]snowflake.ID, 0, len(payouts))
	for _, p := range payouts {
		affiliateIDs = append(affiliateIDs, p.AffiliateID)
	}
	methods, err := s.affiliateRepo.FindPrimaryPayoutMethods(ctx, s.db, affiliateIDs)
	if err != nil {
		s.release(ctx, payouts)
		return domain.PayResult{}, err
	}

	railEnabled := s.rail != nil && s.rail.Configured()
	completions := make([]domain.Completion, 0, len(payouts))
	var batch domain.Batch
	for _, p := range payouts {
		method, ok := methods[p.AffiliateID]
		if railEnabled && ok && method.Kind == affiliatedomain.PayoutMethodPayPal {
			batch.Items = append(batch.Items, domain.DisbursementItem{
				PayoutID:    p.ID,
				Receiver:    method.Account,
				AmountCents: p.AmountCents,
				Currency:    p.Currency,
				Note:        fmt.Sprintf("Affiliate payout %s", p.ID),
			})
			completions = append(completions, domain.Completion{ID: p.ID, Method: domain.MethodPayPal})
			continue
		}
		completions = append(completions, domain.Completion{ID: p.ID, Method: domain.MethodManual})
	}

	result := domain.PayResult{ViaRail: len(batch.Items), Manual: len(completions) - len(batch.Items)}
	if len(batch.Items) > 0 {
		receipt, err := s.rail.Disburse(ctx, batch)
		if err != nil {
			s.log.Error("disbursement failed, releasing claimed payouts",
				zap.Int("items", len(batch.Items)),
				zap.Error(err),
			)
			s.release(ctx, payouts)
			return domain.PayResult{}, fmt.Errorf("%w: %w", domain.ErrDisbursementFailed, err)
		}
		result.Reference = receipt.Reference
		for i := range completions {
			if completions[i].Method == domain.MethodPayPal {
				ref := receipt.Reference
				completions[i].Reference = &ref
			}
		}
	}

	byID := make(map[snowflake.ID]domain.Payout, len(payouts))
	for _, p := range payouts {
		byID[p.ID] = p
	}

	// the rail has been paid; finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		completed := make([]domain.Payout, 0, len(completions))
		for _, c := range completions {
			n, err := s.repo.Complete(ctx, tx, c, now)
			if err != nil {
				return err
			}
			if n == 0 {
				s.log.Warn("payout left processing state during pay", zap.String("payout_id", c.ID.String()))
				continue
			}
			p := byID[c.ID]
			p.Method = c.Method
			p.DisbursementReference = c.Reference
			completed = append(completed, p)
		}
		if len(completed) == 0 {
			return nil
		}
		if _, err := s.commissionRepo.MarkPaidByPayouts(ctx, tx, idsOf(completed), now); err != nil {
			return err
		}
		result.Completed = int64(len(completed))
		return s.notify(ctx, tx, notificationdomain.KindPayoutPaid, completed, func(p domain.Payout, payload map[string]any) {
			payload["method"] = string(p.Method)
			if p.DisbursementReference != nil {
				payload["reference"] = *p.DisbursementReference
			}
		})
	})
	if err != nil {
		// Money may already have moved, so the rows stay in processing for an
		// operator to reconcile against the reference.
		s.log.Error("completing paid payouts failed",
			zap.String("reference", result.Reference),
			zap.Int("payouts", len(completions)),
			zap.Error(err),
		)
		return domain.PayResult{}, err
	}

	s.metrics.RecordPayoutTransition(ctx, string(domain.StatusCompleted), result.Completed)
	s.log.Info("payouts paid",
		zap.Int64("completed", result.Completed),
		zap.Int("via_rail", result.ViaRail),
		zap.Int("manual", result.Manual),
		zap.String("reference", result.Reference),
	)
	return result, nil
}

// release hands claimed payouts back to approved. It runs detached from ctx
// so a canceled request does not strand the rows in processing.
func (s *Service) release(ctx context.Context, payouts []domain.Payout) {
	ctx = context.WithoutCancel(ctx)
	n, err := s.repo.Transition(ctx, s.db, idsOf(payouts), []domain.Status{domain.StatusProcessing}, domain.StatusApproved, s.clock.Now())
	if err != nil {
		s.log.Error("releasing claimed payouts failed",
			zap.Int("payouts", len(payouts)),
			zap.Error(err),
		)
		return
	}
	s.log.Info("claimed payouts released", zap.Int64("released", n))
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	filter := domain.ListFilter{}
	switch req.Status {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusProcessing, domain.StatusCompleted, domain.StatusDenied:
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

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, info := pagination.Page(items, page.Limit(), func(p *domain.Payout) int64 {
		return p.ID.Int64()
	})
	return domain.ListResponse{PageInfo: info, Payouts: items}, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Detail, error) {
	payoutID, err := parseID(id)
	if err != nil {
		return domain.Detail{}, err
	}
	payout, err := s.repo.FindByID(ctx, s.db, payoutID)
	if err != nil {
		return domain.Detail{}, err
	}
	if payout == nil {
		return domain.Detail{}, domain.ErrNotFound
	}
	commissions, err := s.commissionRepo.ListByPayout(ctx, s.db, payoutID)
	if err != nil {
		return domain.Detail{}, err
	}
	return domain.Detail{Payout: *payout, Commissions: commissions}, nil
}

func (s *Service) Statement(ctx context.Context, id string) ([]byte, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	affiliate, err := s.affiliateRepo.FindByID(ctx, s.db, detail.AffiliateID)
	if err != nil {
		return nil, err
	}

	data := pdf.StatementData{
		ProgramName: s.program.Get().NotificationSenderName,
		PayoutID:    detail.ID.String(),
		Status:      string(detail.Status),
		Method:      string(detail.Method),
		CreatedAt:   detail.CreatedAt.Format("2006-01-02"),
		Total:       money.Format(detail.AmountCents, detail.Currency),
	}
	if affiliate != nil {
		data.AffiliateName = affiliate.Name
		data.AffiliateEmail = affiliate.Email
	}
	if detail.CompletedAt != nil {
		data.CompletedAt = detail.CompletedAt.Format("2006-01-02")
	}
	if detail.DisbursementReference != nil {
		data.Reference = *detail.DisbursementReference
	}
	for _, c := range detail.Commissions {
		data.Lines = append(data.Lines, pdf.StatementLine{
			Date:    c.CreatedAt.Format("2006-01-02"),
			Invoice: c.StripeInvoiceID,
			Tier:    string(c.TierType),
			Rate:    fmt.Sprintf("%.2f%%", c.RateSnapshot),
			Amount:  money.Format(c.AmountCents, detail.Currency),
		})
	}
	return s.pdf.GenerateStatement(ctx, data)
}

func (s *Service) notify(ctx context.Context, tx *gorm.DB, kind notificationdomain.Kind, payouts []domain.Payout, extra func(domain.Payout, map[string]any)) error {
	affiliateIDs := make([]snowflake.ID, 0, len(payouts))
	for _, p := range payouts {
		affiliateIDs = append(affiliateIDs, p.AffiliateID)
	}
	affiliates, err := s.affiliateRepo.FindByIDs(ctx, tx, affiliateIDs)
	if err != nil {
		return err
	}
	byID := make(map[snowflake.ID]*affiliatedomain.Affiliate, len(affiliates))
	for _, a := range affiliates {
		byID[a.ID] = a
	}

	for _, p := range payouts {
		affiliate, ok := byID[p.AffiliateID]
		if !ok {
			continue
		}
		payload := map[string]any{
			"affiliate_name":   affiliate.Name,
			"amount":           money.Format(p.AmountCents, p.Currency),
			"amount_cents":     p.AmountCents,
			"commission_count": p.CommissionCount,
			"payout_id":        p.ID.String(),
		}
		if extra != nil {
			extra(p, payload)
		}
		err := s.outbox.Enqueue(ctx, tx, notificationdomain.Intent{
			Kind:      kind,
			Recipient: affiliate.Email,
			DedupeKey: string(kind) + ":" + p.ID.String(),
			Payload:   payload,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func idsOf(payouts []domain.Payout) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(payouts))
	for _, p := range payouts {
		ids = append(ids, p.ID)
	}
	return ids
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

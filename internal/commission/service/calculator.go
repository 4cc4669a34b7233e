package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	"github.com/smallbiznis/hightide/internal/commission/domain"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/pkg/db"
	"github.com/smallbiznis/hightide/pkg/money"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type credit struct {
	affiliate *affiliatedomain.Affiliate
	rate      float64
	level     int
}

// CalculateAndInsert credits the paying affiliate and walks up at most two
// recruiting ancestors. Ancestors are credited regardless of their status.
// All reads and writes go through tx, so the lines commit together with the
// payment that produced them.
func (s *Service) CalculateAndInsert(ctx context.Context, tx *gorm.DB, in domain.CalculateInput) ([]domain.Commission, error) {
	if tx == nil {
		tx = s.db
	}
	in.InvoiceID = strings.TrimSpace(in.InvoiceID)
	if in.InvoiceID == "" || in.PaymentCents <= 0 || in.PaymentNumber < 1 {
		return nil, domain.ErrInvalidInput
	}

	payer, err := s.affiliateRepo.FindActiveByID(ctx, tx, in.AffiliateID)
	if err != nil {
		return nil, err
	}
	if payer == nil {
		s.log.Debug("paying affiliate missing or inactive, no commission",
			zap.String("affiliate_id", in.AffiliateID.String()),
			zap.String("invoice_id", in.InvoiceID),
		)
		return nil, nil
	}

	credits, err := s.resolveCredits(ctx, tx, payer, in)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rows := make([]domain.Commission, 0, len(credits))
	for _, c := range credits {
		amount := money.PercentOf(in.PaymentCents, c.rate)
		if amount <= 0 {
			continue
		}
		rows = append(rows, domain.Commission{
			ID:              s.genID.Generate(),
			AffiliateID:     c.affiliate.ID,
			CustomerID:      in.CustomerID,
			StripeInvoiceID: in.InvoiceID,
			AmountCents:     amount,
			RateSnapshot:    c.rate,
			PaymentNumber:   in.PaymentNumber,
			TierType:        domain.TierForLevel(c.level),
			Status:          domain.StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := s.repo.InsertBatch(ctx, tx, rows); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateInvoice
		}
		return nil, err
	}

	for _, row := range rows {
		s.metrics.RecordCommission(ctx, string(row.TierType), row.AmountCents)
	}
	s.log.Info("commissions recorded",
		zap.String("invoice_id", in.InvoiceID),
		zap.String("customer_id", in.CustomerID.String()),
		zap.Int("payment_number", in.PaymentNumber),
		zap.Int("lines", len(rows)),
	)

	s.notifyEarned(ctx, tx, in, credits, rows)
	return rows, nil
}

// resolveCredits evaluates each level's own duration cap against the same
// payment number. A level beyond its cap is skipped but the walk continues.
func (s *Service) resolveCredits(ctx context.Context, tx *gorm.DB, payer *affiliatedomain.Affiliate, in domain.CalculateInput) ([]credit, error) {
	credits := make([]credit, 0, affiliatedomain.MaxTierDepth)
	if withinCap(payer, in) {
		credits = append(credits, credit{affiliate: payer, rate: payer.CommissionRate, level: 1})
	}

	seen := map[snowflake.ID]struct{}{payer.ID: {}}
	parentID := payer.ParentID
	for level := 2; level <= affiliatedomain.MaxTierDepth && parentID != nil; level++ {
		if _, loop := seen[*parentID]; loop {
			s.log.Warn("cycle in affiliate parent links",
				zap.String("affiliate_id", payer.ID.String()),
				zap.String("parent_id", parentID.String()),
			)
			break
		}
		ancestor, err := s.affiliateRepo.FindByID(ctx, tx, *parentID)
		if err != nil {
			return nil, err
		}
		if ancestor == nil {
			break
		}
		seen[ancestor.ID] = struct{}{}

		if withinCap(ancestor, in) {
			credits = append(credits, credit{affiliate: ancestor, rate: ancestor.SubAffiliateRate, level: level})
		}
		parentID = ancestor.ParentID
	}
	return credits, nil
}

func withinCap(a *affiliatedomain.Affiliate, in domain.CalculateInput) bool {
	limit := a.CommissionDurationMonths
	if in.PlanType == domain.PlanAnnual {
		limit = 1
	}
	return in.PaymentNumber <= limit
}

// notifyEarned is best effort. Each enqueue runs in a nested transaction so
// a failed insert rolls back to its savepoint instead of poisoning tx.
func (s *Service) notifyEarned(ctx context.Context, tx *gorm.DB, in domain.CalculateInput, credits []credit, rows []domain.Commission) {
	byAffiliate := make(map[snowflake.ID]*affiliatedomain.Affiliate, len(credits))
	for _, c := range credits {
		byAffiliate[c.affiliate.ID] = c.affiliate
	}

	type total struct {
		cents int64
		count int
	}
	totals := make(map[snowflake.ID]*total, len(byAffiliate))
	order := make([]snowflake.ID, 0, len(byAffiliate))
	for _, row := range rows {
		t, ok := totals[row.AffiliateID]
		if !ok {
			t = &total{}
			totals[row.AffiliateID] = t
			order = append(order, row.AffiliateID)
		}
		t.cents += row.AmountCents
		t.count++
	}

	for _, affiliateID := range order {
		affiliate := byAffiliate[affiliateID]
		t := totals[affiliateID]
		intent := notificationdomain.Intent{
			Kind:      notificationdomain.KindCommissionEarned,
			Recipient: affiliate.Email,
			DedupeKey: "commission_earned:" + affiliateID.String() + ":" + in.InvoiceID,
			Payload: map[string]any{
				"affiliate_name":   affiliate.Name,
				"amount":           money.Format(t.cents, s.currency),
				"amount_cents":     t.cents,
				"commission_count": t.count,
				"customer_email":   in.CustomerEmail,
				"invoice_id":       in.InvoiceID,
			},
		}
		err := tx.Transaction(func(sp *gorm.DB) error {
			return s.outbox.Enqueue(ctx, sp, intent)
		})
		if err != nil {
			s.log.Warn("enqueue commission_earned failed",
				zap.String("affiliate_id", affiliateID.String()),
				zap.String("invoice_id", in.InvoiceID),
				zap.Error(err),
			)
		}
	}
}

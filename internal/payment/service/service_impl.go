package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/clock"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	customerdomain "github.com/smallbiznis/hightide/internal/customer/domain"
	"github.com/smallbiznis/hightide/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/hightide/internal/payment/domain"
	trackingdomain "github.com/smallbiznis/hightide/internal/tracking/domain"
	"github.com/smallbiznis/hightide/pkg/db"
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
	CustomerRepo   customerdomain.Repository
	TrackingRepo   trackingdomain.Repository
	Tracking       trackingdomain.Service
	CommissionRepo commissiondomain.Repository
	Calculator     commissiondomain.Calculator
	Commissions    commissiondomain.Service
	Metrics        *metrics.Metrics `optional:"true"`
}

// Service maps normalized processor events onto the customer lifecycle.
type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	customerRepo   customerdomain.Repository
	trackingRepo   trackingdomain.Repository
	tracking       trackingdomain.Service
	commissionRepo commissiondomain.Repository
	calculator     commissiondomain.Calculator
	commissions    commissiondomain.Service
	metrics        *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		customerRepo:   p.CustomerRepo,
		trackingRepo:   p.TrackingRepo,
		tracking:       p.Tracking,
		commissionRepo: p.CommissionRepo,
		calculator:     p.Calculator,
		commissions:    p.Commissions,
		metrics:        p.Metrics,
	}
}

var _ paymentdomain.Normalizer = (*Service)(nil)

func (s *Service) CheckoutCompleted(ctx context.Context, e paymentdomain.CheckoutCompleted) (string, error) {
	stripeCustomerID := strings.TrimSpace(e.CustomerID)
	if stripeCustomerID == "" {
		return paymentdomain.OutcomeIgnored, nil
	}

	existing, err := s.customerRepo.FindByStripeCustomerID(ctx, s.db, stripeCustomerID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return paymentdomain.OutcomeDuplicate, nil
	}

	lead, err := s.checkoutLead(ctx, e, stripeCustomerID)
	if err != nil {
		return "", err
	}
	if lead == nil {
		s.log.Info("checkout not attributed", zap.String("event_id", e.ID))
		return paymentdomain.OutcomeUnattributed, nil
	}

	state, eventType := customerdomain.StateSignedUp, customerdomain.EventSignedUp
	switch e.SubscriptionStatus {
	case paymentdomain.SubscriptionTrialing:
		state, eventType = customerdomain.StateTrialing, customerdomain.EventTrialStarted
	case paymentdomain.SubscriptionActive:
		state = customerdomain.ActiveState(e.PlanType)
	}

	now := s.clock.Now()
	customer := customerdomain.Customer{
		ID:               s.genID.Generate(),
		LeadID:           lead.ID,
		AffiliateID:      lead.AffiliateID,
		StripeCustomerID: stripeCustomerID,
		State:            state,
		PlanType:         planOrDefault(e.PlanType),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if sub := strings.TrimSpace(e.SubscriptionID); sub != "" {
		customer.StripeSubscriptionID = &sub
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.customerRepo.Insert(ctx, tx, &customer); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, &customer.ID, &lead.ID, eventType, e.Envelope, eventRefs{})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return paymentdomain.OutcomeDuplicate, nil
		}
		return "", err
	}

	s.log.Info("customer created from checkout",
		zap.String("customer_id", customer.ID.String()),
		zap.String("affiliate_id", customer.AffiliateID.String()),
		zap.String("state", string(customer.State)),
	)
	return paymentdomain.OutcomeProcessed, nil
}

// checkoutLead binds the session to a lead through its affiliate marker,
// falling back to a lead captured earlier for the same processor id or email.
// A session attributed to an internal campaign never yields a lead.
func (s *Service) checkoutLead(ctx context.Context, e paymentdomain.CheckoutCompleted, stripeCustomerID string) (*trackingdomain.Lead, error) {
	if strings.TrimSpace(e.AffiliateSlug) != "" && strings.TrimSpace(e.Email) != "" {
		res, err := s.tracking.RecordLead(ctx, trackingdomain.LeadRequest{
			Email:            e.Email,
			AffiliateSlug:    e.AffiliateSlug,
			StripeCustomerID: stripeCustomerID,
		})
		switch {
		case err == nil && res.Campaign:
			return nil, nil
		case err == nil && res.LeadID != nil:
			return s.trackingRepo.FindLeadByID(ctx, s.db, *res.LeadID)
		case errors.Is(err, trackingdomain.ErrAffiliateNotFound),
			errors.Is(err, trackingdomain.ErrMissingAttribution),
			errors.Is(err, trackingdomain.ErrInvalidEmail):
			s.log.Warn("checkout marker did not resolve",
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
		case err != nil:
			return nil, err
		}
	}
	return s.resolveLead(ctx, stripeCustomerID, e.Email)
}

// resolveLead finds the lead by processor customer id, then by email. An
// email match is backfilled with the processor id.
func (s *Service) resolveLead(ctx context.Context, stripeCustomerID, email string) (*trackingdomain.Lead, error) {
	if stripeCustomerID != "" {
		lead, err := s.trackingRepo.FindLeadByStripeCustomerID(ctx, s.db, stripeCustomerID)
		if err != nil || lead != nil {
			return lead, err
		}
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	lead, err := s.trackingRepo.FindLeadByEmail(ctx, s.db, email)
	if err != nil || lead == nil {
		return lead, err
	}
	if stripeCustomerID != "" && lead.StripeCustomerID == nil {
		if _, err := s.trackingRepo.AttachStripeCustomer(ctx, s.db, lead.ID, stripeCustomerID, s.clock.Now()); err != nil {
			return nil, err
		}
		lead.StripeCustomerID = &stripeCustomerID
	}
	return lead, nil
}

func (s *Service) InvoicePaymentSucceeded(ctx context.Context, e paymentdomain.InvoicePaymentSucceeded) (string, error) {
	if e.AmountPaidCents <= 0 {
		return paymentdomain.OutcomeIgnored, nil
	}

	invoiceID := strings.TrimSpace(e.InvoiceID)
	if invoiceID == "" {
		return paymentdomain.OutcomeIgnored, nil
	}
	// Fast path only. The counted_invoices claim below is what keeps two
	// concurrent deliveries of one invoice from both counting.
	seen, err := s.commissionRepo.ExistsForInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return "", err
	}
	if !seen {
		seen, err = s.customerRepo.PaymentRecorded(ctx, s.db, invoiceID)
		if err != nil {
			return "", err
		}
	}
	if seen {
		return paymentdomain.OutcomeDuplicate, nil
	}

	stripeCustomerID := strings.TrimSpace(e.CustomerID)
	if stripeCustomerID == "" {
		return paymentdomain.OutcomeUnattributed, nil
	}
	lead, err := s.resolveLead(ctx, stripeCustomerID, e.Email)
	if err != nil {
		return "", err
	}
	if lead == nil {
		s.log.Info("payment not attributed", zap.String("invoice_id", invoiceID))
		return paymentdomain.OutcomeUnattributed, nil
	}

	plan := planOrDefault(e.PlanType)
	now := s.clock.Now()
	var (
		customer      *customerdomain.Customer
		paymentNumber int
		commissions   []commissiondomain.Commission
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		customer, err = s.customerRepo.FindByStripeCustomerID(ctx, tx, stripeCustomerID)
		if err != nil {
			return err
		}

		eventType := customerdomain.EventRecurringPayment
		if customer == nil {
			customer = &customerdomain.Customer{
				ID:               s.genID.Generate(),
				LeadID:           lead.ID,
				AffiliateID:      lead.AffiliateID,
				StripeCustomerID: stripeCustomerID,
				State:            customerdomain.ActiveState(plan),
				PlanType:         plan,
				PaymentCount:     1,
				FirstPaymentAt:   &now,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if sub := strings.TrimSpace(e.SubscriptionID); sub != "" {
				customer.StripeSubscriptionID = &sub
			}
			if err := s.customerRepo.Insert(ctx, tx, customer); err != nil {
				return err
			}
			if err := s.claimInvoice(ctx, tx, customer.ID, invoiceID, e.Envelope.ID, now); err != nil {
				return err
			}
			paymentNumber = 1
			eventType = customerdomain.EventFirstPayment
		} else {
			if err := s.claimInvoice(ctx, tx, customer.ID, invoiceID, e.Envelope.ID, now); err != nil {
				return err
			}
			previous := customer.State
			paymentNumber, err = s.customerRepo.RecordPayment(ctx, tx, customer.ID, customerdomain.PaymentUpdate{
				State:    customerdomain.ActiveState(plan),
				PlanType: plan,
				PaidAt:   now,
			})
			if err != nil {
				return err
			}
			if previous == customerdomain.StateTrialing || previous == customerdomain.StateSignedUp || paymentNumber == 1 {
				eventType = customerdomain.EventFirstPayment
			}
		}

		err = s.logEvent(ctx, tx, &customer.ID, &customer.LeadID, eventType, e.Envelope, eventRefs{
			amountCents: e.AmountPaidCents,
			invoiceID:   invoiceID,
			chargeID:    strings.TrimSpace(e.ChargeID),
		})
		if err != nil {
			return err
		}

		commissions, err = s.calculator.CalculateAndInsert(ctx, tx, commissiondomain.CalculateInput{
			CustomerID:    customer.ID,
			AffiliateID:   customer.AffiliateID,
			InvoiceID:     invoiceID,
			PaymentCents:  e.AmountPaidCents,
			PaymentNumber: paymentNumber,
			PlanType:      commissionPlan(plan),
			CustomerEmail: lead.Email,
		})
		return err
	})
	if errors.Is(err, errInvoiceCounted) || errors.Is(err, commissiondomain.ErrDuplicateInvoice) {
		s.log.Info("invoice already counted", zap.String("invoice_id", invoiceID))
		return paymentdomain.OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	s.log.Info("payment normalized",
		zap.String("customer_id", customer.ID.String()),
		zap.String("invoice_id", invoiceID),
		zap.Int("payment_number", paymentNumber),
		zap.Int("commissions", len(commissions)),
	)
	return paymentdomain.OutcomeProcessed, nil
}

var errInvoiceCounted = errors.New("invoice_already_counted")

// claimInvoice must run before payment_count moves.
func (s *Service) claimInvoice(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, invoiceID, eventID string, now time.Time) error {
	err := s.customerRepo.ClaimInvoice(ctx, tx, &customerdomain.CountedInvoice{
		StripeInvoiceID: invoiceID,
		CustomerID:      customerID,
		StripeEventID:   eventID,
		CreatedAt:       now,
	})
	if db.IsDuplicateKeyErr(err) {
		return errInvoiceCounted
	}
	return err
}

func (s *Service) InvoicePaymentFailed(ctx context.Context, e paymentdomain.InvoicePaymentFailed) (string, error) {
	customer, err := s.customerRepo.FindByStripeCustomerID(ctx, s.db, strings.TrimSpace(e.CustomerID))
	if err != nil {
		return "", err
	}
	if customer == nil {
		return paymentdomain.OutcomeUnattributed, nil
	}
	err = s.logEvent(ctx, s.db, &customer.ID, &customer.LeadID, customerdomain.EventPaymentFailed, e.Envelope, eventRefs{
		amountCents: e.AmountDueCents,
		invoiceID:   strings.TrimSpace(e.InvoiceID),
	})
	if err != nil {
		return "", err
	}
	return paymentdomain.OutcomeProcessed, nil
}

func (s *Service) SubscriptionCreated(ctx context.Context, e paymentdomain.SubscriptionCreated) (string, error) {
	customer, err := s.customerRepo.FindByStripeCustomerID(ctx, s.db, strings.TrimSpace(e.CustomerID))
	if err != nil {
		return "", err
	}
	if customer == nil {
		return paymentdomain.OutcomeUnattributed, nil
	}
	if e.Status != paymentdomain.SubscriptionTrialing {
		return paymentdomain.OutcomeIgnored, nil
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.customerRepo.UpdateState(ctx, tx, customer.ID, customerdomain.StateTrialing, now); err != nil {
			return err
		}
		if sub := strings.TrimSpace(e.SubscriptionID); sub != "" {
			if err := s.customerRepo.SetSubscription(ctx, tx, customer.ID, sub, now); err != nil {
				return err
			}
		}
		if customer.State == customerdomain.StateTrialing {
			return nil
		}
		return s.logEvent(ctx, tx, &customer.ID, &customer.LeadID, customerdomain.EventTrialStarted, e.Envelope, eventRefs{})
	})
	if err != nil {
		return "", err
	}
	return paymentdomain.OutcomeProcessed, nil
}

func (s *Service) SubscriptionUpdated(ctx context.Context, e paymentdomain.SubscriptionUpdated) (string, error) {
	customer, err := s.customerRepo.FindByStripeCustomerID(ctx, s.db, strings.TrimSpace(e.CustomerID))
	if err != nil {
		return "", err
	}
	if customer == nil {
		return paymentdomain.OutcomeUnattributed, nil
	}
	if e.Status != paymentdomain.SubscriptionActive {
		return paymentdomain.OutcomeIgnored, nil
	}

	plan := planOrDefault(e.PlanType)
	now := s.clock.Now()
	switch customer.State {
	case customerdomain.StateCanceled:
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := s.customerRepo.Resubscribe(ctx, tx, customer.ID, customerdomain.ActiveState(plan), plan, now)
			if err != nil || !ok {
				return err
			}
			return s.logEvent(ctx, tx, &customer.ID, &customer.LeadID, customerdomain.EventResubscribed, e.Envelope, eventRefs{})
		})
	case customerdomain.StateTrialing:
		err = s.customerRepo.UpdateState(ctx, s.db, customer.ID, customerdomain.ActiveState(plan), now)
	default:
		return paymentdomain.OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	return paymentdomain.OutcomeProcessed, nil
}

func (s *Service) SubscriptionDeleted(ctx context.Context, e paymentdomain.SubscriptionDeleted) (string, error) {
	customer, err := s.customerRepo.FindByStripeCustomerID(ctx, s.db, strings.TrimSpace(e.CustomerID))
	if err != nil {
		return "", err
	}
	if customer == nil {
		return paymentdomain.OutcomeUnattributed, nil
	}
	if customer.State == customerdomain.StateCanceled {
		return paymentdomain.OutcomeDuplicate, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.customerRepo.Cancel(ctx, tx, customer.ID, s.clock.Now()); err != nil {
			return err
		}
		return s.logEvent(ctx, tx, &customer.ID, &customer.LeadID, customerdomain.EventCanceled, e.Envelope, eventRefs{})
	})
	if err != nil {
		return "", err
	}
	return paymentdomain.OutcomeProcessed, nil
}

func (s *Service) ChargeRefunded(ctx context.Context, e paymentdomain.ChargeRefunded) (string, error) {
	return s.clawback(ctx, e.Envelope, customerdomain.EventRefunded, e.CustomerID, e.InvoiceID, e.ChargeID, e.AmountRefundedCents)
}

func (s *Service) DisputeCreated(ctx context.Context, e paymentdomain.DisputeCreated) (string, error) {
	return s.clawback(ctx, e.Envelope, customerdomain.EventDisputed, e.CustomerID, e.InvoiceID, e.ChargeID, e.AmountCents)
}

// clawback voids the pending commissions of the charge's invoice. Approved and
// paid commissions stay as they are.
func (s *Service) clawback(
	ctx context.Context,
	env paymentdomain.Envelope,
	eventType customerdomain.EventType,
	stripeCustomerID, invoiceID, chargeID string,
	amountCents int64,
) (string, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	chargeID = strings.TrimSpace(chargeID)
	if invoiceID == "" && chargeID != "" {
		resolved, err := s.customerRepo.InvoiceForCharge(ctx, s.db, chargeID)
		if err != nil {
			return "", err
		}
		invoiceID = resolved
	}
	if invoiceID == "" {
		s.log.Warn("clawback without invoice", zap.String("event_id", env.ID), zap.String("charge_id", chargeID))
		return paymentdomain.OutcomeUnattributed, nil
	}

	voided, err := s.commissions.VoidPendingForInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}

	if stripeCustomerID = strings.TrimSpace(stripeCustomerID); stripeCustomerID != "" {
		customer, err := s.customerRepo.FindByStripeCustomerID(ctx, s.db, stripeCustomerID)
		if err != nil {
			return "", err
		}
		if customer != nil {
			err = s.logEvent(ctx, s.db, &customer.ID, &customer.LeadID, eventType, env, eventRefs{
				amountCents: amountCents,
				invoiceID:   invoiceID,
				chargeID:    chargeID,
			})
			if err != nil {
				return "", err
			}
		}
	}

	s.log.Info("commissions clawed back",
		zap.String("invoice_id", invoiceID),
		zap.String("reason", string(eventType)),
		zap.Int64("voided", voided),
	)
	return paymentdomain.OutcomeProcessed, nil
}

type eventRefs struct {
	amountCents int64
	invoiceID   string
	chargeID    string
}

func (s *Service) logEvent(
	ctx context.Context,
	tx *gorm.DB,
	customerID, leadID *snowflake.ID,
	eventType customerdomain.EventType,
	env paymentdomain.Envelope,
	refs eventRefs,
) error {
	return s.customerRepo.InsertEvent(ctx, tx, &customerdomain.Event{
		ID:              s.genID.Generate(),
		CustomerID:      customerID,
		LeadID:          leadID,
		EventType:       eventType,
		AmountCents:     refs.amountCents,
		StripeInvoiceID: refs.invoiceID,
		StripeChargeID:  refs.chargeID,
		StripeEventID:   env.ID,
		CreatedAt:       s.clock.Now(),
	})
}

func planOrDefault(plan customerdomain.PlanType) customerdomain.PlanType {
	if plan == customerdomain.PlanAnnual {
		return plan
	}
	return customerdomain.PlanMonthly
}

func commissionPlan(plan customerdomain.PlanType) commissiondomain.PlanType {
	if plan == customerdomain.PlanAnnual {
		return commissiondomain.PlanAnnual
	}
	return commissiondomain.PlanMonthly
}

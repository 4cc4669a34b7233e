package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/customer/domain"
	"gorm.io/gorm"
)

const customerColumns = `id, lead_id, affiliate_id, stripe_customer_id, stripe_subscription_id, state,
	plan_type, payment_count, first_payment_at, canceled_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customers (`+customerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		customer.ID,
		customer.LeadID,
		customer.AffiliateID,
		customer.StripeCustomerID,
		customer.StripeSubscriptionID,
		customer.State,
		customer.PlanType,
		customer.PaymentCount,
		customer.FirstPaymentAt,
		customer.CanceledAt,
		customer.CreatedAt,
		customer.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Customer, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

func (r *repo) FindByStripeCustomerID(ctx context.Context, db *gorm.DB, stripeCustomerID string) (*domain.Customer, error) {
	return r.findOne(ctx, db, `stripe_customer_id = ?`, stripeCustomerID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, args ...any) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT `+customerColumns+` FROM customers WHERE `+where+` LIMIT 1`,
		args...,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == 0 {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) RecordPayment(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.PaymentUpdate) (int, error) {
	err := db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET payment_count = payment_count + 1,
		     state = ?,
		     plan_type = ?,
		     first_payment_at = COALESCE(first_payment_at, ?),
		     updated_at = ?
		 WHERE id = ?`,
		update.State,
		update.PlanType,
		update.PaidAt,
		update.PaidAt,
		id,
	).Error
	if err != nil {
		return 0, err
	}

	var count int
	err = db.WithContext(ctx).Raw(`SELECT payment_count FROM customers WHERE id = ?`, id).Scan(&count).Error
	return count, err
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, id snowflake.ID, state domain.State, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET state = ?, updated_at = ? WHERE id = ?`,
		state,
		now,
		id,
	).Error
}

func (r *repo) SetSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET stripe_subscription_id = ?, updated_at = ? WHERE id = ?`,
		subscriptionID,
		now,
		id,
	).Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE customers SET state = ?, canceled_at = ?, updated_at = ? WHERE id = ?`,
		domain.StateCanceled,
		now,
		now,
		id,
	).Error
}

func (r *repo) Resubscribe(ctx context.Context, db *gorm.DB, id snowflake.ID, state domain.State, plan domain.PlanType, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE customers
		 SET state = ?, plan_type = ?, payment_count = 0, canceled_at = NULL, updated_at = ?
		 WHERE id = ? AND state = ?`,
		state,
		plan,
		now,
		id,
		domain.StateCanceled,
	)
	return result.RowsAffected > 0, result.Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO customer_events (id, customer_id, lead_id, event_type, amount_cents, stripe_event_id, stripe_invoice_id, stripe_charge_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.CustomerID,
		event.LeadID,
		event.EventType,
		event.AmountCents,
		event.StripeEventID,
		event.StripeInvoiceID,
		event.StripeChargeID,
		event.CreatedAt,
	).Error
}

func (r *repo) ClaimInvoice(ctx context.Context, db *gorm.DB, claim *domain.CountedInvoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO counted_invoices (stripe_invoice_id, customer_id, stripe_event_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		claim.StripeInvoiceID,
		claim.CustomerID,
		claim.StripeEventID,
		claim.CreatedAt,
	).Error
}

func (r *repo) PaymentRecorded(ctx context.Context, db *gorm.DB, invoiceID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM customer_events WHERE stripe_invoice_id = ? AND event_type IN ?`,
		invoiceID,
		[]domain.EventType{domain.EventFirstPayment, domain.EventRecurringPayment},
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) InvoiceForCharge(ctx context.Context, db *gorm.DB, chargeID string) (string, error) {
	var invoiceID string
	err := db.WithContext(ctx).Raw(
		`SELECT stripe_invoice_id FROM customer_events
		 WHERE stripe_charge_id = ? AND stripe_invoice_id <> ''
		 ORDER BY id ASC LIMIT 1`,
		chargeID,
	).Scan(&invoiceID).Error
	return invoiceID, err
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, customerID snowflake.ID) ([]domain.Event, error) {
	var events []domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, customer_id, lead_id, event_type, amount_cents, stripe_event_id, stripe_invoice_id, stripe_charge_id, created_at
		 FROM customer_events WHERE customer_id = ? ORDER BY id ASC`,
		customerID,
	).Scan(&events).Error
	return events, err
}

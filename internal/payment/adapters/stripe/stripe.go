package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	customerdomain "github.com/smallbiznis/hightide/internal/customer/domain"
	paymentdomain "github.com/smallbiznis/hightide/internal/payment/domain"
)

const DefaultTolerance = 5 * time.Minute

// Adapter verifies Stripe-Signature headers and decodes Stripe events.
type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	now           func() time.Time
}

func New(webhookSecret string, tolerance time.Duration, now func() time.Time) *Adapter {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &Adapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		tolerance:     tolerance,
		now:           now,
	}
}

func (a *Adapter) Configured() bool {
	return a.webhookSecret != ""
}

func (a *Adapter) Verify(payload []byte, headers http.Header) error {
	if !a.Configured() {
		return paymentdomain.ErrNotConfigured
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, ok := parseStripeSignature(sigHeader)
	if !ok {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	skew := a.now().Sub(time.Unix(unix, 0))
	if math.Abs(float64(skew)) > float64(a.tolerance) {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(a.webhookSecret, timestamp, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

// Sign computes the v1 signature Stripe sends for payload at timestamp.
func Sign(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) Parse(payload []byte) (paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	env := paymentdomain.Envelope{
		ID:      event.ID,
		Type:    event.Type,
		Created: timestamp(event.Created, 0),
	}
	switch event.Type {
	case "checkout.session.completed":
		return parseCheckout(env, event.Data.Object)
	case "invoice.payment_succeeded", "invoice.paid":
		return parseInvoicePaid(env, event.Data.Object)
	case "invoice.payment_failed":
		return parseInvoiceFailed(env, event.Data.Object)
	case "customer.subscription.created":
		sub, err := decodeSubscription(event.Data.Object)
		if err != nil {
			return nil, err
		}
		return paymentdomain.SubscriptionCreated{
			Envelope:       env,
			SubscriptionID: sub.ID,
			CustomerID:     sub.Customer.ID,
			Status:         sub.Status,
			PlanType:       sub.planType(),
		}, nil
	case "customer.subscription.updated":
		sub, err := decodeSubscription(event.Data.Object)
		if err != nil {
			return nil, err
		}
		return paymentdomain.SubscriptionUpdated{
			Envelope:       env,
			SubscriptionID: sub.ID,
			CustomerID:     sub.Customer.ID,
			Status:         sub.Status,
			PlanType:       sub.planType(),
		}, nil
	case "customer.subscription.deleted":
		sub, err := decodeSubscription(event.Data.Object)
		if err != nil {
			return nil, err
		}
		return paymentdomain.SubscriptionDeleted{
			Envelope:       env,
			SubscriptionID: sub.ID,
			CustomerID:     sub.Customer.ID,
		}, nil
	case "charge.refunded":
		return parseRefund(env, event.Data.Object)
	case "charge.dispute.created":
		return parseDispute(env, event.Data.Object)
	default:
		return paymentdomain.Ignored{Envelope: env}, nil
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

// expandable decodes a field Stripe sends either as an id or as an expanded object.
type expandable struct {
	ID  string
	raw json.RawMessage
}

func (e *expandable) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &e.ID)
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	e.ID = head.ID
	e.raw = append(json.RawMessage(nil), b...)
	return nil
}

func (e expandable) decode(v any) bool {
	if len(e.raw) == 0 {
		return false
	}
	return json.Unmarshal(e.raw, v) == nil
}

type stripePrice struct {
	Recurring *struct {
		Interval string `json:"interval"`
	} `json:"recurring"`
}

type stripePlan struct {
	Interval string `json:"interval"`
}

type stripeLineItem struct {
	Price *stripePrice `json:"price"`
	Plan  *stripePlan  `json:"plan"`
}

func (l stripeLineItem) interval() string {
	if l.Price != nil && l.Price.Recurring != nil {
		return l.Price.Recurring.Interval
	}
	if l.Plan != nil {
		return l.Plan.Interval
	}
	return ""
}

type stripeList struct {
	Data []stripeLineItem `json:"data"`
}

func (l stripeList) planType() customerdomain.PlanType {
	for _, item := range l.Data {
		if interval := item.interval(); interval != "" {
			return planFromInterval(interval)
		}
	}
	return customerdomain.PlanMonthly
}

type stripeSubscription struct {
	ID       string     `json:"id"`
	Customer expandable `json:"customer"`
	Status   string     `json:"status"`
	Items    stripeList `json:"items"`
}

func (s stripeSubscription) planType() customerdomain.PlanType {
	return s.Items.planType()
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Customer          expandable        `json:"customer"`
	Subscription      expandable        `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerEmail     string            `json:"customer_email"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

type stripeInvoice struct {
	ID            string     `json:"id"`
	Customer      expandable `json:"customer"`
	Subscription  expandable `json:"subscription"`
	Charge        expandable `json:"charge"`
	CustomerEmail string     `json:"customer_email"`
	AmountPaid    int64      `json:"amount_paid"`
	AmountDue     int64      `json:"amount_due"`
	Lines         stripeList `json:"lines"`
}

type stripeCharge struct {
	ID             string     `json:"id"`
	Customer       expandable `json:"customer"`
	Invoice        expandable `json:"invoice"`
	AmountRefunded int64      `json:"amount_refunded"`
}

type stripeDispute struct {
	ID     string     `json:"id"`
	Charge expandable `json:"charge"`
	Amount int64      `json:"amount"`
}

func parseCheckout(env paymentdomain.Envelope, raw json.RawMessage) (paymentdomain.Event, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	email := session.CustomerEmail
	if session.CustomerDetails != nil && strings.TrimSpace(session.CustomerDetails.Email) != "" {
		email = session.CustomerDetails.Email
	}
	out := paymentdomain.CheckoutCompleted{
		Envelope:       env,
		SessionID:      session.ID,
		CustomerID:     session.Customer.ID,
		SubscriptionID: session.Subscription.ID,
		Email:          strings.TrimSpace(email),
		AffiliateSlug: firstNonEmpty(
			session.ClientReferenceID,
			session.Metadata["am_id"],
			session.Metadata["affiliate_slug"],
		),
		PlanType: planFromInterval(session.Metadata["plan_interval"]),
	}

	var sub stripeSubscription
	if session.Subscription.decode(&sub) {
		out.SubscriptionStatus = sub.Status
		out.PlanType = sub.planType()
	}
	return out, nil
}

func parseInvoicePaid(env paymentdomain.Envelope, raw json.RawMessage) (paymentdomain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if invoice.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return paymentdomain.InvoicePaymentSucceeded{
		Envelope:        env,
		InvoiceID:       invoice.ID,
		ChargeID:        invoice.Charge.ID,
		CustomerID:      invoice.Customer.ID,
		SubscriptionID:  invoice.Subscription.ID,
		Email:           strings.TrimSpace(invoice.CustomerEmail),
		AmountPaidCents: invoice.AmountPaid,
		PlanType:        invoice.Lines.planType(),
	}, nil
}

func parseInvoiceFailed(env paymentdomain.Envelope, raw json.RawMessage) (paymentdomain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if invoice.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return paymentdomain.InvoicePaymentFailed{
		Envelope:       env,
		InvoiceID:      invoice.ID,
		CustomerID:     invoice.Customer.ID,
		Email:          strings.TrimSpace(invoice.CustomerEmail),
		AmountDueCents: invoice.AmountDue,
	}, nil
}

func parseRefund(env paymentdomain.Envelope, raw json.RawMessage) (paymentdomain.Event, error) {
	var charge stripeCharge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if charge.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	return paymentdomain.ChargeRefunded{
		Envelope:            env,
		ChargeID:            charge.ID,
		InvoiceID:           charge.Invoice.ID,
		CustomerID:          charge.Customer.ID,
		AmountRefundedCents: charge.AmountRefunded,
	}, nil
}

func parseDispute(env paymentdomain.Envelope, raw json.RawMessage) (paymentdomain.Event, error) {
	var dispute stripeDispute
	if err := json.Unmarshal(raw, &dispute); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if dispute.ID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	out := paymentdomain.DisputeCreated{
		Envelope:    env,
		DisputeID:   dispute.ID,
		ChargeID:    dispute.Charge.ID,
		AmountCents: dispute.Amount,
	}
	var charge stripeCharge
	if dispute.Charge.decode(&charge) {
		out.InvoiceID = charge.Invoice.ID
		out.CustomerID = charge.Customer.ID
	}
	return out, nil
}

func decodeSubscription(raw json.RawMessage) (stripeSubscription, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return stripeSubscription{}, paymentdomain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return stripeSubscription{}, paymentdomain.ErrInvalidEvent
	}
	return sub, nil
}

func planFromInterval(interval string) customerdomain.PlanType {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "year", "annual", "yearly":
		return customerdomain.PlanAnnual
	default:
		return customerdomain.PlanMonthly
	}
}

func parseStripeSignature(header string) (string, []string, bool) {
	var timestamp string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		keyValue := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch strings.TrimSpace(keyValue[0]) {
		case "t":
			timestamp = strings.TrimSpace(keyValue[1])
		case "v1":
			signatures = append(signatures, strings.TrimSpace(keyValue[1]))
		}
	}
	return timestamp, signatures, timestamp != "" && len(signatures) > 0
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/hightide/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	Adapter    paymentdomain.Adapter
	Normalizer paymentdomain.Normalizer
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	adapter    paymentdomain.Adapter
	normalizer paymentdomain.Normalizer
	metrics    *metrics.Metrics
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		adapter:    p.Adapter,
		normalizer: p.Normalizer,
		metrics:    p.Metrics,
	}
}

// IngestWebhook verifies, records and dispatches one delivery. Only
// verification and decoding errors are returned; handler failures are logged
// and recorded as the event outcome.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if err := s.adapter.Verify(payload, headers); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	event, err := s.adapter.Parse(payload)
	if err != nil {
		return err
	}
	header := event.Header()

	record := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        paymentdomain.ProviderStripe,
		ProviderEventID: header.ID,
		EventType:       header.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, paymentdomain.ProviderStripe, header.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.metrics.RecordWebhookEvent(ctx, header.Type, paymentdomain.OutcomeDuplicate)
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	log := s.log.With(
		zap.String("event_id", header.ID),
		zap.String("event_type", header.Type),
	)
	outcome, err := s.dispatch(ctx, event)
	if err != nil {
		log.Error("webhook handler failed", zap.Error(err))
		outcome = paymentdomain.OutcomeFailed
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, outcome, s.clock.Now()); err != nil {
		log.Error("mark webhook processed", zap.Error(err))
	}
	s.metrics.RecordWebhookEvent(ctx, header.Type, outcome)
	log.Debug("webhook processed", zap.String("outcome", outcome))
	return nil
}

func (s *Service) dispatch(ctx context.Context, event paymentdomain.Event) (string, error) {
	switch e := event.(type) {
	case paymentdomain.CheckoutCompleted:
		return s.normalizer.CheckoutCompleted(ctx, e)
	case paymentdomain.InvoicePaymentSucceeded:
		return s.normalizer.InvoicePaymentSucceeded(ctx, e)
	case paymentdomain.InvoicePaymentFailed:
		return s.normalizer.InvoicePaymentFailed(ctx, e)
	case paymentdomain.SubscriptionCreated:
		return s.normalizer.SubscriptionCreated(ctx, e)
	case paymentdomain.SubscriptionUpdated:
		return s.normalizer.SubscriptionUpdated(ctx, e)
	case paymentdomain.SubscriptionDeleted:
		return s.normalizer.SubscriptionDeleted(ctx, e)
	case paymentdomain.ChargeRefunded:
		return s.normalizer.ChargeRefunded(ctx, e)
	case paymentdomain.DisputeCreated:
		return s.normalizer.DisputeCreated(ctx, e)
	case paymentdomain.Ignored:
		return paymentdomain.OutcomeIgnored, nil
	default:
		return "", errors.New("unhandled_event_variant")
	}
}

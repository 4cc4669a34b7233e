package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/internal/observability/metrics"
	"github.com/smallbiznis/hightide/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	baseBackoff     = time.Minute
	maxBackoff      = time.Hour
	leaseDuration   = 5 * time.Minute
	defaultAttempts = 8
	maxErrorLength  = 500
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Email   email.Provider
	Cfg     config.Config
	Program *config.ProgramHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	email       email.Provider
	program     *config.ProgramHolder
	metrics     *metrics.Metrics
	maxAttempts int
}

func New(p Params) *Service {
	maxAttempts := p.Cfg.Scheduler.NotifyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultAttempts
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("notification.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		email:       p.Email,
		program:     p.Program,
		metrics:     p.Metrics,
		maxAttempts: maxAttempts,
	}
}

func (s *Service) Enqueue(ctx context.Context, db *gorm.DB, intent domain.Intent) error {
	switch intent.Kind {
	case domain.KindCommissionEarned, domain.KindPayoutApproved, domain.KindPayoutPaid, domain.KindAffiliateInvited:
	default:
		return domain.ErrInvalidKind
	}
	recipient := strings.TrimSpace(intent.Recipient)
	if recipient == "" {
		return domain.ErrInvalidRecipient
	}
	dedupeKey := strings.TrimSpace(intent.DedupeKey)
	if dedupeKey == "" {
		return domain.ErrInvalidDedupeKey
	}
	if db == nil {
		db = s.db
	}

	payload := datatypes.JSONMap{}
	for key, value := range intent.Payload {
		payload[key] = value
	}

	now := s.clock.Now()
	inserted, err := s.repo.Insert(ctx, db, &domain.Notification{
		ID:            s.genID.Generate(),
		Kind:          intent.Kind,
		Recipient:     recipient,
		Payload:       payload,
		DedupeKey:     dedupeKey,
		Status:        domain.StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("notification already enqueued", zap.String("dedupe_key", dedupeKey))
	}
	return nil
}

// Dispatch claims due rows, leases them so other replicas skip them, then
// delivers outside the claiming transaction.
func (s *Service) Dispatch(ctx context.Context, batchSize int) (domain.DispatchResult, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	now := s.clock.Now()

	var claimed []domain.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.ListDue(ctx, tx, now, batchSize)
		if err != nil {
			return err
		}
		ids := make([]snowflake.ID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		if err := s.repo.Lease(ctx, tx, ids, now.Add(leaseDuration)); err != nil {
			return err
		}
		claimed = rows
		return nil
	})
	if err != nil {
		return domain.DispatchResult{}, err
	}

	result := domain.DispatchResult{Claimed: len(claimed)}
	senderName := config.DefaultProgramConfig().NotificationSenderName
	if s.program != nil {
		senderName = s.program.Get().NotificationSenderName
	}

	for _, row := range claimed {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		data := make(map[string]any, len(row.Payload)+1)
		for key, value := range row.Payload {
			data[key] = value
		}
		data["sender_name"] = senderName

		attempts := row.Attempts + 1
		sendErr := s.email.SendTemplate(ctx, []string{row.Recipient}, string(row.Kind), data)
		at := s.clock.Now()

		switch {
		case sendErr == nil:
			if err := s.repo.MarkSent(ctx, s.db, row.ID, attempts, at); err != nil {
				return result, err
			}
			result.Sent++
			s.metrics.RecordNotification(ctx, string(row.Kind), "sent")
		case attempts >= s.maxAttempts:
			if err := s.repo.MarkFailed(ctx, s.db, row.ID, attempts, truncate(sendErr.Error()), at); err != nil {
				return result, err
			}
			result.Failed++
			s.metrics.RecordNotification(ctx, string(row.Kind), "failed")
			s.log.Error("notification delivery gave up",
				zap.String("notification_id", row.ID.String()),
				zap.String("kind", string(row.Kind)),
				zap.Int("attempts", attempts),
				zap.Error(sendErr),
			)
		default:
			next := at.Add(Backoff(attempts))
			if err := s.repo.MarkRetry(ctx, s.db, row.ID, attempts, next, truncate(sendErr.Error()), at); err != nil {
				return result, err
			}
			result.Retried++
			s.metrics.RecordNotification(ctx, string(row.Kind), "retry")
			s.log.Warn("notification delivery failed",
				zap.String("notification_id", row.ID.String()),
				zap.String("kind", string(row.Kind)),
				zap.Int("attempts", attempts),
				zap.Time("next_attempt_at", next),
				zap.Error(sendErr),
			)
		}
	}
	return result, nil
}

func (s *Service) Backlog(ctx context.Context) (int64, error) {
	return s.repo.CountPending(ctx, s.db)
}

// Backoff returns the delay before retry n (1-based): 1m, 2m, 4m ... capped at 1h.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

func truncate(value string) string {
	if len(value) <= maxErrorLength {
		return value
	}
	return value[:maxErrorLength]
}

var (
	_ domain.Outbox     = (*Service)(nil)
	_ domain.Dispatcher = (*Service)(nil)
)

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	"github.com/smallbiznis/hightide/internal/authorization"
	"github.com/smallbiznis/hightide/internal/clock"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	obscontext "github.com/smallbiznis/hightide/internal/observability/context"
	obsmetrics "github.com/smallbiznis/hightide/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/smallbiznis/hightide/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobDispatchNotifications = "dispatch_notifications"
	JobGeneratePayouts       = "generate_payouts"

	lockKeyPrefix = "hightide:scheduler:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
	Dispatcher notificationdomain.Dispatcher
	Payouts    payoutdomain.Service
	Locker     ratelimit.Locker             `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	AuthzSvc   authorization.Service        `optional:"true"`
	AuditSvc   auditdomain.Service          `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	dispatcher notificationdomain.Dispatcher
	payouts    payoutdomain.Service
	locker     ratelimit.Locker
	metrics    *obsmetrics.SchedulerMetrics
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service

	mu            sync.Mutex
	lastPayoutRun time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Dispatcher == nil || p.Payouts == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		dispatcher: p.Dispatcher,
		payouts:    p.Payouts,
		locker:     p.Locker,
		metrics:    p.Metrics,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
	}, nil
}

// runJob runs fn under the job timeout and, when a locker is configured,
// under a lease so only one replica runs the job at a time. Deadline errors
// are soft: they are counted and logged but not returned.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(parent, lockKeyPrefix+name, s.cfg.LockTTL)
		if err != nil {
			s.metrics.IncJobError(name, err)
			s.log.Warn("scheduler lock unavailable", zap.String("job", name), zap.Error(err))
			return nil
		}
		if !acquired {
			s.metrics.IncJobSkipped(name, obsmetrics.SchedulerSkipReasonLockHeld)
			s.log.Debug("scheduler job skipped, lock held", zap.String("job", name))
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.Background(), lockKeyPrefix+name, token); err != nil {
				s.log.Warn("scheduler lock release failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce dispatches due notifications and, when enabled and due, generates payouts.
func (s *Scheduler) RunOnce(parent context.Context) error {
	err := s.runJob(parent, JobDispatchNotifications, s.cfg.DispatchBatchSize, s.cfg.JobTimeout, s.DispatchNotificationsJob)

	if s.payoutDue() {
		payoutErr := s.runJob(parent, JobGeneratePayouts, 0, s.cfg.JobTimeout, s.GeneratePayoutsJob)
		if payoutErr == nil {
			s.markPayoutRun()
		}
		err = errors.Join(err, payoutErr)
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) DispatchNotificationsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	result, err := s.dispatcher.Dispatch(ctx, s.cfg.DispatchBatchSize)
	if err != nil {
		return err
	}
	run.AddProcessed(result.Sent)
	s.metrics.AddBatchProcessed(JobDispatchNotifications, "notification", result.Claimed)
	if result.Claimed > 0 {
		s.logger(ctx).Info("notifications dispatched",
			zap.Int("claimed", result.Claimed),
			zap.Int("sent", result.Sent),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed),
		)
	}

	backlog, err := s.dispatcher.Backlog(ctx)
	if err != nil {
		s.logger(ctx).Warn("failed to read outbox backlog", zap.Error(err))
		return nil
	}
	s.metrics.SetOutboxBacklog(backlog)
	return nil
}

func (s *Scheduler) GeneratePayoutsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	if err := s.authorizeSystem(ctx, authorization.ObjectPayout, authorization.ActionPayoutGenerate); err != nil {
		return err
	}

	result, err := s.payouts.Generate(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(len(result.Payouts))
	s.metrics.AddBatchProcessed(JobGeneratePayouts, "payout", len(result.Payouts))
	s.metrics.AddBatchProcessed(JobGeneratePayouts, "commission", result.CommissionCount)

	s.emitAuditEvent(ctx, "payout.auto_generated", map[string]any{
		"payouts":     len(result.Payouts),
		"commissions": result.CommissionCount,
		"deferred":    result.Deferred,
	})
	return nil
}

func (s *Scheduler) payoutDue() bool {
	if !s.cfg.PayoutAutoGenerate {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPayoutRun.IsZero() {
		return true
	}
	return !s.clock.Now().Before(s.lastPayoutRun.Add(s.cfg.PayoutInterval))
}

func (s *Scheduler) markPayoutRun() {
	s.mu.Lock()
	s.lastPayoutRun = s.clock.Now()
	s.mu.Unlock()
}

func (s *Scheduler) authorizeSystem(ctx context.Context, object string, action string) error {
	if s.authzSvc == nil {
		return nil
	}
	return s.authzSvc.Authorize(ctx, authorization.Actor{Type: authorization.RoleSystem}, object, action)
}

func (s *Scheduler) emitAuditEvent(ctx context.Context, action string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorID := "scheduler"
	if err := s.auditSvc.AuditLog(ctx, string(auditdomain.ActorTypeSystem), &actorID, action, "payout", nil, metadata); err != nil {
		s.logger(ctx).Warn("failed to emit audit event", zap.String("action", action), zap.Error(err))
	}
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/hightide/internal/clock"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/hightide/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/smallbiznis/hightide/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, batchSize int) (notificationdomain.DispatchResult, error) {
	args := m.Called(ctx, batchSize)
	return args.Get(0).(notificationdomain.DispatchResult), args.Error(1)
}

func (m *mockDispatcher) Backlog(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// mockPayouts only implements Generate; other calls panic on the nil interface.
type mockPayouts struct {
	payoutdomain.Service
	mock.Mock
}

func (m *mockPayouts) Generate(ctx context.Context) (payoutdomain.GenerateResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(payoutdomain.GenerateResult), args.Error(1)
}

type testEnv struct {
	sched      *Scheduler
	registry   *prometheus.Registry
	dispatcher *mockDispatcher
	payouts    *mockPayouts
	clock      *clock.FakeClock
}

func newTestScheduler(t *testing.T, cfg Config, locker ratelimit.Locker) testEnv {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{
		ServiceName: "hightide",
		Environment: "test",
	})
	env := testEnv{
		registry:   registry,
		dispatcher: &mockDispatcher{},
		payouts:    &mockPayouts{},
		clock:      clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	}
	env.sched, err = New(Params{
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      env.clock,
		Config:     cfg,
		Dispatcher: env.dispatcher,
		Payouts:    env.payouts,
		Locker:     locker,
		Metrics:    metrics,
	})
	require.NoError(t, err)
	return env
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	env := newTestScheduler(t, Config{}, nil)

	err := env.sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "hightide",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, env.registry, "hightide_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "hightide",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, env.registry, "hightide_scheduler_job_errors_total", errorLabels))
}

func TestRunJobReturnsNonTimeoutErrors(t *testing.T) {
	env := newTestScheduler(t, Config{}, nil)

	boom := errors.New("boom")
	err := env.sched.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunJobSkipsWhenLockHeld(t *testing.T) {
	locker := ratelimit.NewLocalLocker()
	env := newTestScheduler(t, Config{}, locker)

	_, ok, err := locker.TryLock(context.Background(), lockKeyPrefix+"locked_job", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	err = env.sched.runJob(context.Background(), "locked_job", 0, time.Second, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)

	labels := map[string]string{
		"service": "hightide",
		"env":     "test",
		"job":     "locked_job",
		"reason":  obsmetrics.SchedulerSkipReasonLockHeld,
	}
	assert.Equal(t, float64(1), getCounterValue(t, env.registry, "hightide_scheduler_job_skipped_total", labels))
}

func TestRunJobReleasesLock(t *testing.T) {
	locker := ratelimit.NewLocalLocker()
	env := newTestScheduler(t, Config{}, locker)

	runs := 0
	for i := 0; i < 2; i++ {
		err := env.sched.runJob(context.Background(), "released_job", 0, time.Second, func(context.Context) error {
			runs++
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, runs)
}

func TestRunOnceDispatchesAndRecordsBacklog(t *testing.T) {
	env := newTestScheduler(t, Config{DispatchBatchSize: 10}, nil)

	env.dispatcher.On("Dispatch", mock.Anything, 10).
		Return(notificationdomain.DispatchResult{Claimed: 3, Sent: 2, Retried: 1}, nil).Once()
	env.dispatcher.On("Backlog", mock.Anything).Return(int64(7), nil).Once()

	require.NoError(t, env.sched.RunOnce(context.Background()))

	env.dispatcher.AssertExpectations(t)
	env.payouts.AssertNotCalled(t, "Generate", mock.Anything)
	assert.Equal(t, float64(3), getCounterValue(t, env.registry, "hightide_scheduler_batch_processed_total", map[string]string{
		"service":  "hightide",
		"env":      "test",
		"job":      JobDispatchNotifications,
		"resource": "notification",
	}))
	assert.Equal(t, float64(7), getGaugeValue(t, env.registry, "hightide_notification_outbox_backlog"))
}

func TestRunOnceGeneratesPayoutsOncePerInterval(t *testing.T) {
	env := newTestScheduler(t, Config{PayoutAutoGenerate: true, PayoutInterval: time.Hour}, nil)

	env.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(notificationdomain.DispatchResult{}, nil)
	env.dispatcher.On("Backlog", mock.Anything).Return(int64(0), nil)
	env.payouts.On("Generate", mock.Anything).
		Return(payoutdomain.GenerateResult{Payouts: []payoutdomain.Payout{{}, {}}, CommissionCount: 5}, nil)

	require.NoError(t, env.sched.RunOnce(context.Background()))
	require.NoError(t, env.sched.RunOnce(context.Background()))
	env.payouts.AssertNumberOfCalls(t, "Generate", 1)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.sched.RunOnce(context.Background()))
	env.payouts.AssertNumberOfCalls(t, "Generate", 2)
}

func TestRunOnceRetriesPayoutsAfterFailure(t *testing.T) {
	env := newTestScheduler(t, Config{PayoutAutoGenerate: true, PayoutInterval: time.Hour}, nil)

	env.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(notificationdomain.DispatchResult{}, nil)
	env.dispatcher.On("Backlog", mock.Anything).Return(int64(0), nil)
	env.payouts.On("Generate", mock.Anything).
		Return(payoutdomain.GenerateResult{}, errors.New("db down")).Once()
	env.payouts.On("Generate", mock.Anything).
		Return(payoutdomain.GenerateResult{}, nil).Once()

	assert.Error(t, env.sched.RunOnce(context.Background()))
	require.NoError(t, env.sched.RunOnce(context.Background()))
	env.payouts.AssertNumberOfCalls(t, "Generate", 2)
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metric := findMetric(t, registry, name, labels)
	require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()
	metric := findMetric(t, registry, name, map[string]string{"service": "hightide", "env": "test"})
	require.NotNil(t, metric.Gauge, "metric %s is not a gauge", name)
	return metric.GetGauge().GetValue()
}

func findMetric(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return nil
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, SchedulerJobReasonUnknown},
		{context.DeadlineExceeded, SchedulerJobReasonDeadlineExceeded},
		{fmt.Errorf("send: %w", ErrUpstream), SchedulerJobReasonUpstream},
		{&pgconn.PgError{Code: "55P03"}, SchedulerJobReasonDBLockTimeout},
		{&pgconn.PgError{Code: "40001"}, SchedulerJobReasonSerializationFailure},
		{&pgconn.PgError{Code: "23505"}, SchedulerJobReasonUniqueViolation},
		{&pgconn.PgError{Code: "08006"}, SchedulerJobReasonDB},
		{assert.AnError, SchedulerJobReasonUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifySchedulerJobReason(tc.err))
	}
}

func TestSchedulerMetricsRecordsOnRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetrics(registry, Config{ServiceName: "hightide-test", Environment: "test"})

	m.IncJobRun("notification_dispatch")
	m.IncJobRun("notification_dispatch")
	m.ObserveJobDuration("notification_dispatch", 150*time.Millisecond)
	m.IncJobError("notification_dispatch", context.DeadlineExceeded)
	m.AddBatchProcessed("notification_dispatch", "notifications", 3)
	m.SetOutboxBacklog(7)

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, family := range families {
		byName[family.GetName()] = family
	}

	runs := byName["hightide_scheduler_job_runs_total"]
	require.NotNil(t, runs)
	assert.Equal(t, 2.0, runs.GetMetric()[0].GetCounter().GetValue())

	processed := byName["hightide_scheduler_batch_processed_total"]
	require.NotNil(t, processed)
	assert.Equal(t, 3.0, processed.GetMetric()[0].GetCounter().GetValue())

	backlog := byName["hightide_notification_outbox_backlog"]
	require.NotNil(t, backlog)
	assert.Equal(t, 7.0, backlog.GetMetric()[0].GetGauge().GetValue())

	labels := map[string]string{}
	for _, pair := range runs.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	assert.Equal(t, "hightide-test", labels["service"])
	assert.Equal(t, "test", labels["env"])
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.IncJobRun("x")
	m.IncJobError("x", assert.AnError)
	m.SetOutboxBacklog(1)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordClick(ctx, "affiliate")
	m.RecordCommission(ctx, "direct", 500)
	m.RecordPayoutTransition(ctx, "completed", 2)
}

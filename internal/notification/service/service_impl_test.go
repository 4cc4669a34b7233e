package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/config"
	"github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/internal/notification/repository"
	"github.com/smallbiznis/hightide/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockEmail struct {
	mock.Mock
}

func (m *mockEmail) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.Called(ctx, to, subject, htmlBody).Error(0)
}

func (m *mockEmail) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	return m.Called(ctx, to, templateName, data).Error(0)
}

func newTestService(t *testing.T, provider *mockEmail, maxAttempts int) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t, &domain.Notification{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	cfg := config.Config{}
	cfg.Scheduler.NotifyMaxAttempts = maxAttempts
	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Repo:    repository.Provide(),
		Email:   provider,
		Cfg:     cfg,
		Program: config.NewStaticProgramHolder(config.DefaultProgramConfig()),
	})
	return svc, db, fake
}

func intent(key string) domain.Intent {
	return domain.Intent{
		Kind:      domain.KindPayoutApproved,
		Recipient: "jane@example.com",
		Payload:   map[string]any{"amount": "$5.00"},
		DedupeKey: key,
	}
}

func TestEnqueueDeduplicates(t *testing.T) {
	svc, db, _ := newTestService(t, &mockEmail{}, 3)
	ctx := context.Background()

	require.NoError(t, svc.Enqueue(ctx, nil, intent("payout_approved:1")))
	require.NoError(t, svc.Enqueue(ctx, db, intent("payout_approved:1")))
	require.NoError(t, svc.Enqueue(ctx, db, intent("payout_approved:2")))

	var count int64
	require.NoError(t, db.Model(&domain.Notification{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestEnqueueValidates(t *testing.T) {
	svc, _, _ := newTestService(t, &mockEmail{}, 3)
	ctx := context.Background()

	bad := intent("k")
	bad.Kind = "unknown"
	assert.ErrorIs(t, svc.Enqueue(ctx, nil, bad), domain.ErrInvalidKind)

	bad = intent("k")
	bad.Recipient = " "
	assert.ErrorIs(t, svc.Enqueue(ctx, nil, bad), domain.ErrInvalidRecipient)

	bad = intent("")
	assert.ErrorIs(t, svc.Enqueue(ctx, nil, bad), domain.ErrInvalidDedupeKey)
}

func TestDispatchMarksSent(t *testing.T) {
	provider := &mockEmail{}
	provider.On("SendTemplate", mock.Anything, []string{"jane@example.com"}, "payout_approved", mock.MatchedBy(func(data map[string]any) bool {
		return data["amount"] == "$5.00" && data["sender_name"] == "Hightide Affiliates"
	})).Return(nil).Once()

	svc, db, _ := newTestService(t, provider, 3)
	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, nil, intent("payout_approved:1")))

	result, err := svc.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, domain.DispatchResult{Claimed: 1, Sent: 1}, result)

	var row domain.Notification
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, domain.StatusSent, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.NotNil(t, row.SentAt)

	result, err = svc.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Claimed)
	provider.AssertExpectations(t)
}

func TestDispatchRetriesWithBackoffThenFails(t *testing.T) {
	provider := &mockEmail{}
	provider.On("SendTemplate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	svc, db, fake := newTestService(t, provider, 2)
	ctx := context.Background()
	require.NoError(t, svc.Enqueue(ctx, nil, intent("payout_approved:1")))

	result, err := svc.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)

	var row domain.Notification
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, domain.StatusPending, row.Status)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "smtp down", *row.LastError)
	assert.True(t, row.NextAttemptAt.Equal(fake.Now().Add(time.Minute)))

	// Not yet due.
	result, err = svc.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Claimed)

	fake.Advance(2 * time.Minute)
	result, err = svc.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, domain.StatusFailed, row.Status)
	assert.Equal(t, 2, row.Attempts)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, Backoff(0))
	assert.Equal(t, time.Minute, Backoff(1))
	assert.Equal(t, 2*time.Minute, Backoff(2))
	assert.Equal(t, 32*time.Minute, Backoff(6))
	assert.Equal(t, time.Hour, Backoff(7))
	assert.Equal(t, time.Hour, Backoff(20))
}

package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	affiliaterepository "github.com/smallbiznis/hightide/internal/affiliate/repository"
	"github.com/smallbiznis/hightide/internal/clock"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	commissionrepository "github.com/smallbiznis/hightide/internal/commission/repository"
	"github.com/smallbiznis/hightide/internal/config"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/smallbiznis/hightide/internal/payout/repository"
	"github.com/smallbiznis/hightide/internal/providers/pdf"
	"github.com/smallbiznis/hightide/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockOutbox struct {
	mock.Mock
}

func (m *mockOutbox) Enqueue(ctx context.Context, db *gorm.DB, intent notificationdomain.Intent) error {
	return m.Called(ctx, db, intent).Error(0)
}

type mockRail struct {
	mock.Mock
}

func (m *mockRail) Configured() bool {
	return m.Called().Bool(0)
}

func (m *mockRail) Disburse(ctx context.Context, batch domain.Batch) (domain.Receipt, error) {
	args := m.Called(ctx, batch)
	return args.Get(0).(domain.Receipt), args.Error(1)
}

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	node   *snowflake.Node
	rail   *mockRail
	outbox *mockOutbox
	holder *config.ProgramHolder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t,
		&affiliatedomain.Affiliate{},
		&affiliatedomain.PayoutMethod{},
		&commissiondomain.Commission{},
		&domain.Payout{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	outbox := &mockOutbox{}
	outbox.On("Enqueue", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	rail := &mockRail{}
	rail.On("Configured").Return(true).Maybe()
	holder := config.NewStaticProgramHolder(config.DefaultProgramConfig())

	svc := New(Params{
		DB:             db,
		Log:            zap.NewNop(),
		GenID:          node,
		Clock:          clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)),
		Cfg:            config.Config{Currency: "usd"},
		Program:        holder,
		Repo:           repository.Provide(),
		CommissionRepo: commissionrepository.Provide(),
		AffiliateRepo:  affiliaterepository.Provide(),
		Rail:           rail,
		Outbox:         outbox,
		PDF:            pdf.New(),
	})
	return fixture{svc: svc, db: db, node: node, rail: rail, outbox: outbox, holder: holder}
}

func (f fixture) affiliate(t *testing.T, slug string, method affiliatedomain.PayoutMethodKind) *affiliatedomain.Affiliate {
	t.Helper()
	aff := &affiliatedomain.Affiliate{
		ID:                       f.node.Generate(),
		Slug:                     slug,
		Name:                     slug,
		Email:                    slug + "@example.com",
		CommissionRate:           50,
		CommissionDurationMonths: 12,
		Tier:                     1,
		Status:                   affiliatedomain.StatusActive,
		Role:                     affiliatedomain.RoleAffiliate,
	}
	require.NoError(t, f.db.Create(aff).Error)
	if method != "" {
		require.NoError(t, f.db.Create(&affiliatedomain.PayoutMethod{
			ID:          f.node.Generate(),
			AffiliateID: aff.ID,
			Kind:        method,
			Account:     slug + "@paypal.example.com",
			IsPrimary:   true,
		}).Error)
	}
	return aff
}

func (f fixture) commission(t *testing.T, aff *affiliatedomain.Affiliate, invoice string, cents int64, status commissiondomain.Status) commissiondomain.Commission {
	t.Helper()
	row := commissiondomain.Commission{
		ID:              f.node.Generate(),
		AffiliateID:     aff.ID,
		CustomerID:      snowflake.ID(99),
		StripeInvoiceID: invoice,
		AmountCents:     cents,
		RateSnapshot:    50,
		PaymentNumber:   1,
		TierType:        commissiondomain.TierDirect,
		Status:          status,
	}
	require.NoError(t, f.db.Create(&row).Error)
	return row
}

func (f fixture) payoutIDs(result domain.GenerateResult) []string {
	ids := make([]string, 0, len(result.Payouts))
	for _, p := range result.Payouts {
		ids = append(ids, p.ID.String())
	}
	return ids
}

func TestGenerateBatchesApprovedCommissionsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.affiliate(t, "jane", affiliatedomain.PayoutMethodPayPal)
	joe := f.affiliate(t, "joe", "")
	f.commission(t, jane, "in_1", 500, commissiondomain.StatusApproved)
	f.commission(t, jane, "in_2", 700, commissiondomain.StatusApproved)
	f.commission(t, joe, "in_3", 300, commissiondomain.StatusApproved)
	f.commission(t, joe, "in_4", 900, commissiondomain.StatusPending)

	first, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	require.Len(t, first.Payouts, 2)
	assert.Equal(t, 3, first.CommissionCount)

	byAffiliate := map[snowflake.ID]domain.Payout{}
	for _, p := range first.Payouts {
		byAffiliate[p.AffiliateID] = p
	}
	assert.Equal(t, int64(1200), byAffiliate[jane.ID].AmountCents)
	assert.Equal(t, 2, byAffiliate[jane.ID].CommissionCount)
	assert.Equal(t, domain.MethodPayPal, byAffiliate[jane.ID].Method)
	assert.Equal(t, domain.MethodManual, byAffiliate[joe.ID].Method)
	assert.Equal(t, domain.StatusPending, byAffiliate[joe.ID].Status)

	second, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Payouts)

	var count int64
	require.NoError(t, f.db.Model(&domain.Payout{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestGenerateDefersBalancesBelowMinimum(t *testing.T) {
	f := newFixture(t)
	program := config.DefaultProgramConfig()
	program.MinimumPayoutCents = 1000
	f.holder.Set(program)

	small := f.affiliate(t, "small", "")
	big := f.affiliate(t, "big", "")
	low := f.commission(t, small, "in_small", 400, commissiondomain.StatusApproved)
	f.commission(t, big, "in_big", 1500, commissiondomain.StatusApproved)

	result, err := f.svc.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Payouts, 1)
	assert.Equal(t, big.ID, result.Payouts[0].AffiliateID)
	assert.Equal(t, 1, result.Deferred)

	var stored commissiondomain.Commission
	require.NoError(t, f.db.First(&stored, "id = ?", low.ID).Error)
	assert.Nil(t, stored.PayoutID)
}

func TestReviewTransitionsOnlyMoveEligibleRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.affiliate(t, "a", "")
	b := f.affiliate(t, "b", "")
	f.commission(t, a, "in_a", 500, commissiondomain.StatusApproved)
	f.commission(t, b, "in_b", 500, commissiondomain.StatusApproved)
	generated, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	ids := f.payoutIDs(generated)
	require.Len(t, ids, 2)

	res, err := f.svc.Approve(ctx, ids[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Updated)
	f.outbox.AssertCalled(t, "Enqueue", mock.Anything, mock.Anything, mock.MatchedBy(func(intent notificationdomain.Intent) bool {
		return intent.Kind == notificationdomain.KindPayoutApproved && intent.DedupeKey == "payout_approved:"+ids[0]
	}))

	res, err = f.svc.Deny(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Updated, "approved payout cannot be denied")

	res, err = f.svc.Revert(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Updated)

	var pending int64
	require.NoError(t, f.db.Model(&domain.Payout{}).Where("status = ?", domain.StatusPending).Count(&pending).Error)
	assert.Equal(t, int64(2), pending)

	var linked int64
	require.NoError(t, f.db.Model(&commissiondomain.Commission{}).Where("payout_id IS NOT NULL").Count(&linked).Error)
	assert.Equal(t, int64(2), linked)

	_, err = f.svc.Approve(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrEmptySelection)
}

func TestPaySplitsRailAndManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.affiliate(t, "jane", affiliatedomain.PayoutMethodPayPal)
	joe := f.affiliate(t, "joe", affiliatedomain.PayoutMethodManual)
	f.commission(t, jane, "in_1", 1200, commissiondomain.StatusApproved)
	f.commission(t, joe, "in_2", 800, commissiondomain.StatusApproved)
	generated, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	ids := f.payoutIDs(generated)
	_, err = f.svc.Approve(ctx, ids)
	require.NoError(t, err)

	f.rail.On("Disburse", mock.Anything, mock.MatchedBy(func(batch domain.Batch) bool {
		return len(batch.Items) == 1 &&
			batch.Items[0].Receiver == "jane@paypal.example.com" &&
			batch.Items[0].AmountCents == 1200
	})).Return(domain.Receipt{Reference: "PB-42", SenderBatchID: "01H"}, nil).Once()

	result, err := f.svc.Pay(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Completed)
	assert.Equal(t, 1, result.ViaRail)
	assert.Equal(t, 1, result.Manual)
	assert.Equal(t, "PB-42", result.Reference)
	f.rail.AssertExpectations(t)

	var payouts []domain.Payout
	require.NoError(t, f.db.Find(&payouts).Error)
	for _, p := range payouts {
		assert.Equal(t, domain.StatusCompleted, p.Status)
		assert.NotNil(t, p.CompletedAt)
		if p.AffiliateID == jane.ID {
			require.NotNil(t, p.DisbursementReference)
			assert.Equal(t, "PB-42", *p.DisbursementReference)
		} else {
			assert.Nil(t, p.DisbursementReference)
			assert.Equal(t, domain.MethodManual, p.Method)
		}
	}

	var paid int64
	require.NoError(t, f.db.Model(&commissiondomain.Commission{}).Where("status = ?", commissiondomain.StatusPaid).Count(&paid).Error)
	assert.Equal(t, int64(2), paid)

	again, err := f.svc.Pay(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Completed)
}

func TestPayAbortsOnRailFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.affiliate(t, "jane", affiliatedomain.PayoutMethodPayPal)
	joe := f.affiliate(t, "joe", "")
	f.commission(t, jane, "in_1", 1200, commissiondomain.StatusApproved)
	f.commission(t, joe, "in_2", 800, commissiondomain.StatusApproved)
	generated, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	ids := f.payoutIDs(generated)
	_, err = f.svc.Approve(ctx, ids)
	require.NoError(t, err)

	f.rail.On("Disburse", mock.Anything, mock.Anything).Return(domain.Receipt{}, errors.New("paypal down")).Once()

	_, err = f.svc.Pay(ctx, ids)
	require.ErrorIs(t, err, domain.ErrDisbursementFailed)

	var approved int64
	require.NoError(t, f.db.Model(&domain.Payout{}).Where("status = ?", domain.StatusApproved).Count(&approved).Error)
	assert.Equal(t, int64(2), approved)

	var paid int64
	require.NoError(t, f.db.Model(&commissiondomain.Commission{}).Where("status = ?", commissiondomain.StatusPaid).Count(&paid).Error)
	assert.Zero(t, paid)
}

func TestConcurrentPayDisbursesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.affiliate(t, "jane", affiliatedomain.PayoutMethodPayPal)
	f.commission(t, jane, "in_1", 1200, commissiondomain.StatusApproved)
	generated, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	ids := f.payoutIDs(generated)
	_, err = f.svc.Approve(ctx, ids)
	require.NoError(t, err)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	f.rail.On("Disburse", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-proceed
		}).
		Return(domain.Receipt{Reference: "PB-1"}, nil)

	type outcome struct {
		result domain.PayResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := f.svc.Pay(ctx, ids)
		first <- outcome{result: result, err: err}
	}()
	<-entered

	listed, err := f.svc.List(ctx, domain.ListRequest{Status: domain.StatusProcessing})
	require.NoError(t, err)
	require.Len(t, listed.Payouts, 1)

	second, err := f.svc.Pay(ctx, ids)
	require.NoError(t, err)
	assert.Zero(t, second.Completed)
	assert.Zero(t, second.ViaRail)

	close(proceed)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, int64(1), got.result.Completed)
	f.rail.AssertNumberOfCalls(t, "Disburse", 1)

	var completed int64
	require.NoError(t, f.db.Model(&domain.Payout{}).Where("status = ?", domain.StatusCompleted).Count(&completed).Error)
	assert.Equal(t, int64(1), completed)
}

func TestPayRetryAfterRailFailureReusesBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.affiliate(t, "jane", affiliatedomain.PayoutMethodPayPal)
	f.commission(t, jane, "in_1", 1200, commissiondomain.StatusApproved)
	generated, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	ids := f.payoutIDs(generated)
	_, err = f.svc.Approve(ctx, ids)
	require.NoError(t, err)

	var senderBatchIDs []string
	record := func(args mock.Arguments) {
		id, err := args.Get(1).(domain.Batch).SenderBatchID()
		require.NoError(t, err)
		senderBatchIDs = append(senderBatchIDs, id)
	}
	f.rail.On("Disburse", mock.Anything, mock.Anything).Run(record).Return(domain.Receipt{}, errors.New("timeout")).Once()
	f.rail.On("Disburse", mock.Anything, mock.Anything).Run(record).Return(domain.Receipt{Reference: "PB-2"}, nil).Once()

	_, err = f.svc.Pay(ctx, ids)
	require.ErrorIs(t, err, domain.ErrDisbursementFailed)

	result, err := f.svc.Pay(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Completed)

	require.Len(t, senderBatchIDs, 2)
	assert.Equal(t, senderBatchIDs[0], senderBatchIDs[1])
}

func TestPayWithoutRailReconcilesManually(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rail.ExpectedCalls = nil
	f.rail.On("Configured").Return(false)

	jane := f.affiliate(t, "jane", affiliatedomain.PayoutMethodPayPal)
	f.commission(t, jane, "in_1", 1200, commissiondomain.StatusApproved)
	generated, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	ids := f.payoutIDs(generated)
	_, err = f.svc.Approve(ctx, ids)
	require.NoError(t, err)

	result, err := f.svc.Pay(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Manual)
	assert.Equal(t, 0, result.ViaRail)
	f.rail.AssertNotCalled(t, "Disburse", mock.Anything, mock.Anything)
}

func TestGetAndStatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.affiliate(t, "jane", "")
	f.commission(t, jane, "in_1", 1200, commissiondomain.StatusApproved)
	generated, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	id := generated.Payouts[0].ID.String()

	detail, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, detail.Commissions, 1)
	assert.Equal(t, "in_1", detail.Commissions[0].StripeInvoiceID)

	doc, err := f.svc.Statement(ctx, id)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))

	_, err = f.svc.Get(ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Get(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListFiltersByAffiliate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jane := f.affiliate(t, "jane", "")
	joe := f.affiliate(t, "joe", "")
	f.commission(t, jane, "in_1", 100, commissiondomain.StatusApproved)
	f.commission(t, joe, "in_2", 100, commissiondomain.StatusApproved)
	_, err := f.svc.Generate(ctx)
	require.NoError(t, err)

	res, err := f.svc.List(ctx, domain.ListRequest{AffiliateID: jane.ID.String()})
	require.NoError(t, err)
	require.Len(t, res.Payouts, 1)
	assert.Equal(t, jane.ID, res.Payouts[0].AffiliateID)

	_, err = f.svc.List(ctx, domain.ListRequest{Status: "paid"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

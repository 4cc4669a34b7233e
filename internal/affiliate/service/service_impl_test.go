package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/affiliate/domain"
	"github.com/smallbiznis/hightide/internal/affiliate/repository"
	campaigndomain "github.com/smallbiznis/hightide/internal/campaign/domain"
	campaignrepository "github.com/smallbiznis/hightide/internal/campaign/repository"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/internal/config"
	notificationdomain "github.com/smallbiznis/hightide/internal/notification/domain"
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

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	node   *snowflake.Node
	outbox *mockOutbox
	holder *config.ProgramHolder
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t,
		&domain.Affiliate{},
		&domain.PayoutMethod{},
		&campaigndomain.Campaign{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	outbox := &mockOutbox{}
	holder := config.NewStaticProgramHolder(config.DefaultProgramConfig())
	svc := New(Params{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)),
		Repo:         repository.Provide(),
		CampaignRepo: campaignrepository.Provide(),
		Program:      holder,
		Outbox:       outbox,
	})
	return fixture{svc: svc, db: db, node: node, outbox: outbox, holder: holder}
}

func ptr[T any](v T) *T { return &v }

func TestCreateAppliesProgramDefaults(t *testing.T) {
	f := newFixture(t)

	aff, err := f.svc.Create(context.Background(), domain.CreateRequest{
		Name:  "Jane Doe",
		Email: " Jane@Example.com ",
	})
	require.NoError(t, err)
	assert.Equal(t, "jane-doe", aff.Slug)
	assert.Equal(t, "jane@example.com", aff.Email)
	assert.Equal(t, 30.0, aff.CommissionRate)
	assert.Equal(t, 12, aff.CommissionDurationMonths)
	assert.Equal(t, 10.0, aff.SubAffiliateRate)
	assert.Equal(t, 1, aff.Tier)
	assert.Equal(t, domain.StatusActive, aff.Status)
	assert.Equal(t, domain.RoleAffiliate, aff.Role)

	got, err := f.svc.Get(context.Background(), aff.ID.String())
	require.NoError(t, err)
	assert.Equal(t, aff.Slug, got.Slug)
}

func TestCreateEnforcesTierDepth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Root", Email: "root@example.com"})
	require.NoError(t, err)
	mid, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Mid", Email: "mid@example.com", ParentID: root.ID.String()})
	require.NoError(t, err)
	leaf, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Leaf", Email: "leaf@example.com", ParentID: mid.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, 2, mid.Tier)
	assert.Equal(t, 3, leaf.Tier)
	require.NotNil(t, leaf.ParentID)
	assert.Equal(t, mid.ID, *leaf.ParentID)

	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "Too Deep", Email: "deep@example.com", ParentID: leaf.ID.String()})
	assert.ErrorIs(t, err, domain.ErrTierDepthExceeded)

	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "Orphan", Email: "orphan@example.com", ParentID: f.node.Generate().String()})
	assert.ErrorIs(t, err, domain.ErrParentNotFound)
}

func TestCreateRejectsSlugCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Create(&campaigndomain.Campaign{
		ID:        f.node.Generate(),
		Slug:      "spring-launch",
		Name:      "Spring launch",
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}).Error)

	_, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Spring Launch", Email: "a@example.com"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "Jane", Email: "jane@example.com", Slug: "jane"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "Other Jane", Email: "other@example.com", Slug: "Jane"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)
	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "Jane Again", Email: "jane@example.com"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)
}

func TestCreateValidatesTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, domain.CreateRequest{Name: "A", Email: "a@example.com", CommissionRate: ptr(101.0)})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "A", Email: "a@example.com", CommissionDurationMonths: ptr(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidDuration)
	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "A", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)
	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: " ", Email: "a@example.com"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestInviteAndAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	parent, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Parent", Email: "parent@example.com"})
	require.NoError(t, err)

	var captured notificationdomain.Intent
	f.outbox.On("Enqueue", mock.Anything, mock.Anything, mock.MatchedBy(func(i notificationdomain.Intent) bool {
		captured = i
		return i.Kind == notificationdomain.KindAffiliateInvited
	})).Return(nil).Once()

	child, err := f.svc.Invite(ctx, parent.ID, domain.InviteRequest{Name: "Child", Email: "child@example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvited, child.Status)
	assert.Equal(t, 2, child.Tier)
	require.NotNil(t, child.InviteCode)
	assert.Equal(t, "child@example.com", captured.Recipient)
	assert.Equal(t, *child.InviteCode, captured.Payload["invite_code"])
	f.outbox.AssertExpectations(t)

	accepted, err := f.svc.AcceptInvite(ctx, *child.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, accepted.Status)

	_, err = f.svc.AcceptInvite(ctx, *child.InviteCode)
	assert.ErrorIs(t, err, domain.ErrInviteNotFound)
}

func TestInviteRespectsRecruitmentSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Parent", Email: "parent@example.com"})
	require.NoError(t, err)

	program := config.DefaultProgramConfig()
	program.AllowAffiliateRecruitment = false
	f.holder.Set(program)

	_, err = f.svc.Invite(ctx, parent.ID, domain.InviteRequest{Name: "Child", Email: "child@example.com"})
	assert.ErrorIs(t, err, domain.ErrRecruitmentDisabled)
}

func TestInviteRequiresActiveParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Parent", Email: "parent@example.com"})
	require.NoError(t, err)
	_, err = f.svc.UpdateTerms(ctx, parent.ID.String(), domain.UpdateRequest{Status: ptr(domain.StatusInactive)})
	require.NoError(t, err)

	_, err = f.svc.Invite(ctx, parent.ID, domain.InviteRequest{Name: "Child", Email: "child@example.com"})
	assert.ErrorIs(t, err, domain.ErrParentInactive)
}

func TestUpdateTerms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aff, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)

	updated, err := f.svc.UpdateTerms(ctx, aff.ID.String(), domain.UpdateRequest{
		CommissionRate:           ptr(50.0),
		CommissionDurationMonths: ptr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, updated.CommissionRate)
	assert.Equal(t, 3, updated.CommissionDurationMonths)

	_, err = f.svc.UpdateTerms(ctx, aff.ID.String(), domain.UpdateRequest{Status: ptr(domain.StatusInvited)})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = f.svc.UpdateTerms(ctx, aff.ID.String(), domain.UpdateRequest{SubAffiliateRate: ptr(-1.0)})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
	_, err = f.svc.UpdateTerms(ctx, "nope", domain.UpdateRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestSetPayoutMethodKeepsSinglePrimary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aff, err := f.svc.Create(ctx, domain.CreateRequest{Name: "Jane", Email: "jane@example.com"})
	require.NoError(t, err)

	first, err := f.svc.SetPayoutMethod(ctx, aff.ID.String(), domain.SetPayoutMethodRequest{
		Kind:    domain.PayoutMethodManual,
		Account: "wire to ACME bank",
	})
	require.NoError(t, err)
	assert.True(t, first.IsPrimary)

	second, err := f.svc.SetPayoutMethod(ctx, aff.ID.String(), domain.SetPayoutMethodRequest{
		Kind:      domain.PayoutMethodPayPal,
		Account:   "Jane@PayPal.example",
		IsPrimary: true,
	})
	require.NoError(t, err)
	assert.True(t, second.IsPrimary)
	assert.Equal(t, "jane@paypal.example", second.Account)

	primaries, err := repository.Provide().FindPrimaryPayoutMethods(ctx, f.db, []snowflake.ID{aff.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutMethodPayPal, primaries[aff.ID].Kind)

	_, err = f.svc.SetPayoutMethod(ctx, aff.ID.String(), domain.SetPayoutMethodRequest{Kind: domain.PayoutMethodPayPal, Account: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidPayoutMethod)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		_, err := f.svc.Create(ctx, domain.CreateRequest{Name: name, Email: name + "@example.com"})
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Affiliates, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "charlie", first.Affiliates[0].Slug)

	second, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Affiliates, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "alpha", second.Affiliates[0].Slug)
}

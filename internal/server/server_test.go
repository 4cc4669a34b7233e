package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	"github.com/smallbiznis/hightide/internal/authorization"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	"github.com/smallbiznis/hightide/internal/config"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	"github.com/smallbiznis/hightide/internal/ratelimit"
	trackingdomain "github.com/smallbiznis/hightide/internal/tracking/domain"
	trackingservice "github.com/smallbiznis/hightide/internal/tracking/service"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// Each mock embeds its interface so only the methods a test exercises need
// an implementation.

type mockAPIKeys struct {
	apikeydomain.Service
	mock.Mock
}

func (m *mockAPIKeys) Authenticate(ctx context.Context, raw string) (apikeydomain.Principal, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(apikeydomain.Principal), args.Error(1)
}

func (m *mockAPIKeys) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*apikeydomain.SecretResponse)
	return resp, args.Error(1)
}

type mockAuthz struct {
	mock.Mock
}

func (m *mockAuthz) Authorize(ctx context.Context, actor authorization.Actor, object string, action string) error {
	return m.Called(ctx, actor, object, action).Error(0)
}

type mockTracking struct {
	mock.Mock
}

func (m *mockTracking) RecordClick(ctx context.Context, req trackingdomain.ClickRequest) (trackingdomain.ClickResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(trackingdomain.ClickResult), args.Error(1)
}

func (m *mockTracking) RecordLead(ctx context.Context, req trackingdomain.LeadRequest) (trackingdomain.LeadResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(trackingdomain.LeadResult), args.Error(1)
}

type mockWebhooks struct {
	mock.Mock
}

func (m *mockWebhooks) IngestWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	return m.Called(ctx, payload, headers).Error(0)
}

type mockAffiliates struct {
	affiliatedomain.Service
	mock.Mock
}

func (m *mockAffiliates) AcceptInvite(ctx context.Context, code string) (affiliatedomain.Affiliate, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(affiliatedomain.Affiliate), args.Error(1)
}

func (m *mockAffiliates) Invite(ctx context.Context, parentID snowflake.ID, req affiliatedomain.InviteRequest) (affiliatedomain.Affiliate, error) {
	args := m.Called(ctx, parentID, req)
	return args.Get(0).(affiliatedomain.Affiliate), args.Error(1)
}

type mockCommissions struct {
	commissiondomain.Service
	mock.Mock
}

func (m *mockCommissions) List(ctx context.Context, req commissiondomain.ListRequest) (commissiondomain.ListResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(commissiondomain.ListResponse), args.Error(1)
}

func (m *mockCommissions) Approve(ctx context.Context, ids []string) (commissiondomain.BulkResult, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(commissiondomain.BulkResult), args.Error(1)
}

type mockPayouts struct {
	payoutdomain.Service
	mock.Mock
}

func (m *mockPayouts) Get(ctx context.Context, id string) (payoutdomain.Detail, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payoutdomain.Detail), args.Error(1)
}

func (m *mockPayouts) Statement(ctx context.Context, id string) ([]byte, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).([]byte)
	return doc, args.Error(1)
}

func (m *mockPayouts) Pay(ctx context.Context, ids []string) (payoutdomain.PayResult, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(payoutdomain.PayResult), args.Error(1)
}

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
}

func (l stubLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return l.decision, l.err
}

type testServer struct {
	*Server
	apiKeys     *mockAPIKeys
	authz       *mockAuthz
	tracking    *mockTracking
	webhooks    *mockWebhooks
	affiliates  *mockAffiliates
	commissions *mockCommissions
	payouts     *mockPayouts
}

func newTestServer(t *testing.T, limiter ratelimit.RateLimiter) *testServer {
	t.Helper()

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		apiKeys:     &mockAPIKeys{},
		authz:       &mockAuthz{},
		tracking:    &mockTracking{},
		webhooks:    &mockWebhooks{},
		affiliates:  &mockAffiliates{},
		commissions: &mockCommissions{},
		payouts:     &mockPayouts{},
	}
	ts.Server = &Server{
		engine: engine,
		cfg: config.Config{
			Tracking: config.TrackingConfig{CookieMaxAge: 90 * 24 * time.Hour},
		},
		apiKeySvc:     ts.apiKeys,
		authzSvc:      ts.authz,
		affiliateSvc:  ts.affiliates,
		trackingSvc:   ts.tracking,
		webhookSvc:    ts.webhooks,
		commissionSvc: ts.commissions,
		payoutSvc:     ts.payouts,
		limiter:       limiter,
		ipHasher:      trackingservice.NewIPHasher("test-salt"),
	}
	ts.registerPublicRoutes()
	ts.registerAdminRoutes()
	ts.registerPortalRoutes()
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	"github.com/smallbiznis/hightide/internal/apikey/repository"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	auditrepository "github.com/smallbiznis/hightide/internal/audit/repository"
	auditservice "github.com/smallbiznis/hightide/internal/audit/service"
	"github.com/smallbiznis/hightide/internal/clock"
	"github.com/smallbiznis/hightide/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   apikeydomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t, &apikeydomain.APIKey{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
		Audit: audit,
	})
	return fixture{svc: svc, db: db, clock: clk}
}

func affiliateID(v int64) *snowflake.ID {
	id := snowflake.ID(v)
	return &id
}

func TestCreateAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	secret, err := f.svc.Create(ctx, apikeydomain.CreateRequest{
		Name:        "portal",
		Role:        apikeydomain.RoleAffiliate,
		AffiliateID: affiliateID(77),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret.APIKey, "ht_live_"))

	principal, err := f.svc.Authenticate(ctx, secret.APIKey)
	require.NoError(t, err)
	assert.Equal(t, secret.KeyID, principal.KeyID)
	assert.Equal(t, apikeydomain.RoleAffiliate, principal.Role)
	require.NotNil(t, principal.AffiliateID)
	assert.Equal(t, int64(77), principal.AffiliateID.Int64())
	assert.Equal(t, []string{apikeydomain.ScopePortal}, principal.Scopes)
	assert.Equal(t, "api_key:"+secret.KeyID, principal.Subject())

	keys, err := f.svc.List(ctx, affiliateID(77))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotNil(t, keys[0].LastUsedAt)

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "api_key.created").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestCreateValidatesRoleBinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "x", Role: apikeydomain.RoleAffiliate})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidAffiliate)

	_, err = f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "x", Role: apikeydomain.RoleAdmin, AffiliateID: affiliateID(1)})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidAffiliate)

	_, err = f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "x", Role: "owner"})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidRole)

	_, err = f.svc.Create(ctx, apikeydomain.CreateRequest{Name: " ", Role: apikeydomain.RoleAdmin})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidName)
}

func TestAuthenticateRejectsUnknownRevokedAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
	_, err = f.svc.Authenticate(ctx, "ht_live_nope")
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)

	revoked, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Role: apikeydomain.RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, f.svc.Revoke(ctx, revoked.KeyID))
	_, err = f.svc.Authenticate(ctx, revoked.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)

	expiry := f.clock.Now().Add(time.Hour)
	expiring, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "temp", Role: apikeydomain.RoleAdmin, ExpiresAt: &expiry})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, expiring.APIKey)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.svc.Authenticate(ctx, expiring.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
}

func TestRotateKeepsOldKeyForGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.svc.Create(ctx, apikeydomain.CreateRequest{Name: "ops", Role: apikeydomain.RoleAdmin})
	require.NoError(t, err)

	next, err := f.svc.Rotate(ctx, old.KeyID)
	require.NoError(t, err)
	assert.NotEqual(t, old.KeyID, next.KeyID)

	_, err = f.svc.Authenticate(ctx, old.APIKey)
	require.NoError(t, err)
	principal, err := f.svc.Authenticate(ctx, next.APIKey)
	require.NoError(t, err)
	assert.Equal(t, apikeydomain.RoleAdmin, principal.Role)

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.Authenticate(ctx, old.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthorized)
	_, err = f.svc.Authenticate(ctx, next.APIKey)
	assert.NoError(t, err)

	_, err = f.svc.Rotate(ctx, "key_missing")
	assert.ErrorIs(t, err, apikeydomain.ErrNotFound)
}

func TestEnsureSecretIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := apikeydomain.CreateRequest{Name: "bootstrap", Role: apikeydomain.RoleAdmin}

	created, err := f.svc.EnsureSecret(ctx, req, "bootstrap-admin-secret")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.svc.EnsureSecret(ctx, req, "bootstrap-admin-secret")
	require.NoError(t, err)
	assert.False(t, created)

	principal, err := f.svc.Authenticate(ctx, "bootstrap-admin-secret")
	require.NoError(t, err)
	assert.Equal(t, []string{apikeydomain.ScopeAdmin}, principal.Scopes)

	_, err = f.svc.EnsureSecret(ctx, req, "short")
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidSecret)
}

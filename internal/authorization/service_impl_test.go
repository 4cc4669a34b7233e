package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
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

func setupAuthz(t *testing.T) (*ServiceImpl, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &auditdomain.AuditLog{})
	require.NoError(t, db.Exec(
		`CREATE TABLE IF NOT EXISTS casbin_rule (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ptype VARCHAR(100) NOT NULL,
			v0 VARCHAR(100),
			v1 VARCHAR(100),
			v2 VARCHAR(100),
			v3 VARCHAR(100),
			v4 VARCHAR(100),
			v5 VARCHAR(100)
		)`,
	).Error)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audit}).(*ServiceImpl)
	return svc, db
}

func countAudits(t *testing.T, db *gorm.DB, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func TestAuthorizeAllowsAdminBackOffice(t *testing.T) {
	svc, _ := setupAuthz(t)
	admin := Actor{Type: "api_key", ID: "key_ADMIN", Role: RoleAdmin}

	assert.NoError(t, svc.Authorize(context.Background(), admin, ObjectPayout, ActionPayoutApprove))
	assert.NoError(t, svc.Authorize(context.Background(), admin, ObjectCommission, ActionCommissionApprove))
	assert.NoError(t, svc.Authorize(context.Background(), admin, ObjectAffiliate, ActionAffiliateCreate))
}

func TestAuthorizeDeniesAffiliateOnAdminSurface(t *testing.T) {
	svc, db := setupAuthz(t)
	affiliate := Actor{Type: "api_key", ID: "key_AFF", Role: RoleAffiliate}

	assert.NoError(t, svc.Authorize(context.Background(), affiliate, ObjectPortal, ActionPortalView))
	err := svc.Authorize(context.Background(), affiliate, ObjectPayout, ActionPayoutPay)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, int64(1), countAudits(t, db, "authorization.denied"))
}

func TestAuthorizeAdminHasNoPortal(t *testing.T) {
	svc, _ := setupAuthz(t)
	admin := Actor{Type: "api_key", ID: "key_ADMIN", Role: RoleAdmin}

	err := svc.Authorize(context.Background(), admin, ObjectPortal, ActionPortalView)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeFollowsRoleChange(t *testing.T) {
	svc, _ := setupAuthz(t)
	ctx := context.Background()

	require.NoError(t, svc.Authorize(ctx, Actor{Type: "api_key", ID: "key_X", Role: RoleAdmin}, ObjectPayout, ActionPayoutView))

	err := svc.Authorize(ctx, Actor{Type: "api_key", ID: "key_X", Role: RoleAffiliate}, ObjectPayout, ActionPayoutView)
	assert.ErrorIs(t, err, ErrForbidden)

	roles, err := svc.enforcer.GetRolesForUser("api_key:key_X")
	require.NoError(t, err)
	assert.Equal(t, []string{"role:affiliate"}, roles)
}

func TestAuthorizeSystemGeneratesPayouts(t *testing.T) {
	svc, _ := setupAuthz(t)
	system := Actor{Type: "system"}

	assert.NoError(t, svc.Authorize(context.Background(), system, ObjectPayout, ActionPayoutGenerate))
	assert.ErrorIs(t, svc.Authorize(context.Background(), system, ObjectPayout, ActionPayoutPay), ErrForbidden)
}

func TestAuthorizeRejectsUnknownActors(t *testing.T) {
	svc, _ := setupAuthz(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: "api_key", Role: RoleAdmin}, ObjectPayout, ActionPayoutView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: "api_key", ID: "k", Role: "owner"}, ObjectPayout, ActionPayoutView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: "user", ID: "1", Role: RoleAdmin}, ObjectPayout, ActionPayoutView), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: "system"}, " ", ActionPayoutView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, Actor{Type: "system"}, ObjectPayout, ""), ErrInvalidAction)
}

func TestSensitiveGrantsAreAudited(t *testing.T) {
	svc, db := setupAuthz(t)
	admin := Actor{Type: "api_key", ID: "key_ADMIN", Role: RoleAdmin}

	require.NoError(t, svc.Authorize(context.Background(), admin, ObjectPayout, ActionPayoutPay))
	require.NoError(t, svc.Authorize(context.Background(), admin, ObjectPayout, ActionPayoutView))
	assert.Equal(t, int64(1), countAudits(t, db, "authorization.granted"))
}

func TestNewEnforcerIsIdempotent(t *testing.T) {
	_, db := setupAuthz(t)

	_, err := NewEnforcer(db)
	require.NoError(t, err)

	var policies int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ?", "p").Count(&policies).Error)
	assert.Equal(t, int64(26), policies)
}

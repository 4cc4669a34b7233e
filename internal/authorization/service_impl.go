package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor Actor, object string, action string) error {
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := resolveActor(actor)
	if err != nil {
		s.auditDenied(ctx, actor, object, action)
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actor, object, action)
	}
	return nil
}

func resolveActor(actor Actor) (string, string, error) {
	actorType := strings.TrimSpace(actor.Type)
	role := strings.ToLower(strings.TrimSpace(actor.Role))

	switch actorType {
	case "system":
		return "system", "role:" + RoleSystem, nil
	case "api_key":
		id := strings.TrimSpace(actor.ID)
		if id == "" {
			return "", "", ErrInvalidActor
		}
		switch role {
		case RoleAdmin, RoleAffiliate:
			return "api_key:" + id, "role:" + role, nil
		}
	}
	return "", "", ErrInvalidActor
}

// ensureGrouping keeps exactly one role link per subject, replacing it when
// the key's role changes.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := s.enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor Actor, object string, action string) {
	s.audit(ctx, "authorization.denied", actor, object, action)
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actor Actor, object string, action string) {
	s.audit(ctx, "authorization.granted", actor, object, action)
}

func (s *ServiceImpl) audit(ctx context.Context, event string, actor Actor, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorType := strings.TrimSpace(actor.Type)
	var actorID *string
	if id := strings.TrimSpace(actor.ID); id != "" {
		actorID = &id
	}
	targetID := "capability"
	if err := s.auditSvc.AuditLog(ctx, actorType, actorID, event, "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   actor.Role,
	}); err != nil {
		s.log.Warn("failed to audit authorization decision", zap.String("action", action), zap.Error(err))
	}
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionPayoutPay, ActionPayoutRevert, ActionCommissionVoid,
		ActionAPIKeyCreate, ActionAPIKeyRotate, ActionAPIKeyRevoke:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Admin back office
		{"role:admin", ObjectAffiliate, ActionAffiliateView},
		{"role:admin", ObjectAffiliate, ActionAffiliateCreate},
		{"role:admin", ObjectAffiliate, ActionAffiliateUpdate},
		{"role:admin", ObjectAffiliate, ActionAffiliatePayoutMethod},
		{"role:admin", ObjectCampaign, ActionCampaignView},
		{"role:admin", ObjectCampaign, ActionCampaignCreate},
		{"role:admin", ObjectCommission, ActionCommissionView},
		{"role:admin", ObjectCommission, ActionCommissionApprove},
		{"role:admin", ObjectCommission, ActionCommissionVoid},
		{"role:admin", ObjectPayout, ActionPayoutView},
		{"role:admin", ObjectPayout, ActionPayoutGenerate},
		{"role:admin", ObjectPayout, ActionPayoutApprove},
		{"role:admin", ObjectPayout, ActionPayoutDeny},
		{"role:admin", ObjectPayout, ActionPayoutPay},
		{"role:admin", ObjectPayout, ActionPayoutRevert},
		{"role:admin", ObjectPayout, ActionPayoutStatement},
		{"role:admin", ObjectAPIKey, ActionAPIKeyView},
		{"role:admin", ObjectAPIKey, ActionAPIKeyCreate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRotate},
		{"role:admin", ObjectAPIKey, ActionAPIKeyRevoke},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Affiliate portal
		{"role:affiliate", ObjectPortal, ActionPortalView},
		{"role:affiliate", ObjectPortal, ActionPortalInvite},
		{"role:affiliate", ObjectPortal, ActionPortalPayoutMethod},
		{"role:affiliate", ObjectPortal, ActionPortalStatement},

		// Background jobs
		{"role:system", ObjectPayout, ActionPayoutGenerate},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

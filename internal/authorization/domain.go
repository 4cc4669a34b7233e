package authorization

import (
	"context"
	"errors"
)

const (
	ObjectAffiliate  = "affiliate"
	ObjectCampaign   = "campaign"
	ObjectCommission = "commission"
	ObjectPayout     = "payout"
	ObjectAPIKey     = "api_key"
	ObjectAuditLog   = "audit_log"
	ObjectPortal     = "portal"
)

const (
	ActionAffiliateView         = "affiliate.view"
	ActionAffiliateCreate       = "affiliate.create"
	ActionAffiliateUpdate       = "affiliate.update"
	ActionAffiliatePayoutMethod = "affiliate.payout_method"

	ActionCampaignView   = "campaign.view"
	ActionCampaignCreate = "campaign.create"

	ActionCommissionView    = "commission.view"
	ActionCommissionApprove = "commission.approve"
	ActionCommissionVoid    = "commission.void"

	ActionPayoutView      = "payout.view"
	ActionPayoutGenerate  = "payout.generate"
	ActionPayoutApprove   = "payout.approve"
	ActionPayoutDeny      = "payout.deny"
	ActionPayoutPay       = "payout.pay"
	ActionPayoutRevert    = "payout.revert"
	ActionPayoutStatement = "payout.statement"

	ActionAPIKeyView   = "api_key.view"
	ActionAPIKeyCreate = "api_key.create"
	ActionAPIKeyRotate = "api_key.rotate"
	ActionAPIKeyRevoke = "api_key.revoke"

	ActionAuditLogView = "audit_log.view"

	ActionPortalView         = "portal.view"
	ActionPortalInvite       = "portal.invite"
	ActionPortalPayoutMethod = "portal.payout_method"
	ActionPortalStatement    = "portal.statement"
)

const (
	RoleAdmin     = "admin"
	RoleAffiliate = "affiliate"
	RoleSystem    = "system"
)

// Actor is the caller being authorized. Type is "api_key" or "system".
type Actor struct {
	Type string
	ID   string
	Role string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

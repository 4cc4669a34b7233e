package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
)

type CreateRequest struct {
	Name                     string
	Email                    string
	Slug                     string
	ParentID                 string
	Role                     Role
	CommissionRate           *float64
	CommissionDurationMonths *int
	SubAffiliateRate         *float64
}

type InviteRequest struct {
	Name  string
	Email string
	Slug  string
}

type UpdateRequest struct {
	Name                     *string
	CommissionRate           *float64
	CommissionDurationMonths *int
	SubAffiliateRate         *float64
	Status                   *Status
}

type ListRequest struct {
	Status    string
	ParentID  string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Affiliates []Affiliate `json:"affiliates"`
}

type SetPayoutMethodRequest struct {
	Kind      PayoutMethodKind
	Account   string
	IsPrimary bool
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Affiliate, error)
	Invite(ctx context.Context, parentID snowflake.ID, req InviteRequest) (Affiliate, error)
	AcceptInvite(ctx context.Context, code string) (Affiliate, error)
	UpdateTerms(ctx context.Context, id string, req UpdateRequest) (Affiliate, error)
	Get(ctx context.Context, id string) (Affiliate, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	SetPayoutMethod(ctx context.Context, affiliateID string, req SetPayoutMethodRequest) (PayoutMethod, error)
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidSlug         = errors.New("invalid_slug")
	ErrInvalidRate         = errors.New("invalid_rate")
	ErrInvalidDuration     = errors.New("invalid_duration")
	ErrInvalidStatus       = errors.New("invalid_status")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidPayoutMethod = errors.New("invalid_payout_method")
	ErrSlugTaken           = errors.New("slug_taken")
	ErrEmailTaken          = errors.New("email_taken")
	ErrTierDepthExceeded   = errors.New("tier_depth_exceeded")
	ErrParentNotFound      = errors.New("parent_not_found")
	ErrParentInactive      = errors.New("parent_inactive")
	ErrRecruitmentDisabled = errors.New("recruitment_disabled")
	ErrInviteNotFound      = errors.New("invite_not_found")
	ErrNotFound            = errors.New("affiliate_not_found")
)

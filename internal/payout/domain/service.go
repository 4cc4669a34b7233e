package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/hightide/pkg/db/pagination"
)

type GenerateResult struct {
	Payouts         []Payout `json:"payouts"`
	CommissionCount int      `json:"commission_count"`
	// Deferred counts affiliates whose approved balance is below the program minimum.
	Deferred int `json:"deferred"`
}

type BulkResult struct {
	Updated int64 `json:"updated"`
}

type PayResult struct {
	Completed int64  `json:"completed"`
	ViaRail   int    `json:"via_rail"`
	Manual    int    `json:"manual"`
	Reference string `json:"reference,omitempty"`
}

type ListRequest struct {
	Status      Status `form:"status"`
	AffiliateID string `form:"affiliate_id"`
	PageToken   string `form:"page_token"`
	PageSize    int    `form:"page_size"`
}

type ListResponse struct {
	pagination.PageInfo
	Payouts []*Payout `json:"payouts"`
}

type Service interface {
	Generate(ctx context.Context) (GenerateResult, error)
	Approve(ctx context.Context, ids []string) (BulkResult, error)
	Deny(ctx context.Context, ids []string) (BulkResult, error)
	Pay(ctx context.Context, ids []string) (PayResult, error)
	Revert(ctx context.Context, ids []string) (BulkResult, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (Detail, error)
	Statement(ctx context.Context, id string) ([]byte, error)
}

var (
	ErrInvalidID          = errors.New("invalid_payout_id")
	ErrInvalidStatus      = errors.New("invalid_payout_status")
	ErrEmptySelection     = errors.New("empty_selection")
	ErrNotFound           = errors.New("payout_not_found")
	ErrAssignmentConflict = errors.New("payout_assignment_conflict")
	ErrDisbursementFailed = errors.New("disbursement_failed")
)

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/pkg/db/pagination"
	"gorm.io/gorm"
)

type CalculateInput struct {
	CustomerID    snowflake.ID
	AffiliateID   snowflake.ID
	InvoiceID     string
	PaymentCents  int64
	PaymentNumber int
	PlanType      PlanType
	// CustomerEmail is only used in the commission_earned notification.
	CustomerEmail string
}

// Calculator turns a counted payment into commission lines for the paying
// affiliate and up to two recruiting ancestors. Callers pass the transaction
// that counted the payment.
type Calculator interface {
	CalculateAndInsert(ctx context.Context, tx *gorm.DB, in CalculateInput) ([]Commission, error)
}

type ListRequest struct {
	Status      Status `form:"status"`
	AffiliateID string `form:"affiliate_id"`
	PayoutID    string `form:"payout_id"`
	PageToken   string `form:"page_token"`
	PageSize    int    `form:"page_size"`
}

type ListResponse struct {
	pagination.PageInfo
	Commissions []*Commission `json:"commissions"`
}

type BulkResult struct {
	Updated int64 `json:"updated"`
}

type Service interface {
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Approve(ctx context.Context, ids []string) (BulkResult, error)
	Void(ctx context.Context, ids []string) (BulkResult, error)
	VoidPendingForInvoice(ctx context.Context, invoiceID string) (int64, error)
}

var (
	ErrInvalidInput     = errors.New("invalid_commission_input")
	ErrDuplicateInvoice = errors.New("duplicate_invoice")
	ErrInvalidID        = errors.New("invalid_commission_id")
	ErrInvalidStatus    = errors.New("invalid_commission_status")
	ErrEmptySelection   = errors.New("empty_selection")
)

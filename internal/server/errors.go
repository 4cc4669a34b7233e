package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	"github.com/smallbiznis/hightide/internal/authorization"
	campaigndomain "github.com/smallbiznis/hightide/internal/campaign/domain"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	paymentdomain "github.com/smallbiznis/hightide/internal/payment/domain"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
	trackingdomain "github.com/smallbiznis/hightide/internal/tracking/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrBadGateway         = errors.New("bad_gateway")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, affiliatedomain.ErrRecruitmentDisabled):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrBadGateway),
		errors.Is(err, payoutdomain.ErrDisbursementFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "bad_gateway",
			Message: "upstream failure",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, paymentdomain.ErrNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger; it never exposes messages.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return payload.Type, "internal"
	}
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isAffiliateValidationError(err),
		isCampaignValidationError(err),
		isTrackingValidationError(err),
		isCommissionValidationError(err),
		isPayoutValidationError(err),
		isAPIKeyValidationError(err),
		isAuditValidationError(err),
		isWebhookValidationError(err):
		return true
	default:
		return false
	}
}

func isAffiliateValidationError(err error) bool {
	switch {
	case errors.Is(err, affiliatedomain.ErrInvalidID),
		errors.Is(err, affiliatedomain.ErrInvalidName),
		errors.Is(err, affiliatedomain.ErrInvalidEmail),
		errors.Is(err, affiliatedomain.ErrInvalidSlug),
		errors.Is(err, affiliatedomain.ErrInvalidRate),
		errors.Is(err, affiliatedomain.ErrInvalidDuration),
		errors.Is(err, affiliatedomain.ErrInvalidStatus),
		errors.Is(err, affiliatedomain.ErrInvalidRole),
		errors.Is(err, affiliatedomain.ErrInvalidPayoutMethod),
		errors.Is(err, affiliatedomain.ErrTierDepthExceeded),
		errors.Is(err, affiliatedomain.ErrParentInactive):
		return true
	default:
		return false
	}
}

func isCampaignValidationError(err error) bool {
	switch {
	case errors.Is(err, campaigndomain.ErrInvalidName),
		errors.Is(err, campaigndomain.ErrInvalidSlug),
		errors.Is(err, campaigndomain.ErrInvalidEventKind):
		return true
	default:
		return false
	}
}

func isTrackingValidationError(err error) bool {
	return errors.Is(err, trackingdomain.ErrMissingAttribution) ||
		errors.Is(err, trackingdomain.ErrInvalidEmail)
}

func isCommissionValidationError(err error) bool {
	switch {
	case errors.Is(err, commissiondomain.ErrInvalidID),
		errors.Is(err, commissiondomain.ErrInvalidStatus),
		errors.Is(err, commissiondomain.ErrEmptySelection),
		errors.Is(err, commissiondomain.ErrInvalidInput):
		return true
	default:
		return false
	}
}

func isPayoutValidationError(err error) bool {
	switch {
	case errors.Is(err, payoutdomain.ErrInvalidID),
		errors.Is(err, payoutdomain.ErrInvalidStatus),
		errors.Is(err, payoutdomain.ErrEmptySelection):
		return true
	default:
		return false
	}
}

func isAPIKeyValidationError(err error) bool {
	switch {
	case errors.Is(err, apikeydomain.ErrInvalidName),
		errors.Is(err, apikeydomain.ErrInvalidRole),
		errors.Is(err, apikeydomain.ErrInvalidAffiliate),
		errors.Is(err, apikeydomain.ErrInvalidKeyID),
		errors.Is(err, apikeydomain.ErrInvalidSecret):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isWebhookValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidSignature),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, affiliatedomain.ErrSlugTaken),
		errors.Is(err, affiliatedomain.ErrEmailTaken),
		errors.Is(err, campaigndomain.ErrSlugTaken),
		errors.Is(err, commissiondomain.ErrDuplicateInvoice),
		errors.Is(err, payoutdomain.ErrAssignmentConflict):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, affiliatedomain.ErrSlugTaken),
		errors.Is(err, campaigndomain.ErrSlugTaken):
		return "slug already taken"
	case errors.Is(err, affiliatedomain.ErrEmailTaken):
		return "email already registered"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, affiliatedomain.ErrNotFound),
		errors.Is(err, affiliatedomain.ErrParentNotFound),
		errors.Is(err, affiliatedomain.ErrInviteNotFound),
		errors.Is(err, campaigndomain.ErrNotFound),
		errors.Is(err, trackingdomain.ErrAffiliateNotFound),
		errors.Is(err, payoutdomain.ErrNotFound),
		errors.Is(err, apikeydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	var target error = err
	for {
		next := errors.Unwrap(target)
		if next == nil {
			break
		}
		target = next
	}
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return target.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "missing_attribution":
		return "am_id"
	case "empty_selection":
		return "ids"
	case "tier_depth_exceeded", "parent_inactive":
		return "parent_id"
	case "invalid_signature":
		return "Stripe-Signature"
	}
	field := strings.TrimPrefix(code, "invalid_")
	field = strings.TrimPrefix(field, "commission_")
	field = strings.TrimPrefix(field, "payout_")
	return field
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_attribution":
		return "no affiliate attribution on request"
	case "tier_depth_exceeded":
		return "recruitment tree is limited to three tiers"
	case "empty_selection":
		return "no ids selected"
	default:
		return "invalid value"
	}
}

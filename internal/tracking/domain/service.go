package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type ClickRequest struct {
	AffiliateSlug string
	Referrer      string
	LandingPage   string
	ClientIP      string
}

type ClickResult struct {
	Recorded bool
	Campaign bool
	// Slug is the canonical slug to put in the attribution cookie.
	Slug string
}

type LeadRequest struct {
	Email            string
	AffiliateSlug    string
	CookieSlug       string
	CampaignCookie   string
	StripeCustomerID string
	ClientIP         string
}

type LeadResult struct {
	LeadID      *snowflake.ID `json:"lead_id"`
	AffiliateID snowflake.ID  `json:"-"`
	Existing    bool          `json:"existing"`
	Campaign    bool          `json:"-"`
}

type Service interface {
	// RecordClick never fails for unknown or inactive slugs; it reports
	// Recorded=false instead so visitor flows are not interrupted.
	RecordClick(ctx context.Context, req ClickRequest) (ClickResult, error)
	RecordLead(ctx context.Context, req LeadRequest) (LeadResult, error)
}

var (
	ErrAffiliateNotFound  = errors.New("affiliate_not_found")
	ErrMissingAttribution = errors.New("missing_attribution")
	ErrInvalidEmail       = errors.New("invalid_email")
)

package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hightide/internal/observability/logger"
	trackingdomain "github.com/smallbiznis/hightide/internal/tracking/domain"
	"go.uber.org/zap"
)

const (
	affiliateCookieName = "ht_aff"
	campaignCookieName  = "ht_cmp"
	affiliateQueryParam = "am_id"
	redirectNone        = "none"
)

// transparentGIF is a 1x1 transparent GIF89a.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type trackClickQuery struct {
	AffiliateSlug string `form:"am_id"`
	Referrer      string `form:"ref"`
	Page          string `form:"page"`
	Redirect      string `form:"redirect"`
}

// TrackClick records a visit and answers with a redirect or a pixel. The
// response is the same whether or not the slug resolved.
func (s *Server) TrackClick(c *gin.Context) {
	var query trackClickQuery
	_ = c.ShouldBindQuery(&query)

	slug := strings.TrimSpace(query.AffiliateSlug)
	referrer := strings.TrimSpace(query.Referrer)
	if referrer == "" {
		referrer = c.Request.Referer()
	}

	if slug != "" {
		result, err := s.trackingSvc.RecordClick(c.Request.Context(), trackingdomain.ClickRequest{
			AffiliateSlug: slug,
			Referrer:      referrer,
			LandingPage:   strings.TrimSpace(query.Page),
			ClientIP:      c.ClientIP(),
		})
		switch {
		case err != nil:
			logger.FromContext(c.Request.Context()).Warn("click not recorded", zap.Error(err))
		case result.Recorded && result.Campaign:
			s.setAttributionCookie(c, campaignCookieName, result.Slug)
		case result.Recorded:
			s.setAttributionCookie(c, affiliateCookieName, result.Slug)
		}
	}

	if target, ok := redirectTarget(query.Redirect, slug); ok {
		c.Redirect(http.StatusFound, target)
		return
	}

	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}

// redirectTarget accepts absolute http(s) URLs only and appends am_id when
// the target does not carry one.
func redirectTarget(raw string, slug string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, redirectNone) {
		return "", false
	}
	target, err := url.Parse(raw)
	if err != nil || target.Host == "" {
		return "", false
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return "", false
	}
	if slug != "" {
		values := target.Query()
		if values.Get(affiliateQueryParam) == "" {
			values.Set(affiliateQueryParam, slug)
			target.RawQuery = values.Encode()
		}
	}
	return target.String(), true
}

func (s *Server) setAttributionCookie(c *gin.Context, name, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.cfg.Tracking.CookieDomain,
		MaxAge:   int(s.cfg.Tracking.CookieMaxAge.Seconds()),
		Secure:   s.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type trackLeadRequest struct {
	Email            string `json:"email"`
	StripeCustomerID string `json:"stripe_customer_id"`
	AffiliateSlug    string `json:"am_id"`
}

type trackLeadResponse struct {
	LeadID   *string `json:"lead_id"`
	Existing bool    `json:"existing"`
}

// TrackLead attributes a signup. Only attribution and validation failures
// are surfaced; anything else degrades to an empty result.
func (s *Server) TrackLead(c *gin.Context) {
	var req trackLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cookieSlug, _ := c.Cookie(affiliateCookieName)
	campaignSlug, _ := c.Cookie(campaignCookieName)

	result, err := s.trackingSvc.RecordLead(c.Request.Context(), trackingdomain.LeadRequest{
		Email:            req.Email,
		AffiliateSlug:    strings.TrimSpace(req.AffiliateSlug),
		CookieSlug:       strings.TrimSpace(cookieSlug),
		CampaignCookie:   strings.TrimSpace(campaignSlug),
		StripeCustomerID: strings.TrimSpace(req.StripeCustomerID),
		ClientIP:         c.ClientIP(),
	})
	if err != nil {
		if errors.Is(err, trackingdomain.ErrMissingAttribution) ||
			errors.Is(err, trackingdomain.ErrAffiliateNotFound) ||
			errors.Is(err, trackingdomain.ErrInvalidEmail) {
			AbortWithError(c, err)
			return
		}
		logger.FromContext(c.Request.Context()).Error("lead not recorded", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"data": trackLeadResponse{}})
		return
	}

	resp := trackLeadResponse{Existing: result.Existing}
	if result.LeadID != nil {
		id := result.LeadID.String()
		resp.LeadID = &id
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

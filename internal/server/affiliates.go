package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
)

type createAffiliateRequest struct {
	Name                     string   `json:"name"`
	Email                    string   `json:"email"`
	Slug                     string   `json:"slug"`
	ParentID                 string   `json:"parent_id"`
	Role                     string   `json:"role"`
	CommissionRate           *float64 `json:"commission_rate"`
	CommissionDurationMonths *int     `json:"commission_duration_months"`
	SubAffiliateRate         *float64 `json:"sub_affiliate_rate"`
}

type updateAffiliateRequest struct {
	Name                     *string  `json:"name"`
	CommissionRate           *float64 `json:"commission_rate"`
	CommissionDurationMonths *int     `json:"commission_duration_months"`
	SubAffiliateRate         *float64 `json:"sub_affiliate_rate"`
	Status                   *string  `json:"status"`
}

type payoutMethodRequest struct {
	Kind      string `json:"kind"`
	Account   string `json:"account"`
	IsPrimary *bool  `json:"is_primary"`
}

func (s *Server) CreateAffiliate(c *gin.Context) {
	var req createAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.Create(c.Request.Context(), affiliatedomain.CreateRequest{
		Name:                     strings.TrimSpace(req.Name),
		Email:                    strings.TrimSpace(req.Email),
		Slug:                     strings.TrimSpace(req.Slug),
		ParentID:                 strings.TrimSpace(req.ParentID),
		Role:                     affiliatedomain.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		CommissionRate:           req.CommissionRate,
		CommissionDurationMonths: req.CommissionDurationMonths,
		SubAffiliateRate:         req.SubAffiliateRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListAffiliates(c *gin.Context) {
	var query struct {
		Status    string `form:"status"`
		ParentID  string `form:"parent_id"`
		PageToken string `form:"page_token"`
		PageSize  int    `form:"page_size"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.List(c.Request.Context(), affiliatedomain.ListRequest{
		Status:    strings.TrimSpace(query.Status),
		ParentID:  strings.TrimSpace(query.ParentID),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Affiliates, "page_info": resp.PageInfo})
}

func (s *Server) GetAffiliate(c *gin.Context) {
	resp, err := s.affiliateSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateAffiliate(c *gin.Context) {
	var req updateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := affiliatedomain.UpdateRequest{
		Name:                     req.Name,
		CommissionRate:           req.CommissionRate,
		CommissionDurationMonths: req.CommissionDurationMonths,
		SubAffiliateRate:         req.SubAffiliateRate,
	}
	if req.Status != nil {
		status := affiliatedomain.Status(strings.ToLower(strings.TrimSpace(*req.Status)))
		update.Status = &status
	}

	resp, err := s.affiliateSvc.UpdateTerms(c.Request.Context(), strings.TrimSpace(c.Param("id")), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetAffiliatePayoutMethod(c *gin.Context) {
	s.setPayoutMethod(c, strings.TrimSpace(c.Param("id")))
}

func (s *Server) setPayoutMethod(c *gin.Context, affiliateID string) {
	var req payoutMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	isPrimary := true
	if req.IsPrimary != nil {
		isPrimary = *req.IsPrimary
	}
	resp, err := s.affiliateSvc.SetPayoutMethod(c.Request.Context(), affiliateID, affiliatedomain.SetPayoutMethodRequest{
		Kind:      affiliatedomain.PayoutMethodKind(strings.ToLower(strings.TrimSpace(req.Kind))),
		Account:   strings.TrimSpace(req.Account),
		IsPrimary: isPrimary,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// AcceptInvite activates an invited affiliate and hands back its first
// portal key. The key is shown once.
func (s *Server) AcceptInvite(c *gin.Context) {
	affiliate, err := s.affiliateSvc.AcceptInvite(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	affiliateID := affiliate.ID
	key, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		Name:        affiliate.Slug + " portal",
		Role:        apikeydomain.RoleAffiliate,
		AffiliateID: &affiliateID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"affiliate": affiliate,
		"api_key":   key,
	}})
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	affiliatedomain "github.com/smallbiznis/hightide/internal/affiliate/domain"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
)

// Portal handlers act on the affiliate bound to the calling key; ids from
// the request never widen that scope.

func (s *Server) PortalMe(c *gin.Context) {
	affiliateID, err := portalAffiliateID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.affiliateSvc.Get(c.Request.Context(), affiliateID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PortalCommissions(c *gin.Context) {
	affiliateID, err := portalAffiliateID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query commissiondomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	query.AffiliateID = affiliateID.String()

	resp, err := s.commissionSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Commissions, "page_info": resp.PageInfo})
}

func (s *Server) PortalPayouts(c *gin.Context) {
	affiliateID, err := portalAffiliateID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var query payoutdomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	query.AffiliateID = affiliateID.String()

	resp, err := s.payoutSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payouts, "page_info": resp.PageInfo})
}

func (s *Server) PortalPayoutStatement(c *gin.Context) {
	affiliateID, err := portalAffiliateID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	detail, err := s.payoutSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if detail.AffiliateID != affiliateID {
		AbortWithError(c, ErrNotFound)
		return
	}

	s.writeStatement(c, id)
}

type portalInviteRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Slug  string `json:"slug"`
}

func (s *Server) PortalInvite(c *gin.Context) {
	affiliateID, err := portalAffiliateID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req portalInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.affiliateSvc.Invite(c.Request.Context(), affiliateID, affiliatedomain.InviteRequest{
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
		Slug:  strings.TrimSpace(req.Slug),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) PortalSetPayoutMethod(c *gin.Context) {
	affiliateID, err := portalAffiliateID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.setPayoutMethod(c, affiliateID.String())
}

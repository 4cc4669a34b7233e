package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
)

type createAPIKeyRequest struct {
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	AffiliateID string     `json:"affiliate_id"`
	Scopes      []string   `json:"scopes"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	affiliateID, err := parseOptionalSnowflakeID(c.Query("affiliate_id"))
	if err != nil {
		AbortWithError(c, newValidationError("affiliate_id", "invalid_affiliate_id", "invalid affiliate_id"))
		return
	}

	keys, err := s.apiKeySvc.List(c.Request.Context(), affiliateID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": keys})
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	affiliateID, err := parseOptionalSnowflakeID(req.AffiliateID)
	if err != nil {
		AbortWithError(c, newValidationError("affiliate_id", "invalid_affiliate_id", "invalid affiliate_id"))
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		Name:        strings.TrimSpace(req.Name),
		Role:        apikeydomain.Role(strings.ToLower(strings.TrimSpace(req.Role))),
		AffiliateID: affiliateID,
		Scopes:      req.Scopes,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type createAffiliateKeyRequest struct {
	Name string `json:"name"`
}

// CreateAffiliateAPIKey issues a portal key bound to one affiliate.
func (s *Server) CreateAffiliateAPIKey(c *gin.Context) {
	var req createAffiliateKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	affiliate, err := s.affiliateSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = affiliate.Slug + " portal"
	}
	affiliateID := affiliate.ID
	resp, err := s.apiKeySvc.Create(c.Request.Context(), apikeydomain.CreateRequest{
		Name:        name,
		Role:        apikeydomain.RoleAffiliate,
		AffiliateID: &affiliateID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) RotateAPIKey(c *gin.Context) {
	resp, err := s.apiKeySvc.Rotate(c.Request.Context(), strings.TrimSpace(c.Param("key_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	if err := s.apiKeySvc.Revoke(c.Request.Context(), strings.TrimSpace(c.Param("key_id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

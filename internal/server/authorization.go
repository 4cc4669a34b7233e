package server

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/hightide/internal/authorization"
)

// authorizeAction checks the authenticated key's role against the casbin
// policy. It must run after APIKeyRequired.
func (s *Server) authorizeAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := principalFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		err := s.authzSvc.Authorize(c.Request.Context(), authorization.Actor{
			Type: "api_key",
			ID:   principal.KeyID,
			Role: string(principal.Role),
		}, object, action)
		if err != nil {
			if errors.Is(err, authorization.ErrInvalidActor) {
				err = ErrUnauthorized
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// portalAffiliateID returns the affiliate bound to the calling key.
func portalAffiliateID(c *gin.Context) (snowflake.ID, error) {
	principal, ok := principalFromContext(c.Request.Context())
	if !ok {
		return 0, ErrUnauthorized
	}
	if principal.AffiliateID == nil || *principal.AffiliateID == 0 {
		return 0, ErrForbidden
	}
	return *principal.AffiliateID, nil
}

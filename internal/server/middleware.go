package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	obscontext "github.com/smallbiznis/hightide/internal/observability/context"
)

type principalKey struct{}

// APIKeyRequired authenticates the bearer API key and stores its principal
// on the request context.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="hightide"`)
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.apiKeySvc.Authenticate(c.Request.Context(), raw)
		if err != nil {
			if errors.Is(err, apikeydomain.ErrUnauthorized) {
				c.Header("WWW-Authenticate", `Bearer realm="hightide"`)
			}
			AbortWithError(c, err)
			return
		}

		ctx := context.WithValue(c.Request.Context(), principalKey{}, principal)
		ctx = obscontext.WithActor(ctx, string(auditdomain.ActorTypeAPIKey), principal.KeyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func principalFromContext(ctx context.Context) (apikeydomain.Principal, bool) {
	if ctx == nil {
		return apikeydomain.Principal{}, false
	}
	principal, ok := ctx.Value(principalKey{}).(apikeydomain.Principal)
	return principal, ok
}

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	payoutdomain "github.com/smallbiznis/hightide/internal/payout/domain"
)

func (s *Server) ListPayouts(c *gin.Context) {
	var query payoutdomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payoutSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payouts, "page_info": resp.PageInfo})
}

func (s *Server) GetPayout(c *gin.Context) {
	resp, err := s.payoutSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayoutStatement(c *gin.Context) {
	s.writeStatement(c, strings.TrimSpace(c.Param("id")))
}

func (s *Server) writeStatement(c *gin.Context, id string) {
	doc, err := s.payoutSvc.Statement(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="payout-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) GeneratePayouts(c *gin.Context) {
	resp, err := s.payoutSvc.Generate(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApprovePayouts(c *gin.Context) {
	s.bulkPayoutAction(c, s.payoutSvc.Approve)
}

func (s *Server) DenyPayouts(c *gin.Context) {
	s.bulkPayoutAction(c, s.payoutSvc.Deny)
}

func (s *Server) RevertPayouts(c *gin.Context) {
	s.bulkPayoutAction(c, s.payoutSvc.Revert)
}

// PayPayouts disburses approved payouts. A rail failure aborts the whole
// batch and surfaces as 502.
func (s *Server) PayPayouts(c *gin.Context) {
	ids, ok := bindBulkIDs(c)
	if !ok {
		return
	}

	resp, err := s.payoutSvc.Pay(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) bulkPayoutAction(c *gin.Context, fn func(ctx context.Context, ids []string) (payoutdomain.BulkResult, error)) {
	ids, ok := bindBulkIDs(c)
	if !ok {
		return
	}

	resp, err := fn(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

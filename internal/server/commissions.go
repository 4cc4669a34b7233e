package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commissiondomain "github.com/smallbiznis/hightide/internal/commission/domain"
)

type bulkIDsRequest struct {
	IDs []string `json:"ids"`
}

func bindBulkIDs(c *gin.Context) ([]string, bool) {
	var req bulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return nil, false
	}
	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		AbortWithError(c, newValidationError("ids", "empty_selection", "no ids selected"))
		return nil, false
	}
	return ids, true
}

func (s *Server) ListCommissions(c *gin.Context) {
	var query commissiondomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.commissionSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Commissions, "page_info": resp.PageInfo})
}

func (s *Server) ApproveCommissions(c *gin.Context) {
	ids, ok := bindBulkIDs(c)
	if !ok {
		return
	}

	resp, err := s.commissionSvc.Approve(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VoidCommissions(c *gin.Context) {
	ids, ok := bindBulkIDs(c)
	if !ok {
		return
	}

	resp, err := s.commissionSvc.Void(c.Request.Context(), ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

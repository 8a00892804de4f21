package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	dashboarddomain "github.com/smallbiznis/bizledger/internal/dashboard/domain"
)

func (s *Server) GetDashboardSummary(c *gin.Context) {
	resp, err := s.dashboardSvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerBalances(c *gin.Context) {
	resp, err := s.dashboardSvc.ListCustomerBalances(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDashboardActivity(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), 0)
	if err != nil {
		AbortWithError(c, dashboarddomain.ErrInvalidLimit)
		return
	}

	resp, err := s.dashboardSvc.ListActivity(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

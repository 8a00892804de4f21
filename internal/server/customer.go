package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	"github.com/smallbiznis/bizledger/pkg/db/pagination"
	"go.uber.org/zap"
)

type createCustomerRequest struct {
	Name             string         `json:"name"`
	Email            string         `json:"email"`
	Currency         string         `json:"currency"`
	PaymentTermsDays int            `json:"payment_terms_days"`
	Metadata         map[string]any `json:"metadata"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Create(c.Request.Context(), customerdomain.CreateCustomerRequest{
		Name:             strings.TrimSpace(req.Name),
		Email:            strings.TrimSpace(req.Email),
		Currency:         strings.TrimSpace(req.Currency),
		PaymentTermsDays: req.PaymentTermsDays,
		Metadata:         req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if s.auditSvc != nil {
		targetID := resp.ID.String()
		if err := s.auditSvc.AuditLog(c.Request.Context(), nil, "customer.created", "customer", &targetID, map[string]any{
			"name":     resp.Name,
			"email":    resp.Email,
			"currency": resp.Currency,
		}); err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", "customer.created"), zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCustomers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Email    string `form:"email"`
		Currency string `form:"currency"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.List(c.Request.Context(), customerdomain.ListCustomerRequest{
		Pagination: query.Pagination,
		Email:      strings.TrimSpace(query.Email),
		Currency:   strings.TrimSpace(query.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Customers, "page_info": resp.PageInfo})
}

func (s *Server) GetCustomerByID(c *gin.Context) {
	resp, err := s.customerSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizledger/internal/auditcontext"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	"github.com/smallbiznis/bizledger/pkg/money"
)

type addPaymentRequest struct {
	Amount        any            `json:"amount"`
	Currency      string         `json:"currency"`
	PaymentMethod string         `json:"payment_method"`
	PaymentDate   string         `json:"payment_date"`
	Reference     string         `json:"reference"`
	Notes         string         `json:"notes"`
	Metadata      map[string]any `json:"metadata"`
}

func (s *Server) AddPayment(c *gin.Context) {
	var req addPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paymentDate, err := parseOptionalTime(req.PaymentDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("payment_date", "invalid_payment_date", "invalid payment_date"))
		return
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}

	resp, err := s.paymentSvc.AddPayment(c.Request.Context(), paymentdomain.AddPaymentRequest{
		InvoiceID:     c.Param("id"),
		Amount:        money.Coerce(req.Amount),
		Currency:      strings.TrimSpace(req.Currency),
		PaymentMethod: paymentdomain.Method(req.PaymentMethod),
		PaymentDate:   paymentDate,
		Reference:     reference,
		Notes:         req.Notes,
		Metadata:      req.Metadata,
		ActorID:       auditcontext.ActorIDFromContext(c.Request.Context()),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	resp, err := s.paymentSvc.ListByInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	resp, err := s.paymentSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bizledger/internal/auditcontext"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/pkg/db/pagination"
	"github.com/smallbiznis/bizledger/pkg/money"
)

type itemRequest struct {
	ProductID    string `json:"product_id"`
	Description  string `json:"description"`
	Quantity     any    `json:"quantity"`
	UnitPrice    any    `json:"unit_price"`
	DiscountRate any    `json:"discount_rate"`
	TaxRate      any    `json:"tax_rate"`
}

func (r itemRequest) toInput() invoicedomain.ItemInput {
	return invoicedomain.ItemInput{
		ProductID:    strings.TrimSpace(r.ProductID),
		Description:  strings.TrimSpace(r.Description),
		Quantity:     money.Coerce(r.Quantity),
		UnitPrice:    optionalAmount(r.UnitPrice),
		DiscountRate: money.Coerce(r.DiscountRate),
		TaxRate:      optionalAmount(r.TaxRate),
	}
}

type createInvoiceRequest struct {
	InvoiceType   string         `json:"invoice_type"`
	InvoiceNumber string         `json:"invoice_number"`
	CustomerID    string         `json:"customer_id"`
	InvoiceDate   string         `json:"invoice_date"`
	DueDate       string         `json:"due_date"`
	Currency      string         `json:"currency"`
	ExchangeRate  any            `json:"exchange_rate"`
	Notes         string         `json:"notes"`
	Metadata      map[string]any `json:"metadata"`
	Items         []itemRequest  `json:"items"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoiceDate, err := parseOptionalTime(req.InvoiceDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("invoice_date", "invalid_invoice_date", "invalid invoice_date"))
		return
	}
	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	items := make([]invoicedomain.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, item.toInput())
	}

	resp, err := s.invoiceSvc.CreateInvoice(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		InvoiceType:   invoicedomain.InvoiceType(strings.TrimSpace(req.InvoiceType)),
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		CustomerID:    strings.TrimSpace(req.CustomerID),
		InvoiceDate:   invoiceDate,
		DueDate:       dueDate,
		Currency:      strings.TrimSpace(req.Currency),
		ExchangeRate:  optionalAmount(req.ExchangeRate),
		Notes:         req.Notes,
		Metadata:      req.Metadata,
		Items:         items,
		ActorID:       auditcontext.ActorIDFromContext(c.Request.Context()),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		InvoiceType   string `form:"invoice_type"`
		Status        string `form:"status"`
		PaymentStatus string `form:"payment_status"`
		CustomerID    string `form:"customer_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Pagination:    query.Pagination,
		InvoiceType:   invoicedomain.InvoiceType(strings.TrimSpace(query.InvoiceType)),
		Status:        invoicedomain.InvoiceStatus(strings.TrimSpace(query.Status)),
		PaymentStatus: invoicedomain.PaymentStatus(strings.TrimSpace(query.PaymentStatus)),
		CustomerID:    strings.TrimSpace(query.CustomerID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) ListOverdueInvoices(c *gin.Context) {
	resp, err := s.invoiceSvc.ListOverdueInvoices(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	resp, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateInvoiceRequest struct {
	CustomerID   *string        `json:"customer_id"`
	InvoiceDate  *string        `json:"invoice_date"`
	DueDate      *string        `json:"due_date"`
	Currency     *string        `json:"currency"`
	ExchangeRate any            `json:"exchange_rate"`
	Notes        *string        `json:"notes"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req updateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	update := invoicedomain.UpdateInvoiceRequest{
		CustomerID:   req.CustomerID,
		Currency:     req.Currency,
		ExchangeRate: optionalAmount(req.ExchangeRate),
		Notes:        req.Notes,
		Metadata:     req.Metadata,
	}
	if req.InvoiceDate != nil {
		parsed, err := parseOptionalTime(*req.InvoiceDate, false)
		if err != nil || parsed == nil {
			AbortWithError(c, newValidationError("invoice_date", "invalid_invoice_date", "invalid invoice_date"))
			return
		}
		update.InvoiceDate = parsed
	}
	if req.DueDate != nil {
		parsed, err := parseOptionalTime(*req.DueDate, false)
		if err != nil || parsed == nil {
			AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
			return
		}
		update.DueDate = parsed
	}

	resp, err := s.invoiceSvc.UpdateInvoice(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	if err := s.invoiceSvc.DeleteInvoice(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ApproveInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.ApproveInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.invoiceSvc.CancelInvoice(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddInvoiceItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.AddInvoiceItem(c.Request.Context(), c.Param("id"), req.toInput())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type updateItemRequest struct {
	Description  *string `json:"description"`
	Quantity     any     `json:"quantity"`
	UnitPrice    any     `json:"unit_price"`
	DiscountRate any     `json:"discount_rate"`
	TaxRate      any     `json:"tax_rate"`
}

func (s *Server) UpdateInvoiceItem(c *gin.Context) {
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.UpdateInvoiceItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), invoicedomain.UpdateItemRequest{
		Description:  req.Description,
		Quantity:     optionalAmount(req.Quantity),
		UnitPrice:    optionalAmount(req.UnitPrice),
		DiscountRate: optionalAmount(req.DiscountRate),
		TaxRate:      optionalAmount(req.TaxRate),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteInvoiceItem(c *gin.Context) {
	resp, err := s.invoiceSvc.DeleteInvoiceItem(c.Request.Context(), c.Param("id"), c.Param("itemId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

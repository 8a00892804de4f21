package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/pkg/db/pagination"
)

// ItemInput describes a line to add. Nil prices fall back to the product
// defaults when ProductID is set, otherwise to zero.
type ItemInput struct {
	ProductID    string           `json:"product_id,omitempty"`
	Description  string           `json:"description,omitempty"`
	Quantity     decimal.Decimal  `json:"quantity"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountRate decimal.Decimal  `json:"discount_rate"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
}

type UpdateItemRequest struct {
	Description  *string          `json:"description,omitempty"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty"`
	DiscountRate *decimal.Decimal `json:"discount_rate,omitempty"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
}

type CreateInvoiceRequest struct {
	InvoiceType   InvoiceType      `json:"invoice_type"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	CustomerID    string           `json:"customer_id"`
	InvoiceDate   *time.Time       `json:"invoice_date,omitempty"`
	DueDate       *time.Time       `json:"due_date,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	ExchangeRate  *decimal.Decimal `json:"exchange_rate,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	Items         []ItemInput      `json:"items"`
	ActorID       string           `json:"-"`
}

// UpdateInvoiceRequest patches header fields. Totals and statuses are never
// accepted from callers.
type UpdateInvoiceRequest struct {
	CustomerID   *string          `json:"customer_id,omitempty"`
	InvoiceDate  *time.Time       `json:"invoice_date,omitempty"`
	DueDate      *time.Time       `json:"due_date,omitempty"`
	Currency     *string          `json:"currency,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	InvoiceType   InvoiceType
	Status        InvoiceStatus
	PaymentStatus PaymentStatus
	CustomerID    string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	UpdateInvoice(ctx context.Context, id string, req UpdateInvoiceRequest) (Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error

	ApproveInvoice(ctx context.Context, id string) (Invoice, error)
	CancelInvoice(ctx context.Context, id string, reason string) (Invoice, error)

	AddInvoiceItem(ctx context.Context, invoiceID string, req ItemInput) (Invoice, error)
	UpdateInvoiceItem(ctx context.Context, invoiceID, itemID string, req UpdateItemRequest) (Invoice, error)
	DeleteInvoiceItem(ctx context.Context, invoiceID, itemID string) (Invoice, error)

	ListOverdueInvoices(ctx context.Context) ([]Invoice, error)
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
)

// AddPaymentRequest records a payment. A non-empty Reference makes the call
// idempotent: replaying it returns the payment recorded first.
type AddPaymentRequest struct {
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	PaymentMethod Method          `json:"payment_method"`
	PaymentDate   *time.Time      `json:"payment_date,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	ActorID       string          `json:"-"`
}

type Service interface {
	AddPayment(ctx context.Context, req AddPaymentRequest) (Payment, error)
	GetByID(ctx context.Context, id string) (Payment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]Payment, error)
}

var (
	ErrPaymentNotFound  = invoicedomain.NewNotFound("payment_not_found")
	ErrInvalidPaymentID = invoicedomain.NewValidation("invalid_payment_id")

	ErrInvalidAmount        = invoicedomain.NewValidation("invalid_amount")
	ErrInvalidPaymentMethod = invoicedomain.NewValidation("invalid_payment_method")
	ErrInvalidReference     = invoicedomain.NewValidation("invalid_reference")
	ErrCurrencyMismatch     = invoicedomain.NewValidation("currency_mismatch")
	ErrReferenceConflict    = invoicedomain.NewValidation("reference_used_by_another_invoice")
)

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidLimit = errors.New("invalid_limit")

// TypeSummary aggregates one invoice type. Money figures exclude cancelled
// invoices; counts include them.
type TypeSummary struct {
	InvoiceCount    int64            `json:"invoice_count"`
	ByStatus        map[string]int64 `json:"by_status"`
	ByPaymentStatus map[string]int64 `json:"by_payment_status"`
	TotalInvoiced   decimal.Decimal  `json:"total_invoiced"`
	TotalPaid       decimal.Decimal  `json:"total_paid"`
	Outstanding     decimal.Decimal  `json:"outstanding"`
	OverdueCount    int64            `json:"overdue_count"`
	OverdueAmount   decimal.Decimal  `json:"overdue_amount"`
}

// Summary is the dashboard view of the ledger.
type Summary struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Sales       TypeSummary `json:"sales"`
	Purchase    TypeSummary `json:"purchase"`
}

// CustomerBalance is the open position of a customer across non-cancelled
// sales invoices.
type CustomerBalance struct {
	CustomerID    string          `json:"customer_id"`
	Name          string          `json:"name"`
	Currency      string          `json:"currency"`
	Invoiced      decimal.Decimal `json:"invoiced"`
	Paid          decimal.Decimal `json:"paid"`
	Balance       decimal.Decimal `json:"balance"`
	LastInvoiceID string          `json:"last_invoice_id,omitempty"`
	PaymentStatus string          `json:"payment_status"`
}

type CustomerBalancesResponse struct {
	Customers []CustomerBalance `json:"customers"`
}

// Activity is a human-readable ledger event.
type Activity struct {
	Action     string    `json:"action"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ActivityResponse struct {
	Activity []Activity `json:"activity"`
}

type Service interface {
	Summary(ctx context.Context) (Summary, error)
	ListCustomerBalances(ctx context.Context) (CustomerBalancesResponse, error)
	ListActivity(ctx context.Context, limit int) (ActivityResponse, error)
}

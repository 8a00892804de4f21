package domain

import (
	"context"
)

// InvoiceView is the display form of an invoice. Amounts are rounded to two
// decimals at this boundary only.
type InvoiceView struct {
	ID            string        `json:"id"`
	InvoiceNumber string        `json:"invoice_number"`
	InvoiceType   string        `json:"invoice_type"`
	Status        string        `json:"status"`
	PaymentStatus string        `json:"payment_status"`
	IssueDate     string        `json:"issue_date"`
	DueDate       string        `json:"due_date,omitempty"`
	Overdue       bool          `json:"overdue"`
	Currency      string        `json:"currency"`
	BillToName    string        `json:"bill_to_name"`
	BillToEmail   string        `json:"bill_to_email"`
	Items         []LineView    `json:"items"`
	Payments      []PaymentView `json:"payments"`
	Subtotal      string        `json:"subtotal"`
	TaxAmount     string        `json:"tax_amount"`
	TotalAmount   string        `json:"total_amount"`
	AmountPaid    string        `json:"amount_paid"`
	AmountDue     string        `json:"amount_due"`
	Notes         string        `json:"notes,omitempty"`
}

type LineView struct {
	Description  string `json:"description"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	DiscountRate string `json:"discount_rate"`
	TaxRate      string `json:"tax_rate"`
	Amount       string `json:"amount"`
}

type PaymentView struct {
	PaymentNumber string `json:"payment_number"`
	PaymentDate   string `json:"payment_date"`
	Method        string `json:"method"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference,omitempty"`
}

// Document is a rendered file. Location is set when the file was archived.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
	Location    string
}

type Service interface {
	GetInvoiceView(ctx context.Context, invoiceID string) (InvoiceView, error)
	RenderInvoicePDF(ctx context.Context, invoiceID string) (Document, error)
	RenderPaymentReceipt(ctx context.Context, paymentID string) (Document, error)
}

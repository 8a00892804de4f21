// Package domain contains persistence models and the pure ledger rules for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceType separates sales documents from purchase documents.
type InvoiceType string

const (
	InvoiceTypeSales    InvoiceType = "sales"
	InvoiceTypePurchase InvoiceType = "purchase"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceTypeSales || t == InvoiceTypePurchase
}

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusApproved  InvoiceStatus = "approved"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// PaymentStatus is derived from the recorded payments of an invoice.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPartial PaymentStatus = "partial"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Invoice is a sales or purchase document. Subtotal, TaxAmount and
// TotalAmount are always derived from Items.
type Invoice struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceNumber string            `gorm:"type:varchar(32);not null;uniqueIndex:ux_invoices_invoice_number" json:"invoice_number"`
	InvoiceType   InvoiceType       `gorm:"type:varchar(16);not null;index" json:"invoice_type"`
	CustomerID    snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	InvoiceDate   time.Time         `gorm:"not null" json:"invoice_date"`
	DueDate       *time.Time        `gorm:"index" json:"due_date,omitempty"`
	Subtotal      decimal.Decimal   `gorm:"type:numeric(20,4);not null;default:0" json:"subtotal"`
	TaxAmount     decimal.Decimal   `gorm:"type:numeric(20,4);not null;default:0" json:"tax_amount"`
	TotalAmount   decimal.Decimal   `gorm:"type:numeric(20,4);not null;default:0" json:"total_amount"`
	Currency      string            `gorm:"type:varchar(3);not null" json:"currency"`
	ExchangeRate  decimal.Decimal   `gorm:"type:numeric(20,8);not null;default:1" json:"exchange_rate"`
	Status        InvoiceStatus     `gorm:"type:varchar(16);not null;default:'draft';index" json:"status"`
	PaymentStatus PaymentStatus     `gorm:"type:varchar(16);not null;default:'unpaid';index" json:"payment_status"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy     string            `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	Version       int64             `gorm:"not null;default:1" json:"version"`
	ApprovedAt    *time.Time        `json:"approved_at,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CancelReason  string            `gorm:"type:text" json:"cancel_reason,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID    snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	ProductID    *snowflake.ID   `gorm:"index" json:"product_id,omitempty"`
	Description  string          `gorm:"type:text" json:"description,omitempty"`
	Quantity     decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"quantity"`
	UnitPrice    decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"unit_price"`
	DiscountRate decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"discount_rate"`
	TaxRate      decimal.Decimal `gorm:"type:numeric(7,4);not null;default:0" json:"tax_rate"`
	LineTotal    decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"line_total"`
	Position     int             `gorm:"not null;default:0" json:"position"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodCash         Method = "cash"
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
	MethodCheque       Method = "cheque"
	MethodOther        Method = "other"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard, MethodCheque, MethodOther:
		return true
	}
	return false
}

// Payment is money received against (or paid out for) one invoice.
type Payment struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	PaymentNumber string            `gorm:"type:varchar(32);not null;uniqueIndex:ux_payments_payment_number" json:"payment_number"`
	InvoiceID     snowflake.ID      `gorm:"not null;index" json:"invoice_id"`
	CustomerID    snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	Amount        decimal.Decimal   `gorm:"type:numeric(20,4);not null" json:"amount"`
	Currency      string            `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentMethod Method            `gorm:"type:varchar(32);not null" json:"payment_method"`
	PaymentDate   time.Time         `gorm:"not null" json:"payment_date"`
	Reference     *string           `gorm:"type:varchar(128);uniqueIndex:ux_payments_reference" json:"reference,omitempty"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy     string            `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

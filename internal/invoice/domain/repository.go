package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	InvoiceType   InvoiceType
	Status        InvoiceStatus
	PaymentStatus PaymentStatus
	CustomerID    snowflake.ID
	BeforeID      snowflake.ID
	Limit         int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, inv *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	ListOverdue(ctx context.Context, db *gorm.DB, before time.Time) ([]Invoice, error)
	Update(ctx context.Context, db *gorm.DB, inv *Invoice) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertItem(ctx context.Context, db *gorm.DB, item *InvoiceItem) error
	FindItem(ctx context.Context, db *gorm.DB, invoiceID, itemID snowflake.ID) (*InvoiceItem, error)
	UpdateItem(ctx context.Context, db *gorm.DB, item *InvoiceItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, invoiceID, itemID snowflake.ID) error
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
}

// PaymentReconciler recomputes the payment status of a locked invoice inside
// an open transaction and persists it when it changed.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, tx *gorm.DB, inv *Invoice) error
}

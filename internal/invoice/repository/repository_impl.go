package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizledger/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_number, invoice_type, customer_id, invoice_date, due_date,
			subtotal, tax_amount, total_amount, currency, exchange_rate,
			status, payment_status, notes, created_by, version, metadata,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		inv.InvoiceNumber,
		inv.InvoiceType,
		inv.CustomerID,
		inv.InvoiceDate,
		inv.DueDate,
		inv.Subtotal,
		inv.TaxAmount,
		inv.TotalAmount,
		inv.Currency,
		inv.ExchangeRate,
		inv.Status,
		inv.PaymentStatus,
		inv.Notes,
		inv.CreatedBy,
		inv.Version,
		inv.Metadata,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(db.WithContext(ctx), id)
}

// FindForUpdate loads the invoice holding a row lock until the surrounding
// transaction ends.
func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) find(stmt *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := stmt.Model(&domain.Invoice{}).Where("id = ?", id).Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	var items []domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.InvoiceType != "" {
		stmt = stmt.Where("invoice_type = ?", filter.InvoiceType)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		stmt = stmt.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.CustomerID != 0 {
		stmt = stmt.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.BeforeID != 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListOverdue(ctx context.Context, db *gorm.DB, before time.Time) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("due_date IS NOT NULL AND due_date < ?", before).
		Where("payment_status <> ?", domain.PaymentStatusPaid).
		Where("status <> ?", domain.InvoiceStatusCancelled).
		Order("due_date asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Update writes the mutable columns guarded by the version the caller read.
// On success inv.Version is advanced.
func (r *repo) Update(ctx context.Context, db *gorm.DB, inv *domain.Invoice) error {
	if inv == nil {
		return gorm.ErrInvalidData
	}

	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			customer_id = ?, invoice_date = ?, due_date = ?,
			subtotal = ?, tax_amount = ?, total_amount = ?,
			currency = ?, exchange_rate = ?,
			status = ?, payment_status = ?, notes = ?,
			approved_at = ?, cancelled_at = ?, cancel_reason = ?,
			metadata = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		inv.CustomerID,
		inv.InvoiceDate,
		inv.DueDate,
		inv.Subtotal,
		inv.TaxAmount,
		inv.TotalAmount,
		inv.Currency,
		inv.ExchangeRate,
		inv.Status,
		inv.PaymentStatus,
		inv.Notes,
		inv.ApprovedAt,
		inv.CancelledAt,
		inv.CancelReason,
		inv.Metadata,
		inv.UpdatedAt,
		inv.ID,
		inv.Version,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	inv.Version++
	return nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	if err := db.WithContext(ctx).Exec(`DELETE FROM invoice_items WHERE invoice_id = ?`, id).Error; err != nil {
		return err
	}
	res := db.WithContext(ctx).Exec(`DELETE FROM invoices WHERE id = ?`, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvoiceNotFound
	}
	return nil
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.InvoiceItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_items (
			id, invoice_id, product_id, description, quantity, unit_price,
			discount_rate, tax_rate, line_total, position, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.InvoiceID,
		item.ProductID,
		item.Description,
		item.Quantity,
		item.UnitPrice,
		item.DiscountRate,
		item.TaxRate,
		item.LineTotal,
		item.Position,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, invoiceID, itemID snowflake.ID) (*domain.InvoiceItem, error) {
	var item domain.InvoiceItem
	err := db.WithContext(ctx).
		Model(&domain.InvoiceItem{}).
		Where("invoice_id = ? AND id = ?", invoiceID, itemID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repo) UpdateItem(ctx context.Context, db *gorm.DB, item *domain.InvoiceItem) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoice_items SET
			description = ?, quantity = ?, unit_price = ?, discount_rate = ?,
			tax_rate = ?, line_total = ?, updated_at = ?
		 WHERE invoice_id = ? AND id = ?`,
		item.Description,
		item.Quantity,
		item.UnitPrice,
		item.DiscountRate,
		item.TaxRate,
		item.LineTotal,
		item.UpdatedAt,
		item.InvoiceID,
		item.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, invoiceID, itemID snowflake.ID) error {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_items WHERE invoice_id = ? AND id = ?`,
		invoiceID,
		itemID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Model(&domain.InvoiceItem{}).
		Where("invoice_id = ?", invoiceID).
		Order("position asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

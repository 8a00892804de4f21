package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"gorm.io/gorm"
)

// itemPlan is a validated item input. Nil price and tax fall back to the
// product defaults, or to zero without a product.
type itemPlan struct {
	productID    *snowflake.ID
	description  string
	quantity     decimal.Decimal
	unitPrice    *decimal.Decimal
	discountRate decimal.Decimal
	taxRate      *decimal.Decimal
}

func planItem(in invoicedomain.ItemInput) (itemPlan, error) {
	plan := itemPlan{
		description:  strings.TrimSpace(in.Description),
		quantity:     in.Quantity,
		discountRate: in.DiscountRate,
	}
	if raw := strings.TrimSpace(in.ProductID); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return itemPlan{}, invoicedomain.ErrInvalidProduct
		}
		plan.productID = &id
	}
	plan.unitPrice = in.UnitPrice
	plan.taxRate = in.TaxRate

	if err := validateAmounts(&plan.quantity, plan.unitPrice, &plan.discountRate, plan.taxRate); err != nil {
		return itemPlan{}, err
	}
	return plan, nil
}

func (s *Service) insertItem(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, plan itemPlan, position int, now time.Time) (invoicedomain.InvoiceItem, error) {
	item := invoicedomain.InvoiceItem{
		ID:           s.genID.Generate(),
		InvoiceID:    invoiceID,
		ProductID:    plan.productID,
		Description:  plan.description,
		Quantity:     plan.quantity,
		UnitPrice:    decimal.Zero,
		DiscountRate: plan.discountRate,
		TaxRate:      decimal.Zero,
		Position:     position,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if plan.productID != nil {
		product, err := s.productRepo.FindByID(ctx, tx, *plan.productID)
		if err != nil {
			return invoicedomain.InvoiceItem{}, err
		}
		if product == nil {
			return invoicedomain.InvoiceItem{}, invoicedomain.ErrProductNotFound
		}
		if !product.Active {
			return invoicedomain.InvoiceItem{}, invoicedomain.ErrInvalidProduct
		}
		if item.Description == "" {
			item.Description = product.Name
		}
		item.UnitPrice = product.UnitPrice
		item.TaxRate = product.TaxRate
	}
	if plan.unitPrice != nil {
		item.UnitPrice = *plan.unitPrice
	}
	if plan.taxRate != nil {
		item.TaxRate = *plan.taxRate
	}

	item.LineTotal = invoicedomain.LineTotal(item.Quantity, item.UnitPrice, item.DiscountRate)
	if err := s.repo.InsertItem(ctx, tx, &item); err != nil {
		return invoicedomain.InvoiceItem{}, err
	}
	return item, nil
}

// recalculate replaces the invoice totals with the aggregate of its current
// items and re-derives the payment status against the new total. It must run
// in the transaction that mutated the items.
func (s *Service) recalculate(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) error {
	items, err := s.repo.ListItems(ctx, tx, inv.ID)
	if err != nil {
		return err
	}

	invoicedomain.Aggregate(items).Apply(inv)
	inv.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, tx, inv); err != nil {
		return err
	}
	inv.Items = items

	if s.reconciler != nil {
		return s.reconciler.Reconcile(ctx, tx, inv)
	}
	return nil
}

func (s *Service) AddInvoiceItem(ctx context.Context, invoiceID string, req invoicedomain.ItemInput) (updated invoicedomain.Invoice, err error) {
	ctx, finish := s.begin(ctx, "add_invoice_item")
	defer func() { finish(err) }()

	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	plan, err := planItem(req)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var added invoicedomain.InvoiceItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := invoicedomain.EnsureMutable(*inv, invoicedomain.MutationItems); err != nil {
			return err
		}

		existing, err := s.repo.ListItems(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		added, err = s.insertItem(ctx, tx, inv.ID, plan, nextPosition(existing), s.clock.Now())
		if err != nil {
			return err
		}

		if err := s.recalculate(ctx, tx, inv); err != nil {
			return err
		}
		updated = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}

	s.metrics.RecordItemMutation(ctx, "add")
	s.emit(ctx, events.ItemAdded, "invoice_item.added", &updated, itemMetadata(added))
	return updated, nil
}

func (s *Service) UpdateInvoiceItem(ctx context.Context, invoiceID, itemID string, req invoicedomain.UpdateItemRequest) (updated invoicedomain.Invoice, err error) {
	ctx, finish := s.begin(ctx, "update_invoice_item")
	defer func() { finish(err) }()

	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	lineID, err := parseID(itemID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidItemID
	}
	if err := validateAmounts(req.Quantity, req.UnitPrice, req.DiscountRate, req.TaxRate); err != nil {
		return invoicedomain.Invoice{}, err
	}

	var changed invoicedomain.InvoiceItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := invoicedomain.EnsureMutable(*inv, invoicedomain.MutationItems); err != nil {
			return err
		}

		item, err := s.repo.FindItem(ctx, tx, inv.ID, lineID)
		if err != nil {
			return err
		}
		if item == nil {
			return invoicedomain.ErrItemNotFound
		}

		if req.Description != nil {
			item.Description = strings.TrimSpace(*req.Description)
		}
		if req.Quantity != nil {
			item.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			item.UnitPrice = *req.UnitPrice
		}
		if req.DiscountRate != nil {
			item.DiscountRate = *req.DiscountRate
		}
		if req.TaxRate != nil {
			item.TaxRate = *req.TaxRate
		}
		item.LineTotal = invoicedomain.LineTotal(item.Quantity, item.UnitPrice, item.DiscountRate)
		item.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateItem(ctx, tx, item); err != nil {
			return err
		}
		changed = *item

		if err := s.recalculate(ctx, tx, inv); err != nil {
			return err
		}
		updated = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}

	s.metrics.RecordItemMutation(ctx, "update")
	s.emit(ctx, events.ItemUpdated, "invoice_item.updated", &updated, itemMetadata(changed))
	return updated, nil
}

func (s *Service) DeleteInvoiceItem(ctx context.Context, invoiceID, itemID string) (updated invoicedomain.Invoice, err error) {
	ctx, finish := s.begin(ctx, "delete_invoice_item")
	defer func() { finish(err) }()

	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	lineID, err := parseID(itemID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidItemID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := invoicedomain.EnsureMutable(*inv, invoicedomain.MutationItems); err != nil {
			return err
		}
		if err := s.repo.DeleteItem(ctx, tx, inv.ID, lineID); err != nil {
			return err
		}
		if err := s.recalculate(ctx, tx, inv); err != nil {
			return err
		}
		updated = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}

	s.metrics.RecordItemMutation(ctx, "delete")
	s.emit(ctx, events.ItemDeleted, "invoice_item.deleted", &updated, map[string]any{
		"item_id": lineID.String(),
	})
	return updated, nil
}

func nextPosition(items []invoicedomain.InvoiceItem) int {
	next := 0
	for _, item := range items {
		if item.Position >= next {
			next = item.Position + 1
		}
	}
	return next
}

func itemMetadata(item invoicedomain.InvoiceItem) map[string]any {
	return map[string]any{
		"item_id":    item.ID.String(),
		"quantity":   item.Quantity.String(),
		"unit_price": item.UnitPrice.String(),
		"line_total": item.LineTotal.String(),
	}
}

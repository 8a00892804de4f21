package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"gorm.io/gorm"
)

// ApproveInvoice moves a draft invoice to approved.
func (s *Service) ApproveInvoice(ctx context.Context, id string) (approved invoicedomain.Invoice, err error) {
	ctx, finish := s.begin(ctx, "approve_invoice")
	defer func() { finish(err) }()

	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	var previous invoicedomain.InvoiceStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoicedomain.EnsureApprovable(*inv); err != nil {
			return err
		}

		now := s.clock.Now()
		previous = inv.Status
		inv.Status = invoicedomain.InvoiceStatusApproved
		inv.ApprovedAt = &now
		inv.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, inv); err != nil {
			return err
		}

		items, err := s.repo.ListItems(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		inv.Items = items
		approved = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}

	s.metrics.RecordStatusTransition(ctx, string(previous), string(approved.Status))
	s.emit(ctx, events.InvoiceApproved, "invoice.approved", &approved, map[string]any{
		"previous_status": string(previous),
	})
	return approved, nil
}

// CancelInvoice cancels any invoice that is not fully paid.
func (s *Service) CancelInvoice(ctx context.Context, id string, reason string) (cancelled invoicedomain.Invoice, err error) {
	ctx, finish := s.begin(ctx, "cancel_invoice")
	defer func() { finish(err) }()

	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	reason = strings.TrimSpace(reason)

	var previous invoicedomain.InvoiceStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoicedomain.EnsureCancellable(*inv); err != nil {
			return err
		}

		now := s.clock.Now()
		previous = inv.Status
		inv.Status = invoicedomain.InvoiceStatusCancelled
		inv.CancelledAt = &now
		inv.CancelReason = reason
		inv.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, inv); err != nil {
			return err
		}

		items, err := s.repo.ListItems(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		inv.Items = items
		cancelled = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}

	metadata := map[string]any{"previous_status": string(previous)}
	if reason != "" {
		metadata["reason"] = reason
	}
	s.metrics.RecordStatusTransition(ctx, string(previous), string(cancelled.Status))
	s.emit(ctx, events.InvoiceCancelled, "invoice.cancelled", &cancelled, metadata)
	return cancelled, nil
}

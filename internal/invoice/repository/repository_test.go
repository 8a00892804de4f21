package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdate_RejectsStaleVersion(t *testing.T) {
	db := testutil.NewDB(t, &domain.Invoice{}, &domain.InvoiceItem{})
	node := testutil.NewNode(t)
	r := Provide()
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	inv := domain.Invoice{
		ID:            node.Generate(),
		InvoiceNumber: "INV2026000001",
		InvoiceType:   domain.InvoiceTypeSales,
		CustomerID:    node.Generate(),
		InvoiceDate:   now,
		Currency:      "USD",
		ExchangeRate:  decimal.NewFromInt(1),
		Status:        domain.InvoiceStatusDraft,
		PaymentStatus: domain.PaymentStatusUnpaid,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, r.Insert(ctx, db, &inv))

	first, err := r.FindByID(ctx, db, inv.ID)
	require.NoError(t, err)
	second, err := r.FindByID(ctx, db, inv.ID)
	require.NoError(t, err)

	first.Notes = "first writer"
	require.NoError(t, r.Update(ctx, db, first))
	assert.Equal(t, int64(2), first.Version)

	second.Notes = "second writer"
	err = r.Update(ctx, db, second)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	assert.ErrorIs(t, err, domain.ErrTransactionFailure)

	stored, err := r.FindByID(ctx, db, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "first writer", stored.Notes)
}

func TestFindByID_Missing(t *testing.T) {
	db := testutil.NewDB(t, &domain.Invoice{})
	inv, err := Provide().FindByID(context.Background(), db, 1)
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestItems_OrderedByPosition(t *testing.T) {
	db := testutil.NewDB(t, &domain.Invoice{}, &domain.InvoiceItem{})
	node := testutil.NewNode(t)
	r := Provide()
	ctx := context.Background()
	invoiceID := node.Generate()
	now := time.Now().UTC()

	for _, pos := range []int{2, 0, 1} {
		require.NoError(t, r.InsertItem(ctx, db, &domain.InvoiceItem{
			ID:        node.Generate(),
			InvoiceID: invoiceID,
			Quantity:  decimal.NewFromInt(int64(pos)),
			UnitPrice: decimal.NewFromInt(1),
			Position:  pos,
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	items, err := r.ListItems(ctx, db, invoiceID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	for i, item := range items {
		assert.Equal(t, i, item.Position)
	}

	assert.ErrorIs(t, r.DeleteItem(ctx, db, invoiceID, 1), domain.ErrItemNotFound)
}

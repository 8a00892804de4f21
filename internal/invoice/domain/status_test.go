package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocked(t *testing.T) {
	cases := []struct {
		status  InvoiceStatus
		payment PaymentStatus
		locked  bool
	}{
		{InvoiceStatusDraft, PaymentStatusUnpaid, false},
		{InvoiceStatusDraft, PaymentStatusPartial, false},
		{InvoiceStatusDraft, PaymentStatusPaid, true},
		{InvoiceStatusApproved, PaymentStatusUnpaid, true},
		{InvoiceStatusApproved, PaymentStatusPaid, true},
		{InvoiceStatusCancelled, PaymentStatusUnpaid, true},
	}
	for _, tc := range cases {
		inv := Invoice{Status: tc.status, PaymentStatus: tc.payment}
		assert.Equal(t, tc.locked, IsLocked(inv), "%s/%s", tc.status, tc.payment)
	}
}

func TestEnsureMutable(t *testing.T) {
	draft := Invoice{Status: InvoiceStatusDraft, PaymentStatus: PaymentStatusPartial}
	assert.NoError(t, EnsureMutable(draft, MutationItems))

	approved := Invoice{Status: InvoiceStatusApproved, PaymentStatus: PaymentStatusUnpaid}
	err := EnsureMutable(approved, MutationItems)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualError(t, err, "cannot modify items of an approved/paid invoice")

	assert.ErrorIs(t, EnsureMutable(approved, MutationDelete), ErrDeleteLocked)
	assert.ErrorIs(t, EnsureMutable(approved, MutationUpdate), ErrUpdateLocked)

	paidDraft := Invoice{Status: InvoiceStatusDraft, PaymentStatus: PaymentStatusPaid}
	assert.ErrorIs(t, EnsureMutable(paidDraft, MutationItems), ErrItemsLocked)

	cancelled := Invoice{Status: InvoiceStatusCancelled, PaymentStatus: PaymentStatusUnpaid}
	assert.ErrorIs(t, EnsureMutable(cancelled, MutationItems), ErrCancelledInvoiceLocked)
}

func TestEnsureApprovable(t *testing.T) {
	assert.NoError(t, EnsureApprovable(Invoice{Status: InvoiceStatusDraft}))
	assert.NoError(t, EnsureApprovable(Invoice{Status: InvoiceStatusDraft, PaymentStatus: PaymentStatusPaid}))

	err := EnsureApprovable(Invoice{Status: InvoiceStatusApproved})
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.EqualError(t, err, "only draft invoices can be approved")
	assert.ErrorIs(t, EnsureApprovable(Invoice{Status: InvoiceStatusCancelled}), ErrOnlyDraftApprovable)
}

func TestEnsureCancellable(t *testing.T) {
	assert.NoError(t, EnsureCancellable(Invoice{Status: InvoiceStatusDraft, PaymentStatus: PaymentStatusUnpaid}))
	assert.NoError(t, EnsureCancellable(Invoice{Status: InvoiceStatusApproved, PaymentStatus: PaymentStatusPartial}))

	err := EnsureCancellable(Invoice{Status: InvoiceStatusApproved, PaymentStatus: PaymentStatusPaid})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.EqualError(t, err, "paid invoices cannot be cancelled")

	assert.ErrorIs(t, EnsureCancellable(Invoice{Status: InvoiceStatusCancelled}), ErrAlreadyCancelled)
}

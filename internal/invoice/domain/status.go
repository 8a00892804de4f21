package domain

// Mutation names the kind of change guarded by the status machine.
type Mutation string

const (
	MutationItems  Mutation = "items"
	MutationUpdate Mutation = "update"
	MutationDelete Mutation = "delete"
)

// IsLocked reports whether the invoice no longer accepts edits. An invoice is
// locked once approved, cancelled, or fully paid, whichever status it carries.
func IsLocked(inv Invoice) bool {
	return inv.Status == InvoiceStatusApproved ||
		inv.Status == InvoiceStatusCancelled ||
		inv.PaymentStatus == PaymentStatusPaid
}

// EnsureMutable rejects edits of locked invoices.
func EnsureMutable(inv Invoice, m Mutation) error {
	if !IsLocked(inv) {
		return nil
	}
	if inv.Status == InvoiceStatusCancelled {
		return ErrCancelledInvoiceLocked
	}
	switch m {
	case MutationItems:
		return ErrItemsLocked
	case MutationDelete:
		return ErrDeleteLocked
	default:
		return ErrUpdateLocked
	}
}

// EnsureApprovable allows draft → approved only.
func EnsureApprovable(inv Invoice) error {
	if inv.Status != InvoiceStatusDraft {
		return ErrOnlyDraftApprovable
	}
	return nil
}

// EnsureCancellable allows cancelling any unpaid, not yet cancelled invoice.
func EnsureCancellable(inv Invoice) error {
	if inv.PaymentStatus == PaymentStatusPaid {
		return ErrPaidNotCancellable
	}
	if inv.Status == InvoiceStatusCancelled {
		return ErrAlreadyCancelled
	}
	return nil
}

package domain

import "errors"

// Error classes. Every error returned by the invoice service matches one of
// these through errors.Is.
var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidState       = errors.New("invalid_state")
	ErrValidation         = errors.New("validation_error")
	ErrTransactionFailure = errors.New("transaction_failure")
)

// stateError carries a human readable guard reason and classifies as ErrInvalidState.
type stateError struct{ reason string }

func (e *stateError) Error() string        { return e.reason }
func (e *stateError) Is(target error) bool { return target == ErrInvalidState }

// classified is a sentinel code that also matches its error class.
type classified struct {
	code  string
	class error
}

func (e *classified) Error() string        { return e.code }
func (e *classified) Is(target error) bool { return target == e.class }

// NewNotFound returns a sentinel of the NotFound class.
func NewNotFound(code string) error { return &classified{code: code, class: ErrNotFound} }

// NewValidation returns a sentinel of the ValidationError class.
func NewValidation(code string) error { return &classified{code: code, class: ErrValidation} }

// NewInvalidState returns a guard error carrying reason as its message.
func NewInvalidState(reason string) error { return &stateError{reason: reason} }

var (
	ErrOnlyDraftApprovable    = &stateError{"only draft invoices can be approved"}
	ErrPaidNotCancellable     = &stateError{"paid invoices cannot be cancelled"}
	ErrAlreadyCancelled       = &stateError{"invoice is already cancelled"}
	ErrItemsLocked            = &stateError{"cannot modify items of an approved/paid invoice"}
	ErrUpdateLocked           = &stateError{"cannot update an approved/paid invoice"}
	ErrDeleteLocked           = &stateError{"cannot delete an approved/paid invoice"}
	ErrCancelledInvoiceLocked = &stateError{"cancelled invoices cannot be modified"}
	ErrDeleteHasPayments      = &stateError{"cannot delete an invoice with recorded payments"}
	ErrCustomerHasPayments    = &stateError{"cannot change the customer of an invoice with recorded payments"}
	ErrCurrencyHasPayments    = &stateError{"cannot change the currency of an invoice with recorded payments"}
)

var (
	ErrInvoiceNotFound  = NewNotFound("invoice_not_found")
	ErrItemNotFound     = NewNotFound("invoice_item_not_found")
	ErrCustomerNotFound = NewNotFound("customer_not_found")
	ErrProductNotFound  = NewNotFound("product_not_found")
)

var (
	ErrInvalidInvoiceID        = NewValidation("invalid_invoice_id")
	ErrInvalidItemID           = NewValidation("invalid_item_id")
	ErrInvalidInvoiceType      = NewValidation("invalid_invoice_type")
	ErrInvalidCustomer         = NewValidation("invalid_customer")
	ErrInvalidProduct          = NewValidation("invalid_product")
	ErrInvalidCurrency         = NewValidation("invalid_currency")
	ErrInvalidExchangeRate     = NewValidation("invalid_exchange_rate")
	ErrInvalidDueDate          = NewValidation("invalid_due_date")
	ErrInvalidQuantity         = NewValidation("invalid_quantity")
	ErrInvalidUnitPrice        = NewValidation("invalid_unit_price")
	ErrInvalidDiscountRate     = NewValidation("invalid_discount_rate")
	ErrInvalidTaxRate          = NewValidation("invalid_tax_rate")
	ErrAmountPrecision         = NewValidation("invalid_amount_precision")
	ErrInvalidInvoiceNumber    = NewValidation("invalid_invoice_number")
	ErrInvalidPageToken        = NewValidation("invalid_page_token")
	ErrDuplicateInvoiceNumber  = NewValidation("duplicate_invoice_number")
	ErrNumberAllocationFailure = &classified{code: "invoice_number_allocation_failed", class: ErrTransactionFailure}
	ErrConcurrentUpdate        = &classified{code: "concurrent_update", class: ErrTransactionFailure}
)

// TransactionError wraps a storage failure that rolled the operation back.
type TransactionError struct{ Err error }

func (e *TransactionError) Error() string        { return "transaction_failure: " + e.Err.Error() }
func (e *TransactionError) Unwrap() error        { return e.Err }
func (e *TransactionError) Is(target error) bool { return target == ErrTransactionFailure }

// WrapStorage classifies a raw storage error. Errors that already belong to a
// class are returned unchanged.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	for _, class := range []error{ErrNotFound, ErrInvalidState, ErrValidation, ErrTransactionFailure} {
		if errors.Is(err, class) {
			return err
		}
	}
	return &TransactionError{Err: err}
}

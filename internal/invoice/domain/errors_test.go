package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	assert.ErrorIs(t, ErrInvoiceNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrInvalidQuantity, ErrValidation)
	assert.ErrorIs(t, ErrConcurrentUpdate, ErrTransactionFailure)
	assert.ErrorIs(t, fmt.Errorf("approve: %w", ErrOnlyDraftApprovable), ErrInvalidState)
	assert.NotErrorIs(t, ErrInvoiceNotFound, ErrValidation)
}

func TestWrapStorage(t *testing.T) {
	assert.Nil(t, WrapStorage(nil))
	assert.Same(t, ErrItemNotFound, WrapStorage(ErrItemNotFound))

	raw := errors.New("disk I/O error")
	wrapped := WrapStorage(raw)
	assert.ErrorIs(t, wrapped, ErrTransactionFailure)
	assert.ErrorIs(t, wrapped, raw)
}

package metrics

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"gorm.io/gorm"
)

// Operation outcomes.
const (
	OutcomeOK                 = "ok"
	OutcomeNotFound           = "not_found"
	OutcomeInvalidState       = "invalid_state"
	OutcomeValidation         = "validation_error"
	OutcomeTransactionFailure = "transaction_failure"
)

// Transaction failure reasons.
const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonConcurrentUpdate     = "concurrent_update"
	ReasonUnknown              = "unknown"
)

// ClassifyOutcome maps a service error onto its error class.
func ClassifyOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, invoicedomain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, invoicedomain.ErrInvalidState):
		return OutcomeInvalidState
	case errors.Is(err, invoicedomain.ErrValidation):
		return OutcomeValidation
	default:
		return OutcomeTransactionFailure
	}
}

// ClassifyTxReason maps a transaction failure to a low-cardinality reason.
func ClassifyTxReason(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case errors.Is(err, invoicedomain.ErrConcurrentUpdate):
		return ReasonConcurrentUpdate
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505"):
		return ReasonUniqueViolation
	default:
		return ReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

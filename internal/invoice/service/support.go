package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/auditcontext"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/observability/metrics"
	"github.com/smallbiznis/bizledger/internal/observability/tracing"
	"github.com/smallbiznis/bizledger/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	hundred = decimal.NewFromInt(100)
	tracer  = otel.Tracer("bizledger/invoice")
)

// begin opens the span of a mutating operation. The returned func records the
// outcome and must be deferred.
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "invoice."+operation)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, metrics.ClassifyOutcome(err))
			if metrics.ClassifyOutcome(err) == metrics.OutcomeTransactionFailure {
				s.log.Error("invoice operation failed", zap.String("operation", operation), zap.Error(err))
			}
		}
		span.End()
		s.ledgerMetrics.ObserveOperation(operation, start, err)
	}
}

// emit records the audit entry and publishes the ledger event of a committed change.
func (s *Service) emit(ctx context.Context, eventType, action string, inv *invoicedomain.Invoice, extra map[string]any) {
	if inv == nil {
		return
	}

	metadata := map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"invoice_type":   string(inv.InvoiceType),
		"customer_id":    inv.CustomerID.String(),
		"status":         string(inv.Status),
		"payment_status": string(inv.PaymentStatus),
		"currency":       inv.Currency,
		"subtotal":       inv.Subtotal.String(),
		"tax_amount":     inv.TaxAmount.String(),
		"total_amount":   inv.TotalAmount.String(),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := inv.ID.String()
	if s.auditSvc != nil {
		if err := s.auditSvc.AuditLog(ctx, nil, action, "invoice", &targetID, metadata); err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		}
	}
	events.Emit(ctx, s.events, s.log, events.New(ctx, eventType, targetID, s.clock.Now(), metadata))
}

func validateAmounts(quantity, unitPrice, discountRate, taxRate *decimal.Decimal) error {
	if quantity != nil && quantity.IsNegative() {
		return invoicedomain.ErrInvalidQuantity
	}
	if unitPrice != nil && unitPrice.IsNegative() {
		return invoicedomain.ErrInvalidUnitPrice
	}
	if discountRate != nil && !isRate(*discountRate) {
		return invoicedomain.ErrInvalidDiscountRate
	}
	if taxRate != nil && !isRate(*taxRate) {
		return invoicedomain.ErrInvalidTaxRate
	}
	// Inputs are stored as given; line totals are computed from them, so
	// anything finer than the storage scale is refused instead of rounded.
	for _, d := range []*decimal.Decimal{quantity, unitPrice, discountRate, taxRate} {
		if d != nil && !money.FitsScale(*d) {
			return invoicedomain.ErrAmountPrecision
		}
	}
	return nil
}

func isRate(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}

func validateUpdate(req invoicedomain.UpdateInvoiceRequest) error {
	if req.Currency != nil {
		if _, err := normalizeCurrency(*req.Currency); err != nil {
			return err
		}
	}
	if req.ExchangeRate != nil && !req.ExchangeRate.IsPositive() {
		return invoicedomain.ErrInvalidExchangeRate
	}
	return nil
}

// normalizeCurrency upper-cases a three letter code. Empty input is allowed
// and means "use the default".
func normalizeCurrency(raw string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		return "", nil
	}
	if len(currency) != 3 {
		return "", invoicedomain.ErrInvalidCurrency
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", invoicedomain.ErrInvalidCurrency
		}
	}
	return currency, nil
}

func actorFromContext(ctx context.Context) string {
	return strings.TrimSpace(auditcontext.ActorIDFromContext(ctx))
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

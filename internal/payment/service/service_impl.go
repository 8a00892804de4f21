package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bizledger/internal/audit/domain"
	"github.com/smallbiznis/bizledger/internal/auditcontext"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/config"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/invoice/numbering"
	"github.com/smallbiznis/bizledger/internal/observability/metrics"
	"github.com/smallbiznis/bizledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	"github.com/smallbiznis/bizledger/pkg/db"
	"github.com/smallbiznis/bizledger/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("bizledger/payment")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Ledger      *config.LedgerConfigHolder
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Numbers     *numbering.Allocator

	AuditSvc      auditdomain.Service    `optional:"true"`
	Events        events.Publisher       `optional:"true"`
	Metrics       *metrics.Metrics       `optional:"true"`
	LedgerMetrics *metrics.LedgerMetrics `optional:"true"`
}

// Service records payments and keeps the payment status of invoices in
// step with their payment history.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	ledger      *config.LedgerConfigHolder
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	numbers     *numbering.Allocator

	auditSvc      auditdomain.Service
	events        events.Publisher
	metrics       *metrics.Metrics
	ledgerMetrics *metrics.LedgerMetrics
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		ledger:      p.Ledger,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		numbers:     p.Numbers,

		auditSvc:      p.AuditSvc,
		events:        p.Events,
		metrics:       p.Metrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// AddPayment records a payment and reconciles the invoice payment status in
// the same transaction.
func (s *Service) AddPayment(ctx context.Context, req paymentdomain.AddPaymentRequest) (recorded paymentdomain.Payment, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "payment.add_payment")
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, metrics.ClassifyOutcome(err))
		}
		span.End()
		s.ledgerMetrics.ObserveOperation("add_payment", start, err)
	}()

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return paymentdomain.Payment{}, invoicedomain.ErrInvalidInvoiceID
	}
	amount := req.Amount
	if !amount.IsPositive() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidAmount
	}
	if !money.FitsScale(amount) {
		return paymentdomain.Payment{}, invoicedomain.ErrAmountPrecision
	}
	method := paymentdomain.Method(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod))))
	if method == "" {
		method = paymentdomain.MethodOther
	}
	if !method.Valid() {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentMethod
	}
	reference := strings.TrimSpace(req.Reference)
	if len(reference) > 128 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidReference
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))

	if reference != "" {
		existing, err := s.replay(ctx, reference, invoiceID)
		if err != nil {
			return paymentdomain.Payment{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	paymentDate := s.clock.Now()
	if req.PaymentDate != nil && !req.PaymentDate.IsZero() {
		paymentDate = req.PaymentDate.UTC()
	}
	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		actorID = auditcontext.ActorIDFromContext(ctx)
	}

	prefix := s.ledger.Get().Numbering.PaymentPrefix
	attempts := s.ledger.Get().Numbering.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var inv invoicedomain.Invoice
	for attempt := 1; attempt <= attempts; attempt++ {
		number, nerr := s.numbers.NextNumber(ctx, prefix)
		if nerr != nil {
			return paymentdomain.Payment{}, fmt.Errorf("%w: %w", invoicedomain.ErrNumberAllocationFailure, nerr)
		}

		payment := paymentdomain.Payment{
			ID:            s.genID.Generate(),
			PaymentNumber: number,
			InvoiceID:     invoiceID,
			Amount:        amount,
			Currency:      currency,
			PaymentMethod: method,
			PaymentDate:   paymentDate,
			Notes:         strings.TrimSpace(req.Notes),
			CreatedBy:     actorID,
			Metadata:      req.Metadata,
			CreatedAt:     s.clock.Now(),
		}
		if reference != "" {
			payment.Reference = &reference
		}

		inv, err = s.record(ctx, &payment)
		if err == nil {
			recorded = payment
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			return paymentdomain.Payment{}, invoicedomain.WrapStorage(err)
		}
		if reference != "" {
			existing, rerr := s.replay(ctx, reference, invoiceID)
			if rerr != nil {
				return paymentdomain.Payment{}, rerr
			}
			if existing != nil {
				return *existing, nil
			}
		}
		s.log.Warn("payment number collided, retrying", zap.String("payment_number", number), zap.Int("attempt", attempt))
		s.ledgerMetrics.IncNumberRetry(prefix)
	}
	if err != nil {
		return paymentdomain.Payment{}, invoicedomain.ErrNumberAllocationFailure
	}

	s.metrics.RecordPayment(ctx, string(recorded.PaymentMethod), string(inv.PaymentStatus))
	s.emit(ctx, recorded, inv)
	return recorded, nil
}

func (s *Service) record(ctx context.Context, payment *paymentdomain.Payment) (invoicedomain.Invoice, error) {
	var reconciled invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.invoiceRepo.FindForUpdate(ctx, tx, payment.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		// Payments are accepted whatever the lifecycle status; historical
		// receipts against approved or cancelled invoices are still recorded.
		if payment.Currency == "" {
			payment.Currency = inv.Currency
		}
		if payment.Currency != inv.Currency {
			return paymentdomain.ErrCurrencyMismatch
		}
		payment.CustomerID = inv.CustomerID

		if err := s.repo.Insert(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.Reconcile(ctx, tx, inv); err != nil {
			return err
		}
		reconciled = *inv
		return nil
	})
	return reconciled, err
}

// replay returns the payment already recorded under reference, if any.
func (s *Service) replay(ctx context.Context, reference string, invoiceID snowflake.ID) (*paymentdomain.Payment, error) {
	existing, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.InvoiceID != invoiceID {
		return nil, paymentdomain.ErrReferenceConflict
	}
	return existing, nil
}

// Reconcile re-derives the payment status of inv from its full payment
// history and persists it when it changed. inv must be locked by tx. The
// lifecycle status is never touched.
func (s *Service) Reconcile(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) error {
	paid, err := s.repo.SumByInvoice(ctx, tx, inv.ID)
	if err != nil {
		return err
	}

	status := invoicedomain.DerivePaymentStatus(paid, inv.TotalAmount)
	if status == inv.PaymentStatus {
		return nil
	}

	s.log.Debug("payment status changed",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("from", string(inv.PaymentStatus)),
		zap.String("to", string(status)),
	)
	inv.PaymentStatus = status
	inv.UpdatedAt = s.clock.Now()
	return s.invoiceRepo.Update(ctx, tx, inv)
}

func (s *Service) GetByID(ctx context.Context, id string) (paymentdomain.Payment, error) {
	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidPaymentID
	}
	payment, err := s.repo.FindByID(ctx, s.db, paymentID)
	if err != nil {
		return paymentdomain.Payment{}, invoicedomain.WrapStorage(err)
	}
	if payment == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrPaymentNotFound
	}
	return *payment, nil
}

func (s *Service) ListByInvoice(ctx context.Context, invoiceID string) ([]paymentdomain.Payment, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	inv, err := s.invoiceRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	payments, err := s.repo.ListByInvoice(ctx, s.db, id)
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}
	return payments, nil
}

// Outstanding is the unpaid remainder of inv, never negative.
func Outstanding(total, paid decimal.Decimal) decimal.Decimal {
	remaining := money.Round4(total.Sub(paid))
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

func (s *Service) emit(ctx context.Context, payment paymentdomain.Payment, inv invoicedomain.Invoice) {
	metadata := map[string]any{
		"payment_number": payment.PaymentNumber,
		"invoice_id":     payment.InvoiceID.String(),
		"invoice_number": inv.InvoiceNumber,
		"amount":         payment.Amount.String(),
		"currency":       payment.Currency,
		"payment_method": string(payment.PaymentMethod),
		"payment_status": string(inv.PaymentStatus),
	}
	if payment.Reference != nil {
		metadata["reference"] = *payment.Reference
	}

	targetID := payment.ID.String()
	if s.auditSvc != nil {
		if err := s.auditSvc.AuditLog(ctx, nil, "payment.recorded", "payment", &targetID, metadata); err != nil {
			s.log.Warn("failed to write audit log", zap.String("action", "payment.recorded"), zap.Error(err))
		}
	}
	events.Emit(ctx, s.events, s.log, events.New(ctx, events.PaymentRecorded, targetID, s.clock.Now(), metadata))
}

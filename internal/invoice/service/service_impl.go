package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bizledger/internal/audit/domain"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/config"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/invoice/numbering"
	"github.com/smallbiznis/bizledger/internal/observability/metrics"
	productdomain "github.com/smallbiznis/bizledger/internal/product/domain"
	"github.com/smallbiznis/bizledger/pkg/db"
	"github.com/smallbiznis/bizledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCurrency = "USD"

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Ledger       *config.LedgerConfigHolder
	Repo         invoicedomain.Repository
	CustomerRepo customerdomain.Repository
	ProductRepo  productdomain.Repository
	Numbers      *numbering.Allocator

	Reconciler    invoicedomain.PaymentReconciler `optional:"true"`
	AuditSvc      auditdomain.Service             `optional:"true"`
	Events        events.Publisher                `optional:"true"`
	Metrics       *metrics.Metrics                `optional:"true"`
	LedgerMetrics *metrics.LedgerMetrics          `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	ledger       *config.LedgerConfigHolder
	repo         invoicedomain.Repository
	customerRepo customerdomain.Repository
	productRepo  productdomain.Repository
	numbers      *numbering.Allocator
	reconciler   invoicedomain.PaymentReconciler

	auditSvc      auditdomain.Service
	events        events.Publisher
	metrics       *metrics.Metrics
	ledgerMetrics *metrics.LedgerMetrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		ledger:       p.Ledger,
		repo:         p.Repo,
		customerRepo: p.CustomerRepo,
		productRepo:  p.ProductRepo,
		numbers:      p.Numbers,
		reconciler:   p.Reconciler,

		auditSvc:      p.AuditSvc,
		events:        p.Events,
		metrics:       p.Metrics,
		ledgerMetrics: p.LedgerMetrics,
	}
}

// createPlan is a validated create request.
type createPlan struct {
	invoiceType  invoicedomain.InvoiceType
	number       string
	customerID   snowflake.ID
	invoiceDate  time.Time
	dueDate      *time.Time
	currency     string
	exchangeRate decimal.Decimal
	notes        string
	metadata     map[string]any
	items        []itemPlan
	actorID      string
}

// CreateInvoice persists a draft invoice with its items. Generated numbers
// that collide at insert time are retried with a fresh allocation.
func (s *Service) CreateInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (created invoicedomain.Invoice, err error) {
	ctx, finish := s.begin(ctx, "create_invoice")
	defer func() { finish(err) }()

	plan, err := s.planCreate(ctx, req)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	prefix := s.prefixFor(plan.invoiceType)
	attempts := s.ledger.Get().Numbering.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		number := plan.number
		if number == "" {
			number, err = s.numbers.NextNumber(ctx, prefix)
			if err != nil {
				return invoicedomain.Invoice{}, fmt.Errorf("%w: %w", invoicedomain.ErrNumberAllocationFailure, err)
			}
		}

		created, err = s.createOnce(ctx, plan, number)
		if err == nil {
			break
		}
		if !db.IsDuplicateKeyErr(err) {
			return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
		}
		if plan.number != "" {
			return invoicedomain.Invoice{}, invoicedomain.ErrDuplicateInvoiceNumber
		}

		s.log.Warn("invoice number collided, retrying",
			zap.String("invoice_number", number),
			zap.Int("attempt", attempt),
		)
		s.ledgerMetrics.IncNumberRetry(prefix)
	}
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNumberAllocationFailure
	}

	s.metrics.RecordInvoiceCreated(ctx, string(created.InvoiceType))
	s.emit(ctx, events.InvoiceCreated, "invoice.created", &created, map[string]any{
		"item_count": len(created.Items),
	})
	return created, nil
}

func (s *Service) planCreate(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (createPlan, error) {
	invoiceType := invoicedomain.InvoiceType(strings.ToLower(strings.TrimSpace(string(req.InvoiceType))))
	if !invoiceType.Valid() {
		return createPlan{}, invoicedomain.ErrInvalidInvoiceType
	}

	customerID, err := parseID(req.CustomerID)
	if err != nil {
		return createPlan{}, invoicedomain.ErrInvalidCustomer
	}

	number := strings.TrimSpace(req.InvoiceNumber)
	if len(number) > 32 {
		return createPlan{}, invoicedomain.ErrInvalidInvoiceNumber
	}

	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return createPlan{}, err
	}

	exchangeRate := decimal.NewFromInt(1)
	if req.ExchangeRate != nil {
		if !req.ExchangeRate.IsPositive() {
			return createPlan{}, invoicedomain.ErrInvalidExchangeRate
		}
		exchangeRate = *req.ExchangeRate
	}

	invoiceDate := s.clock.Now()
	if req.InvoiceDate != nil && !req.InvoiceDate.IsZero() {
		invoiceDate = req.InvoiceDate.UTC()
	}

	var dueDate *time.Time
	if req.DueDate != nil && !req.DueDate.IsZero() {
		due := req.DueDate.UTC()
		if due.Before(startOfDay(invoiceDate)) {
			return createPlan{}, invoicedomain.ErrInvalidDueDate
		}
		dueDate = &due
	}

	items := make([]itemPlan, 0, len(req.Items))
	for _, in := range req.Items {
		item, err := planItem(in)
		if err != nil {
			return createPlan{}, err
		}
		items = append(items, item)
	}

	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		actorID = actorFromContext(ctx)
	}

	return createPlan{
		invoiceType:  invoiceType,
		number:       number,
		customerID:   customerID,
		invoiceDate:  invoiceDate,
		dueDate:      dueDate,
		currency:     currency,
		exchangeRate: exchangeRate,
		notes:        strings.TrimSpace(req.Notes),
		metadata:     req.Metadata,
		items:        items,
		actorID:      actorID,
	}, nil
}

func (s *Service) createOnce(ctx context.Context, plan createPlan, number string) (invoicedomain.Invoice, error) {
	var created invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customer, err := s.customerRepo.FindByID(ctx, tx, plan.customerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return invoicedomain.ErrCustomerNotFound
		}

		currency := plan.currency
		if currency == "" {
			currency = customer.Currency
		}
		if currency == "" {
			currency = defaultCurrency
		}

		dueDate := plan.dueDate
		if dueDate == nil {
			due := plan.invoiceDate.AddDate(0, 0, s.termsFor(customer))
			dueDate = &due
		}

		now := s.clock.Now()
		inv := invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			InvoiceNumber: number,
			InvoiceType:   plan.invoiceType,
			CustomerID:    customer.ID,
			InvoiceDate:   plan.invoiceDate,
			DueDate:       dueDate,
			Subtotal:      decimal.Zero,
			TaxAmount:     decimal.Zero,
			TotalAmount:   decimal.Zero,
			Currency:      currency,
			ExchangeRate:  plan.exchangeRate,
			Status:        invoicedomain.InvoiceStatusDraft,
			PaymentStatus: invoicedomain.PaymentStatusUnpaid,
			Notes:         plan.notes,
			CreatedBy:     plan.actorID,
			Version:       1,
			Metadata:      plan.metadata,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &inv); err != nil {
			return err
		}

		for i, item := range plan.items {
			if _, err := s.insertItem(ctx, tx, inv.ID, item, i, now); err != nil {
				return err
			}
		}

		if err := s.recalculate(ctx, tx, &inv); err != nil {
			return err
		}
		created = inv
		return nil
	})
	return created, err
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}

	inv, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}
	if inv == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, inv.ID)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}
	inv.Items = items
	return *inv, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	limit := req.Limit()
	filter := invoicedomain.ListFilter{
		InvoiceType:   req.InvoiceType,
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		Limit:         limit + 1,
	}
	if strings.TrimSpace(req.CustomerID) != "" {
		customerID, err := parseID(req.CustomerID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidCustomer
		}
		filter.CustomerID = customerID
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		before, err := parseID(cursor.ID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		filter.BeforeID = before
	}

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.WrapStorage(err)
	}

	invoices, pageInfo, err := pagination.Page(rows, limit, func(inv invoicedomain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: inv.ID.String()}
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

// UpdateInvoice patches header fields of a mutable invoice.
func (s *Service) UpdateInvoice(ctx context.Context, id string, req invoicedomain.UpdateInvoiceRequest) (updated invoicedomain.Invoice, err error) {
	ctx, finish := s.begin(ctx, "update_invoice")
	defer func() { finish(err) }()

	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceID
	}
	if err := validateUpdate(req); err != nil {
		return invoicedomain.Invoice{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoicedomain.EnsureMutable(*inv, invoicedomain.MutationUpdate); err != nil {
			return err
		}

		if req.CustomerID != nil {
			customerID, err := parseID(*req.CustomerID)
			if err != nil {
				return invoicedomain.ErrInvalidCustomer
			}
			customer, err := s.customerRepo.FindByID(ctx, tx, customerID)
			if err != nil {
				return err
			}
			if customer == nil {
				return invoicedomain.ErrCustomerNotFound
			}
			// Payments carry the invoice's customer and currency.
			if customer.ID != inv.CustomerID && inv.PaymentStatus != invoicedomain.PaymentStatusUnpaid {
				return invoicedomain.ErrCustomerHasPayments
			}
			inv.CustomerID = customer.ID
		}
		if req.InvoiceDate != nil {
			inv.InvoiceDate = req.InvoiceDate.UTC()
		}
		if req.DueDate != nil {
			due := req.DueDate.UTC()
			inv.DueDate = &due
		}
		if inv.DueDate != nil && inv.DueDate.Before(startOfDay(inv.InvoiceDate)) {
			return invoicedomain.ErrInvalidDueDate
		}
		if req.Currency != nil {
			currency, _ := normalizeCurrency(*req.Currency)
			if currency != "" && currency != inv.Currency && inv.PaymentStatus != invoicedomain.PaymentStatusUnpaid {
				return invoicedomain.ErrCurrencyHasPayments
			}
			if currency != "" {
				inv.Currency = currency
			}
		}
		if req.ExchangeRate != nil {
			inv.ExchangeRate = *req.ExchangeRate
		}
		if req.Notes != nil {
			inv.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.Metadata != nil {
			inv.Metadata = req.Metadata
		}

		inv.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, inv); err != nil {
			return err
		}

		items, err := s.repo.ListItems(ctx, tx, inv.ID)
		if err != nil {
			return err
		}
		inv.Items = items
		updated = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.WrapStorage(err)
	}

	s.emit(ctx, events.InvoiceUpdated, "invoice.updated", &updated, nil)
	return updated, nil
}

// DeleteInvoice removes a mutable invoice together with its items.
func (s *Service) DeleteInvoice(ctx context.Context, id string) (err error) {
	ctx, finish := s.begin(ctx, "delete_invoice")
	defer func() { finish(err) }()

	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.ErrInvalidInvoiceID
	}

	var deleted invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoicedomain.EnsureMutable(*inv, invoicedomain.MutationDelete); err != nil {
			return err
		}
		if inv.PaymentStatus != invoicedomain.PaymentStatusUnpaid {
			return invoicedomain.ErrDeleteHasPayments
		}
		if err := s.repo.Delete(ctx, tx, inv.ID); err != nil {
			return err
		}
		deleted = *inv
		return nil
	})
	if err != nil {
		return invoicedomain.WrapStorage(err)
	}

	s.emit(ctx, events.InvoiceDeleted, "invoice.deleted", &deleted, nil)
	return nil
}

// ListOverdueInvoices returns open invoices whose due date lies before today.
func (s *Service) ListOverdueInvoices(ctx context.Context) ([]invoicedomain.Invoice, error) {
	items, err := s.repo.ListOverdue(ctx, s.db, startOfDay(s.clock.Now()))
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}
	return items, nil
}

// lockInvoice loads the invoice under a row lock for the rest of tx.
func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	inv, err := s.repo.FindForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return inv, nil
}

func (s *Service) prefixFor(t invoicedomain.InvoiceType) string {
	n := s.ledger.Get().Numbering
	if t == invoicedomain.InvoiceTypePurchase {
		return n.PurchasePrefix
	}
	return n.SalesPrefix
}

// termsFor prefers the customer's payment terms and falls back to the ledger default.
func (s *Service) termsFor(customer *customerdomain.Customer) int {
	if customer != nil && customer.PaymentTermsDays > 0 {
		return customer.PaymentTermsDays
	}
	return s.ledger.Get().Payment.DefaultTermsDays
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/config"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	customerrepo "github.com/smallbiznis/bizledger/internal/customer/repository"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/invoice/numbering"
	"github.com/smallbiznis/bizledger/internal/invoice/repository"
	"github.com/smallbiznis/bizledger/internal/observability/metrics"
	productdomain "github.com/smallbiznis/bizledger/internal/product/domain"
	productrepo "github.com/smallbiznis/bizledger/internal/product/repository"
	"github.com/smallbiznis/bizledger/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingReconciler struct {
	mu    sync.Mutex
	calls []snowflake.ID
}

func (r *recordingReconciler) Reconcile(_ context.Context, _ *gorm.DB, inv *invoicedomain.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, inv.ID)
	return nil
}

func (r *recordingReconciler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fixture struct {
	db         *gorm.DB
	node       *snowflake.Node
	clk        *clock.FakeClock
	svc        invoicedomain.Service
	events     *events.MemoryPublisher
	reconciler *recordingReconciler
	registry   *prometheus.Registry
	customer   customerdomain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewDB(t,
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&numbering.Sequence{},
		&customerdomain.Customer{},
		&productdomain.Product{},
	)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	ledger := config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig())

	f := &fixture{
		db:         db,
		node:       node,
		clk:        clk,
		events:     &events.MemoryPublisher{},
		reconciler: &recordingReconciler{},
		registry:   prometheus.NewRegistry(),
	}

	f.svc = NewService(ServiceParam{
		DB:           db,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Ledger:       ledger,
		Repo:         repository.Provide(),
		CustomerRepo: customerrepo.Provide(),
		ProductRepo:  productrepo.Provide(),
		Numbers: numbering.NewAllocator(numbering.Params{
			DB:     db,
			Log:    zap.NewNop(),
			Clock:  clk,
			Ledger: ledger,
		}),
		Reconciler:    f.reconciler,
		Events:        f.events,
		LedgerMetrics: metrics.NewLedgerMetrics(f.registry),
	})

	f.customer = f.seedCustomer(t, "EUR", 14)
	return f
}

func (f *fixture) seedCustomer(t *testing.T, currency string, terms int) customerdomain.Customer {
	t.Helper()
	now := f.clk.Now()
	c := customerdomain.Customer{
		ID:               f.node.Generate(),
		Name:             "Acme Trading",
		Email:            "billing@acme.test",
		Currency:         currency,
		PaymentTermsDays: terms,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, customerrepo.Provide().Insert(context.Background(), f.db, &c))
	return c
}

func (f *fixture) seedProduct(t *testing.T, name, price, taxRate string, active bool) productdomain.Product {
	t.Helper()
	now := f.clk.Now()
	p := productdomain.Product{
		ID:        f.node.Generate(),
		Code:      "SKU-" + f.node.Generate().String(),
		Name:      name,
		UnitPrice: dec(price),
		TaxRate:   dec(taxRate),
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, productrepo.Provide().Create(context.Background(), f.db, &p))
	return p
}

// workedExample is the two line invoice whose totals are 230 / 46 / 276.
func (f *fixture) workedExample() invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{
		InvoiceType: invoicedomain.InvoiceTypeSales,
		CustomerID:  f.customer.ID.String(),
		Items: []invoicedomain.ItemInput{
			{Description: "Consulting", Quantity: dec("2"), UnitPrice: decPtr("100"), DiscountRate: dec("10"), TaxRate: decPtr("20")},
			{Description: "Support", Quantity: dec("1"), UnitPrice: decPtr("50"), DiscountRate: dec("0"), TaxRate: decPtr("20")},
		},
	}
}

func (f *fixture) create(t *testing.T, req invoicedomain.CreateInvoiceRequest) invoicedomain.Invoice {
	t.Helper()
	inv, err := f.svc.CreateInvoice(context.Background(), req)
	require.NoError(t, err)
	return inv
}

func (f *fixture) setPaymentStatus(t *testing.T, id snowflake.ID, status invoicedomain.PaymentStatus) {
	t.Helper()
	require.NoError(t, f.db.Exec(`UPDATE invoices SET payment_status = ? WHERE id = ?`, status, id).Error)
}

// requireConsistentTotals recomputes the totals from the stored items and
// compares them with the stored invoice.
func (f *fixture) requireConsistentTotals(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	t.Helper()
	inv, err := f.svc.GetByID(context.Background(), id.String())
	require.NoError(t, err)

	want := invoicedomain.Aggregate(inv.Items)
	require.True(t, want.Matches(inv), "stored totals %s/%s/%s, items give %s/%s/%s",
		inv.Subtotal, inv.TaxAmount, inv.TotalAmount, want.Subtotal, want.TaxAmount, want.TotalAmount)
	require.True(t, inv.TotalAmount.Equal(inv.Subtotal.Add(inv.TaxAmount).Round(4)))
	return inv
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func strPtr(v string) *string { return &v }

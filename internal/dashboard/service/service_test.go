package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bizledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/bizledger/internal/audit/repository"
	"github.com/smallbiznis/bizledger/internal/clock"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	customerrepo "github.com/smallbiznis/bizledger/internal/customer/repository"
	dashboarddomain "github.com/smallbiznis/bizledger/internal/dashboard/domain"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/bizledger/internal/invoice/repository"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/bizledger/internal/payment/repository"
	"github.com/smallbiznis/bizledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type seeder struct {
	t    *testing.T
	db   *gorm.DB
	node *snowflake.Node
	seq  int
}

func (s *seeder) customer(name string) customerdomain.Customer {
	c := customerdomain.Customer{
		ID:        s.node.Generate(),
		Name:      name,
		Email:     "ap@example.test",
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(s.t, customerrepo.Provide().Insert(context.Background(), s.db, &c))
	return c
}

func (s *seeder) invoice(customer customerdomain.Customer, typ invoicedomain.InvoiceType, total string, status invoicedomain.InvoiceStatus, paymentStatus invoicedomain.PaymentStatus, due time.Time) invoicedomain.Invoice {
	s.seq++
	amount := decimal.RequireFromString(total)
	inv := invoicedomain.Invoice{
		ID:            s.node.Generate(),
		InvoiceNumber: "INV2026" + decimal.NewFromInt(int64(100000+s.seq)).String(),
		InvoiceType:   typ,
		CustomerID:    customer.ID,
		InvoiceDate:   now.AddDate(0, -1, 0),
		DueDate:       &due,
		Subtotal:      amount,
		TaxAmount:     decimal.Zero,
		TotalAmount:   amount,
		Currency:      "USD",
		ExchangeRate:  decimal.NewFromInt(1),
		Status:        status,
		PaymentStatus: paymentStatus,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(s.t, invoicerepo.Provide().Insert(context.Background(), s.db, &inv))
	return inv
}

func (s *seeder) payment(inv invoicedomain.Invoice, amount string) {
	s.seq++
	p := paymentdomain.Payment{
		ID:            s.node.Generate(),
		PaymentNumber: "PAY2026" + decimal.NewFromInt(int64(100000+s.seq)).String(),
		InvoiceID:     inv.ID,
		CustomerID:    inv.CustomerID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      inv.Currency,
		PaymentMethod: paymentdomain.MethodCash,
		PaymentDate:   now,
		CreatedAt:     now,
	}
	require.NoError(s.t, paymentrepo.Provide().Insert(context.Background(), s.db, &p))
}

type ledger struct {
	svc      dashboarddomain.Service
	acme     customerdomain.Customer
	beta     customerdomain.Customer
	zeta     customerdomain.Customer
	overdue  invoicedomain.Invoice
	partial  invoicedomain.Invoice
	overpaid invoicedomain.Invoice
}

func newLedger(t *testing.T) (*ledger, *seeder) {
	t.Helper()
	db := testutil.NewDB(t,
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&customerdomain.Customer{},
		&auditdomain.AuditLog{},
	)
	s := &seeder{t: t, db: db, node: testutil.NewNode(t)}

	l := &ledger{
		svc: NewService(Params{
			DB:    db,
			Log:   zap.NewNop(),
			Clock: clock.NewFakeClock(now),
		}),
	}
	l.acme = s.customer("Acme")
	l.beta = s.customer("Beta")
	l.zeta = s.customer("Zeta")

	l.overdue = s.invoice(l.acme, invoicedomain.InvoiceTypeSales, "276", invoicedomain.InvoiceStatusDraft, invoicedomain.PaymentStatusUnpaid, now.AddDate(0, 0, -14))
	l.partial = s.invoice(l.acme, invoicedomain.InvoiceTypeSales, "100", invoicedomain.InvoiceStatusApproved, invoicedomain.PaymentStatusPartial, now.AddDate(0, 0, 16))
	s.payment(l.partial, "40")
	l.overpaid = s.invoice(l.beta, invoicedomain.InvoiceTypeSales, "50", invoicedomain.InvoiceStatusApproved, invoicedomain.PaymentStatusPaid, now.AddDate(0, -1, 0))
	s.payment(l.overpaid, "60")
	s.invoice(l.beta, invoicedomain.InvoiceTypeSales, "80", invoicedomain.InvoiceStatusCancelled, invoicedomain.PaymentStatusUnpaid, now.AddDate(0, -1, 0))
	// Due at the start of today is not overdue yet.
	s.invoice(l.acme, invoicedomain.InvoiceTypePurchase, "30.5", invoicedomain.InvoiceStatusDraft, invoicedomain.PaymentStatusUnpaid, time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))

	return l, s
}

func requireAmount(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func TestSummary_SplitsByInvoiceType(t *testing.T) {
	l, _ := newLedger(t)

	summary, err := l.svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, summary.GeneratedAt)

	sales := summary.Sales
	assert.Equal(t, int64(4), sales.InvoiceCount)
	assert.Equal(t, map[string]int64{"draft": 1, "approved": 2, "cancelled": 1}, sales.ByStatus)
	assert.Equal(t, map[string]int64{"unpaid": 2, "partial": 1, "paid": 1}, sales.ByPaymentStatus)
	requireAmount(t, "426", sales.TotalInvoiced, "sales invoiced")
	requireAmount(t, "100", sales.TotalPaid, "sales paid")
	requireAmount(t, "336", sales.Outstanding, "sales outstanding")
	assert.Equal(t, int64(1), sales.OverdueCount)
	requireAmount(t, "276", sales.OverdueAmount, "sales overdue")

	purchase := summary.Purchase
	assert.Equal(t, int64(1), purchase.InvoiceCount)
	requireAmount(t, "30.5", purchase.TotalInvoiced, "purchase invoiced")
	requireAmount(t, "30.5", purchase.Outstanding, "purchase outstanding")
	assert.Zero(t, purchase.OverdueCount)
	assert.True(t, purchase.OverdueAmount.IsZero())
}

func TestSummary_EmptyLedger(t *testing.T) {
	db := testutil.NewDB(t, &invoicedomain.Invoice{}, &paymentdomain.Payment{})
	svc := NewService(Params{DB: db, Log: zap.NewNop(), Clock: clock.NewFakeClock(now)})

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Sales.InvoiceCount)
	assert.Equal(t, int64(0), summary.Sales.ByStatus["approved"])
	assert.True(t, summary.Purchase.Outstanding.IsZero())
}

func TestListCustomerBalances(t *testing.T) {
	l, _ := newLedger(t)

	resp, err := l.svc.ListCustomerBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Customers, 3)

	acme := resp.Customers[0]
	assert.Equal(t, "Acme", acme.Name)
	requireAmount(t, "376", acme.Invoiced, "acme invoiced")
	requireAmount(t, "336", acme.Balance, "acme balance")
	assert.Equal(t, "due", acme.PaymentStatus)
	assert.Equal(t, l.partial.ID.String(), acme.LastInvoiceID)

	beta := resp.Customers[1]
	requireAmount(t, "-10", beta.Balance, "beta balance")
	assert.Equal(t, "credit", beta.PaymentStatus)
	assert.Equal(t, l.overpaid.ID.String(), beta.LastInvoiceID)

	zeta := resp.Customers[2]
	assert.Equal(t, "settled", zeta.PaymentStatus)
	assert.Empty(t, zeta.LastInvoiceID)
	assert.Equal(t, "USD", zeta.Currency)
}

func TestListActivity(t *testing.T) {
	l, s := newLedger(t)
	repo := auditrepo.Provide()
	entries := []struct {
		action   string
		metadata map[string]any
	}{
		{"invoice.created", map[string]any{"invoice_number": "INV2026000001"}},
		{"invoice_item.added", map[string]any{"item_id": "1"}},
		{"invoice.approved", map[string]any{"invoice_number": "INV2026000001"}},
		{"payment.recorded", map[string]any{"invoice_number": "INV2026000001", "amount": "100", "currency": "USD"}},
		{"invoice.cancelled", map[string]any{}},
	}
	for i, e := range entries {
		require.NoError(t, repo.Insert(context.Background(), s.db, &auditdomain.AuditLog{
			ID:         s.node.Generate(),
			ActorType:  string(auditdomain.ActorTypeSystem),
			Action:     e.action,
			TargetType: "invoice",
			Metadata:   datatypes.JSONMap(e.metadata),
			CreatedAt:  now.Add(time.Duration(i) * time.Minute),
		}))
	}

	resp, err := l.svc.ListActivity(context.Background(), 0)
	require.NoError(t, err)

	messages := make([]string, 0, len(resp.Activity))
	for _, a := range resp.Activity {
		messages = append(messages, a.Message)
	}
	assert.Equal(t, []string{
		"Invoice cancelled",
		"Payment of 100.00 USD recorded for INV2026000001",
		"Invoice INV2026000001 approved",
		"Invoice INV2026000001 created",
	}, messages)

	limited, err := l.svc.ListActivity(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, limited.Activity, 1)
	assert.Equal(t, "invoice.cancelled", limited.Activity[0].Action)

	_, err = l.svc.ListActivity(context.Background(), 500)
	assert.ErrorIs(t, err, dashboarddomain.ErrInvalidLimit)
}

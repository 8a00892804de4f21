package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/clock"
	dashboarddomain "github.com/smallbiznis/bizledger/internal/dashboard/domain"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultActivityLimit = 15
	maxActivityLimit     = 100
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
}

func NewService(p Params) dashboarddomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("dashboard.service"),
		clock: p.Clock,
	}
}

type statusCountRow struct {
	InvoiceType   string `gorm:"column:invoice_type"`
	Status        string `gorm:"column:status"`
	PaymentStatus string `gorm:"column:payment_status"`
	InvoiceCount  int64  `gorm:"column:invoice_count"`
}

type openInvoiceRow struct {
	InvoiceType string          `gorm:"column:invoice_type"`
	TotalAmount decimal.Decimal `gorm:"column:total_amount"`
	Paid        decimal.Decimal `gorm:"column:paid"`
	Overdue     int64           `gorm:"column:overdue"`
}

// Summary aggregates counts and amounts per invoice type. Overdue follows the
// same rule as the overdue listing: due before today, not paid, not cancelled.
func (s *Service) Summary(ctx context.Context) (dashboarddomain.Summary, error) {
	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var counts []statusCountRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT invoice_type, status, payment_status, COUNT(*) AS invoice_count
		 FROM invoices
		 GROUP BY invoice_type, status, payment_status`,
	).Scan(&counts).Error; err != nil {
		return dashboarddomain.Summary{}, invoicedomain.WrapStorage(err)
	}

	var open []openInvoiceRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT i.invoice_type,
		        i.total_amount,
		        COALESCE(p.paid, 0) AS paid,
		        CASE WHEN i.due_date IS NOT NULL AND i.due_date < ? AND i.payment_status <> ? THEN 1 ELSE 0 END AS overdue
		 FROM invoices i
		 LEFT JOIN (
		 	SELECT invoice_id, SUM(amount) AS paid FROM payments GROUP BY invoice_id
		 ) p ON p.invoice_id = i.id
		 WHERE i.status <> ?`,
		today,
		invoicedomain.PaymentStatusPaid,
		invoicedomain.InvoiceStatusCancelled,
	).Scan(&open).Error; err != nil {
		return dashboarddomain.Summary{}, invoicedomain.WrapStorage(err)
	}

	byType := map[string]*dashboarddomain.TypeSummary{
		string(invoicedomain.InvoiceTypeSales):    newTypeSummary(),
		string(invoicedomain.InvoiceTypePurchase): newTypeSummary(),
	}

	for _, row := range counts {
		summary, ok := byType[row.InvoiceType]
		if !ok {
			continue
		}
		summary.InvoiceCount += row.InvoiceCount
		summary.ByStatus[row.Status] += row.InvoiceCount
		summary.ByPaymentStatus[row.PaymentStatus] += row.InvoiceCount
	}

	for _, row := range open {
		summary, ok := byType[row.InvoiceType]
		if !ok {
			continue
		}
		remaining := outstanding(row.TotalAmount, row.Paid)
		summary.TotalInvoiced = summary.TotalInvoiced.Add(row.TotalAmount)
		summary.TotalPaid = summary.TotalPaid.Add(row.Paid)
		summary.Outstanding = summary.Outstanding.Add(remaining)
		if row.Overdue == 1 {
			summary.OverdueCount++
			summary.OverdueAmount = summary.OverdueAmount.Add(remaining)
		}
	}

	return dashboarddomain.Summary{
		GeneratedAt: now,
		Sales:       finalize(byType[string(invoicedomain.InvoiceTypeSales)]),
		Purchase:    finalize(byType[string(invoicedomain.InvoiceTypePurchase)]),
	}, nil
}

func newTypeSummary() *dashboarddomain.TypeSummary {
	return &dashboarddomain.TypeSummary{
		ByStatus: map[string]int64{
			string(invoicedomain.InvoiceStatusDraft):     0,
			string(invoicedomain.InvoiceStatusApproved):  0,
			string(invoicedomain.InvoiceStatusCancelled): 0,
		},
		ByPaymentStatus: map[string]int64{
			string(invoicedomain.PaymentStatusUnpaid):  0,
			string(invoicedomain.PaymentStatusPartial): 0,
			string(invoicedomain.PaymentStatusPaid):    0,
		},
		TotalInvoiced: decimal.Zero,
		TotalPaid:     decimal.Zero,
		Outstanding:   decimal.Zero,
		OverdueAmount: decimal.Zero,
	}
}

func finalize(s *dashboarddomain.TypeSummary) dashboarddomain.TypeSummary {
	s.TotalInvoiced = money.Round4(s.TotalInvoiced)
	s.TotalPaid = money.Round4(s.TotalPaid)
	s.Outstanding = money.Round4(s.Outstanding)
	s.OverdueAmount = money.Round4(s.OverdueAmount)
	return *s
}

func outstanding(total, paid decimal.Decimal) decimal.Decimal {
	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

type customerBalanceRow struct {
	CustomerID    snowflake.ID    `gorm:"column:customer_id"`
	Name          string          `gorm:"column:name"`
	Currency      string          `gorm:"column:currency"`
	Invoiced      decimal.Decimal `gorm:"column:invoiced"`
	Paid          decimal.Decimal `gorm:"column:paid"`
	LastInvoiceID *snowflake.ID   `gorm:"column:last_invoice_id"`
}

// ListCustomerBalances reports every customer's position across non-cancelled
// sales invoices.
func (s *Service) ListCustomerBalances(ctx context.Context) (dashboarddomain.CustomerBalancesResponse, error) {
	var rows []customerBalanceRow
	query := `
		SELECT c.id AS customer_id,
		       c.name AS name,
		       COALESCE(c.currency, '') AS currency,
		       COALESCE(SUM(i.total_amount), 0) AS invoiced,
		       COALESCE(SUM(p.paid), 0) AS paid,
		       MAX(i.id) AS last_invoice_id
		FROM customers c
		LEFT JOIN invoices i
		       ON i.customer_id = c.id AND i.invoice_type = ? AND i.status <> ?
		LEFT JOIN (
			SELECT invoice_id, SUM(amount) AS paid FROM payments GROUP BY invoice_id
		) p ON p.invoice_id = i.id
		GROUP BY c.id, c.name, c.currency
		ORDER BY c.name ASC, c.id ASC`

	if err := s.db.WithContext(ctx).Raw(
		query,
		invoicedomain.InvoiceTypeSales,
		invoicedomain.InvoiceStatusCancelled,
	).Scan(&rows).Error; err != nil {
		return dashboarddomain.CustomerBalancesResponse{}, invoicedomain.WrapStorage(err)
	}

	customers := make([]dashboarddomain.CustomerBalance, 0, len(rows))
	for _, row := range rows {
		invoiced := money.Round4(row.Invoiced)
		paid := money.Round4(row.Paid)
		balance := invoiced.Sub(paid)

		paymentStatus := "settled"
		switch {
		case balance.IsPositive():
			paymentStatus = "due"
		case balance.IsNegative():
			paymentStatus = "credit"
		}

		lastInvoiceID := ""
		if row.LastInvoiceID != nil && *row.LastInvoiceID != 0 {
			lastInvoiceID = row.LastInvoiceID.String()
		}

		customers = append(customers, dashboarddomain.CustomerBalance{
			CustomerID:    row.CustomerID.String(),
			Name:          row.Name,
			Currency:      strings.ToUpper(strings.TrimSpace(row.Currency)),
			Invoiced:      invoiced,
			Paid:          paid,
			Balance:       balance,
			LastInvoiceID: lastInvoiceID,
			PaymentStatus: paymentStatus,
		})
	}

	return dashboarddomain.CustomerBalancesResponse{Customers: customers}, nil
}

type activityRow struct {
	Action    string            `gorm:"column:action"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt time.Time         `gorm:"column:created_at"`
}

var activityActions = []string{
	"invoice.created",
	"invoice.approved",
	"invoice.cancelled",
	"invoice.deleted",
	"payment.recorded",
}

// ListActivity turns the most recent audit entries into readable messages.
func (s *Service) ListActivity(ctx context.Context, limit int) (dashboarddomain.ActivityResponse, error) {
	if limit < 0 || limit > maxActivityLimit {
		return dashboarddomain.ActivityResponse{}, dashboarddomain.ErrInvalidLimit
	}
	if limit == 0 {
		limit = defaultActivityLimit
	}

	var rows []activityRow
	if err := s.db.WithContext(ctx).Raw(
		`SELECT action, metadata, created_at
		 FROM audit_logs
		 WHERE action IN ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		activityActions,
		limit,
	).Scan(&rows).Error; err != nil {
		return dashboarddomain.ActivityResponse{}, invoicedomain.WrapStorage(err)
	}

	activity := make([]dashboarddomain.Activity, 0, len(rows))
	for _, row := range rows {
		message := buildActivityMessage(row.Action, row.Metadata)
		if message == "" {
			continue
		}
		activity = append(activity, dashboarddomain.Activity{
			Action:     row.Action,
			Message:    message,
			OccurredAt: row.CreatedAt,
		})
	}

	return dashboarddomain.ActivityResponse{Activity: activity}, nil
}

func buildActivityMessage(action string, metadata datatypes.JSONMap) string {
	switch strings.TrimSpace(action) {
	case "invoice.created":
		return formatInvoiceMessage("created", metadata)
	case "invoice.approved":
		return formatInvoiceMessage("approved", metadata)
	case "invoice.cancelled":
		return formatInvoiceMessage("cancelled", metadata)
	case "invoice.deleted":
		return formatInvoiceMessage("deleted", metadata)
	case "payment.recorded":
		amount := formatAmount(metadata)
		label := metadataString(metadata, "invoice_number")
		switch {
		case amount != "" && label != "":
			return fmt.Sprintf("Payment of %s recorded for %s", amount, label)
		case amount != "":
			return fmt.Sprintf("Payment of %s recorded", amount)
		}
		return "Payment recorded"
	default:
		return ""
	}
}

func formatInvoiceMessage(verb string, metadata datatypes.JSONMap) string {
	label := metadataString(metadata, "invoice_number")
	if label == "" {
		return fmt.Sprintf("Invoice %s", verb)
	}
	return fmt.Sprintf("Invoice %s %s", label, verb)
}

func formatAmount(metadata datatypes.JSONMap) string {
	value, ok := metadata["amount"]
	if !ok {
		return ""
	}
	amount := money.Format(money.Coerce(value))
	if currency := metadataString(metadata, "currency"); currency != "" {
		return amount + " " + currency
	}
	return amount
}

func metadataString(metadata datatypes.JSONMap, key string) string {
	if value, ok := metadata[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

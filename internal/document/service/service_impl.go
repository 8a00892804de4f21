package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/internal/clock"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	documentdomain "github.com/smallbiznis/bizledger/internal/document/domain"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	"github.com/smallbiznis/bizledger/internal/providers/pdf"
	"github.com/smallbiznis/bizledger/internal/providers/storage"
	"github.com/smallbiznis/bizledger/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dateLayout     = "2006-01-02"
	pdfContentType = "application/pdf"
)

var tracer = otel.Tracer("bizledger/document")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	InvoiceRepo  invoicedomain.Repository
	CustomerRepo customerdomain.Repository
	PaymentRepo  paymentdomain.Repository
	Renderer     pdf.Renderer
	Archiver     storage.Archiver `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	invoiceRepo  invoicedomain.Repository
	customerRepo customerdomain.Repository
	paymentRepo  paymentdomain.Repository
	renderer     pdf.Renderer
	archiver     storage.Archiver
}

func New(p Params) documentdomain.Service {
	archiver := p.Archiver
	if archiver == nil {
		archiver = storage.NoOpArchiver{}
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("document.service"),
		clock:        p.Clock,
		invoiceRepo:  p.InvoiceRepo,
		customerRepo: p.CustomerRepo,
		paymentRepo:  p.PaymentRepo,
		renderer:     p.Renderer,
		archiver:     archiver,
	}
}

type invoiceGraph struct {
	invoice  invoicedomain.Invoice
	customer customerdomain.Customer
	items    []invoicedomain.InvoiceItem
	payments []paymentdomain.Payment
}

func (s *Service) load(ctx context.Context, invoiceID snowflake.ID) (*invoiceGraph, error) {
	inv, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	customer, err := s.customerRepo.FindByID(ctx, s.db, inv.CustomerID)
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}
	if customer == nil {
		return nil, invoicedomain.ErrCustomerNotFound
	}

	items, err := s.invoiceRepo.ListItems(ctx, s.db, inv.ID)
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}
	payments, err := s.paymentRepo.ListByInvoice(ctx, s.db, inv.ID)
	if err != nil {
		return nil, invoicedomain.WrapStorage(err)
	}

	return &invoiceGraph{invoice: *inv, customer: *customer, items: items, payments: payments}, nil
}

func (s *Service) GetInvoiceView(ctx context.Context, invoiceID string) (documentdomain.InvoiceView, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return documentdomain.InvoiceView{}, invoicedomain.ErrInvalidInvoiceID
	}
	graph, err := s.load(ctx, id)
	if err != nil {
		return documentdomain.InvoiceView{}, err
	}
	return s.buildView(graph), nil
}

func (s *Service) buildView(g *invoiceGraph) documentdomain.InvoiceView {
	inv := g.invoice

	lines := make([]documentdomain.LineView, 0, len(g.items))
	for i, item := range g.items {
		description := strings.TrimSpace(item.Description)
		if description == "" {
			description = fmt.Sprintf("Item %d", i+1)
		}
		lines = append(lines, documentdomain.LineView{
			Description:  description,
			Quantity:     item.Quantity.String(),
			UnitPrice:    money.Format(item.UnitPrice),
			DiscountRate: item.DiscountRate.String(),
			TaxRate:      item.TaxRate.String(),
			Amount:       money.Format(item.LineTotal),
		})
	}

	paid := decimal.Zero
	payments := make([]documentdomain.PaymentView, 0, len(g.payments))
	for _, p := range g.payments {
		paid = paid.Add(p.Amount)
		reference := ""
		if p.Reference != nil {
			reference = *p.Reference
		}
		payments = append(payments, documentdomain.PaymentView{
			PaymentNumber: p.PaymentNumber,
			PaymentDate:   p.PaymentDate.UTC().Format(dateLayout),
			Method:        string(p.PaymentMethod),
			Amount:        money.Format(p.Amount),
			Reference:     reference,
		})
	}
	paid = money.Round4(paid)

	due := money.Round4(inv.TotalAmount.Sub(paid))
	if due.IsNegative() {
		due = decimal.Zero
	}

	view := documentdomain.InvoiceView{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceType:   string(inv.InvoiceType),
		Status:        string(inv.Status),
		PaymentStatus: string(inv.PaymentStatus),
		IssueDate:     inv.InvoiceDate.UTC().Format(dateLayout),
		Overdue:       s.overdue(inv),
		Currency:      inv.Currency,
		BillToName:    g.customer.Name,
		BillToEmail:   g.customer.Email,
		Items:         lines,
		Payments:      payments,
		Subtotal:      money.Format(inv.Subtotal),
		TaxAmount:     money.Format(inv.TaxAmount),
		TotalAmount:   money.Format(inv.TotalAmount),
		AmountPaid:    money.Format(paid),
		AmountDue:     money.Format(due),
		Notes:         inv.Notes,
	}
	if inv.DueDate != nil {
		view.DueDate = inv.DueDate.UTC().Format(dateLayout)
	}
	return view
}

func (s *Service) overdue(inv invoicedomain.Invoice) bool {
	if inv.DueDate == nil {
		return false
	}
	if inv.Status == invoicedomain.InvoiceStatusCancelled || inv.PaymentStatus == invoicedomain.PaymentStatusPaid {
		return false
	}
	now := s.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return inv.DueDate.Before(today)
}

// RenderInvoicePDF renders the invoice and archives the file when an object
// store is configured. Archive failures are logged and do not fail the render.
func (s *Service) RenderInvoicePDF(ctx context.Context, invoiceID string) (doc documentdomain.Document, err error) {
	ctx, span := tracer.Start(ctx, "document.render_invoice")
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "render failed")
		}
		span.End()
	}()

	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil {
		return documentdomain.Document{}, invoicedomain.ErrInvalidInvoiceID
	}
	graph, err := s.load(ctx, id)
	if err != nil {
		return documentdomain.Document{}, err
	}
	view := s.buildView(graph)

	title := "Invoice"
	if graph.invoice.InvoiceType == invoicedomain.InvoiceTypePurchase {
		title = "Purchase Invoice"
	}
	if graph.invoice.Status == invoicedomain.InvoiceStatusCancelled {
		title += " (cancelled)"
	}

	lines := make([]pdf.InvoiceLine, 0, len(view.Items))
	for _, line := range view.Items {
		lines = append(lines, pdf.InvoiceLine(line))
	}

	content, err := s.renderer.RenderInvoice(ctx, pdf.InvoiceDocument{
		Title:         title,
		InvoiceNumber: view.InvoiceNumber,
		IssueDate:     view.IssueDate,
		DueDate:       view.DueDate,
		Status:        view.Status,
		PaymentStatus: view.PaymentStatus,
		Currency:      view.Currency,
		BillToName:    view.BillToName,
		BillToEmail:   view.BillToEmail,
		Lines:         lines,
		Subtotal:      view.Subtotal,
		TaxAmount:     view.TaxAmount,
		Total:         view.TotalAmount,
		Paid:          view.AmountPaid,
		AmountDue:     view.AmountDue,
		Notes:         view.Notes,
	})
	if err != nil {
		return documentdomain.Document{}, fmt.Errorf("render invoice %s: %w", view.InvoiceNumber, err)
	}

	doc = documentdomain.Document{
		Filename:    view.InvoiceNumber + ".pdf",
		ContentType: pdfContentType,
		Content:     content,
	}
	doc.Location = s.archive(ctx, storage.ObjectKey("invoices", view.InvoiceNumber, graph.invoice.InvoiceDate), content)
	return doc, nil
}

// RenderPaymentReceipt renders the receipt of a single payment.
func (s *Service) RenderPaymentReceipt(ctx context.Context, paymentID string) (doc documentdomain.Document, err error) {
	ctx, span := tracer.Start(ctx, "document.render_receipt")
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "render failed")
		}
		span.End()
	}()

	id, err := snowflake.ParseString(strings.TrimSpace(paymentID))
	if err != nil {
		return documentdomain.Document{}, paymentdomain.ErrInvalidPaymentID
	}
	payment, err := s.paymentRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return documentdomain.Document{}, invoicedomain.WrapStorage(err)
	}
	if payment == nil {
		return documentdomain.Document{}, paymentdomain.ErrPaymentNotFound
	}
	graph, err := s.load(ctx, payment.InvoiceID)
	if err != nil {
		return documentdomain.Document{}, err
	}
	view := s.buildView(graph)

	// Paid to date counts payments up to and including this one.
	paidToDate := decimal.Zero
	for _, p := range graph.payments {
		paidToDate = paidToDate.Add(p.Amount)
		if p.ID == payment.ID {
			break
		}
	}
	due := money.Round4(graph.invoice.TotalAmount.Sub(paidToDate))
	if due.IsNegative() {
		due = decimal.Zero
	}
	reference := ""
	if payment.Reference != nil {
		reference = *payment.Reference
	}

	content, err := s.renderer.RenderReceipt(ctx, pdf.ReceiptDocument{
		PaymentNumber: payment.PaymentNumber,
		InvoiceNumber: view.InvoiceNumber,
		DatePaid:      payment.PaymentDate.UTC().Format(dateLayout),
		Method:        string(payment.PaymentMethod),
		Reference:     reference,
		Currency:      payment.Currency,
		ReceivedFrom:  view.BillToName,
		Amount:        money.Format(payment.Amount),
		InvoiceTotal:  view.TotalAmount,
		TotalPaid:     money.Format(paidToDate),
		AmountDue:     money.Format(due),
		PaymentStatus: string(invoicedomain.DerivePaymentStatus(paidToDate, graph.invoice.TotalAmount)),
	})
	if err != nil {
		return documentdomain.Document{}, fmt.Errorf("render receipt %s: %w", payment.PaymentNumber, err)
	}

	doc = documentdomain.Document{
		Filename:    payment.PaymentNumber + ".pdf",
		ContentType: pdfContentType,
		Content:     content,
	}
	doc.Location = s.archive(ctx, storage.ObjectKey("receipts", payment.PaymentNumber, payment.PaymentDate), content)
	return doc, nil
}

func (s *Service) archive(ctx context.Context, key string, content []byte) string {
	location, err := s.archiver.Put(ctx, key, content, pdfContentType)
	if err != nil {
		s.log.Warn("document archive failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return location
}

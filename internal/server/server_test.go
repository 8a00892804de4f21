package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/bizledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/bizledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/bizledger/internal/audit/service"
	"github.com/smallbiznis/bizledger/internal/clock"
	"github.com/smallbiznis/bizledger/internal/config"
	customerdomain "github.com/smallbiznis/bizledger/internal/customer/domain"
	customerrepo "github.com/smallbiznis/bizledger/internal/customer/repository"
	customerservice "github.com/smallbiznis/bizledger/internal/customer/service"
	dashboarddomain "github.com/smallbiznis/bizledger/internal/dashboard/domain"
	dashboardservice "github.com/smallbiznis/bizledger/internal/dashboard/service"
	documentservice "github.com/smallbiznis/bizledger/internal/document/service"
	"github.com/smallbiznis/bizledger/internal/events"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/invoice/numbering"
	invoicerepo "github.com/smallbiznis/bizledger/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/bizledger/internal/invoice/service"
	"github.com/smallbiznis/bizledger/internal/observability"
	obsmetrics "github.com/smallbiznis/bizledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/bizledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/bizledger/internal/payment/service"
	productdomain "github.com/smallbiznis/bizledger/internal/product/domain"
	productrepo "github.com/smallbiznis/bizledger/internal/product/repository"
	productservice "github.com/smallbiznis/bizledger/internal/product/service"
	"github.com/smallbiznis/bizledger/internal/providers/pdf"
	"github.com/smallbiznis/bizledger/internal/providers/storage"
	"github.com/smallbiznis/bizledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t,
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&numbering.Sequence{},
		&customerdomain.Customer{},
		&productdomain.Product{},
		&auditdomain.AuditLog{},
	)
	node := testutil.NewNode(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	ledger := config.NewStaticLedgerConfigHolder(config.DefaultLedgerConfig())
	numbers := numbering.NewAllocator(numbering.Params{DB: db, Log: log, Clock: clk, Ledger: ledger})
	pub := &events.MemoryPublisher{}

	audits := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide()})
	payments := paymentservice.New(paymentservice.Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		Ledger:      ledger,
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invoicerepo.Provide(),
		Numbers:     numbers,
		AuditSvc:    audits,
		Events:      pub,
	})
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Ledger:       ledger,
		Repo:         invoicerepo.Provide(),
		CustomerRepo: customerrepo.Provide(),
		ProductRepo:  productrepo.Provide(),
		Numbers:      numbers,
		Reconciler:   payments,
		AuditSvc:     audits,
		Events:       pub,
	})

	engine := NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetrics(prometheus.NewRegistry()))
	return NewServer(ServerParams{
		Gin:          engine,
		Log:          log,
		InvoiceSvc:   invoices,
		PaymentSvc:   payments,
		CustomerSvc:  customerservice.New(customerservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: customerrepo.Provide()}),
		ProductSvc:   productservice.New(productservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: productrepo.Provide()}),
		AuditSvc:     audits,
		DashboardSvc: dashboardservice.NewService(dashboardservice.Params{DB: db, Log: log, Clock: clk}),
		DocumentSvc: documentservice.New(documentservice.Params{
			DB:           db,
			Log:          log,
			Clock:        clk,
			InvoiceRepo:  invoicerepo.Provide(),
			CustomerRepo: customerrepo.Provide(),
			PaymentRepo:  paymentrepo.Provide(),
			Renderer:     pdf.New("Bizledger"),
			Archiver:     storage.NoOpArchiver{},
		}),
	})
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor-Id", "user-7")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func createCustomer(t *testing.T, s *Server) customerdomain.Customer {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/customers", gin.H{
		"name":     "Initech",
		"email":    "ap@initech.test",
		"currency": "USD",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[customerdomain.Customer](t, rec)
}

// createWorkedExample posts the 230 / 46 / 276 invoice with loosely typed
// numbers: strings, floats and one non-numeric discount that coerces to zero.
func createWorkedExample(t *testing.T, s *Server, customerID string) invoicedomain.Invoice {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/invoices", gin.H{
		"invoice_type": "sales",
		"customer_id":  customerID,
		"due_date":     "2026-06-30",
		"items": []gin.H{
			{"description": "Consulting", "quantity": 2, "unit_price": "100", "discount_rate": 10, "tax_rate": 20},
			{"description": "Support", "quantity": "1", "unit_price": 50.0, "discount_rate": "n/a", "tax_rate": "20"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeData[invoicedomain.Invoice](t, rec)
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := createCustomer(t, s)

	inv := createWorkedExample(t, s, customer.ID.String())
	assert.Equal(t, "INV2026000001", inv.InvoiceNumber)
	assert.True(t, inv.Subtotal.Equal(decimal.NewFromInt(230)), inv.Subtotal.String())
	assert.True(t, inv.TaxAmount.Equal(decimal.NewFromInt(46)), inv.TaxAmount.String())
	assert.True(t, inv.TotalAmount.Equal(decimal.NewFromInt(276)), inv.TotalAmount.String())
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	require.Len(t, inv.Items, 2)

	path := "/api/invoices/" + inv.ID.String()

	rec := do(t, s, http.MethodPost, path+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, invoicedomain.InvoiceStatusApproved, decodeData[invoicedomain.Invoice](t, rec).Status)

	rec = do(t, s, http.MethodPost, path+"/items", gin.H{"description": "Late fee", "quantity": 1, "unit_price": 10})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "invalid_state", payload.Type)
	assert.Equal(t, "cannot modify items of an approved/paid invoice", payload.Message)

	rec = do(t, s, http.MethodPost, path+"/payments", gin.H{"amount": "100", "payment_method": "bank_transfer", "reference": "BANK-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decodeData[paymentdomain.Payment](t, rec)
	assert.Equal(t, "PAY2026000001", payment.PaymentNumber)

	rec = do(t, s, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[invoicedomain.Invoice](t, rec)
	assert.Equal(t, invoicedomain.PaymentStatusPartial, got.PaymentStatus)
	assert.Equal(t, invoicedomain.InvoiceStatusApproved, got.Status)

	rec = do(t, s, http.MethodGet, path+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]paymentdomain.Payment](t, rec), 1)

	rec = do(t, s, http.MethodGet, "/api/payments/"+payment.ID.String()+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = do(t, s, http.MethodGet, path+"/pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "INV2026000001.pdf")

	rec = do(t, s, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_state", decodeError(t, rec).Type)
}

func TestDraftItemsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := createCustomer(t, s)
	inv := createWorkedExample(t, s, customer.ID.String())
	path := "/api/invoices/" + inv.ID.String()

	rec := do(t, s, http.MethodPatch, path+"/items/"+inv.Items[0].ID.String(), gin.H{"discount_rate": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeData[invoicedomain.Invoice](t, rec)
	assert.True(t, updated.Subtotal.Equal(decimal.NewFromInt(250)), updated.Subtotal.String())
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(300)), updated.TotalAmount.String())

	rec = do(t, s, http.MethodDelete, path+"/items/"+inv.Items[1].ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated = decodeData[invoicedomain.Invoice](t, rec)
	require.Len(t, updated.Items, 1)
	assert.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(240)), updated.TotalAmount.String())

	rec = do(t, s, http.MethodPatch, path, gin.H{"notes": "net 30", "due_date": "2026-07-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "net 30", decodeData[invoicedomain.Invoice](t, rec).Notes)

	rec = do(t, s, http.MethodPost, path+"/cancel", gin.H{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, invoicedomain.InvoiceStatusCancelled, decodeData[invoicedomain.Invoice](t, rec).Status)

	rec = do(t, s, http.MethodPost, path+"/cancel", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invoice is already cancelled", decodeError(t, rec).Message)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	customer := createCustomer(t, s)
	inv := createWorkedExample(t, s, customer.ID.String())

	rec := do(t, s, http.MethodGet, "/api/invoices/abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_invoice_id", payload.Errors[0].Code)
	assert.Equal(t, "invoice_id", payload.Errors[0].Field)

	rec = do(t, s, http.MethodGet, "/api/invoices/123", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "invoice not found", decodeError(t, rec).Message)

	rec = do(t, s, http.MethodPost, "/api/invoices/"+inv.ID.String()+"/payments", gin.H{"amount": -5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", decodeError(t, rec).Errors[0].Code)

	rec = do(t, s, http.MethodPost, "/api/invoices", "not an object")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Errors[0].Code)

	rec = do(t, s, http.MethodGet, "/api/customers/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/nowhere", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestDashboardOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := createCustomer(t, s)
	inv := createWorkedExample(t, s, customer.ID.String())

	rec := do(t, s, http.MethodPost, "/api/invoices/"+inv.ID.String()+"/payments", gin.H{"amount": 76})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeData[dashboarddomain.Summary](t, rec)
	assert.EqualValues(t, 1, summary.Sales.InvoiceCount)
	assert.True(t, summary.Sales.TotalInvoiced.Equal(decimal.NewFromInt(276)))
	assert.True(t, summary.Sales.Outstanding.Equal(decimal.NewFromInt(200)))

	rec = do(t, s, http.MethodGet, "/api/dashboard/activity?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/dashboard/activity?limit=500", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/dashboard/activity?limit=many", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/audit-logs?action=payment.recorded", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := decodeData[[]auditdomain.AuditLog](t, rec)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, "user-7", *logs[0].ActorID)
}

func TestMapError_TransactionFailure(t *testing.T) {
	status, payload := mapError(invoicedomain.WrapStorage(errors.New("connection reset")))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "transaction_failure", payload.Type)

	errType, code := classifyErrorForLog(invoicedomain.ErrInvoiceNotFound)
	assert.Equal(t, "not_found", errType)
	assert.Equal(t, "invoice_not_found", code)
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/bizledger/internal/invoice/domain"
	"github.com/smallbiznis/bizledger/internal/observability"
	obsmetrics "github.com/smallbiznis/bizledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/bizledger/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// capturingInvoiceSvc records the decoded create request and echoes its
// first item back.
type capturingInvoiceSvc struct {
	invoicedomain.Service
	got invoicedomain.CreateInvoiceRequest
}

func (c *capturingInvoiceSvc) CreateInvoice(_ context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	c.got = req
	inv := invoicedomain.Invoice{InvoiceType: req.InvoiceType}
	for _, in := range req.Items {
		item := invoicedomain.InvoiceItem{Quantity: in.Quantity, DiscountRate: in.DiscountRate}
		if in.UnitPrice != nil {
			item.UnitPrice = *in.UnitPrice
		}
		inv.Items = append(inv.Items, item)
	}
	return inv, nil
}

func postRaw(s *Server, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func TestCreateInvoice_KeepsJSONNumbersExact(t *testing.T) {
	svc := &capturingInvoiceSvc{}
	s := NewServer(ServerParams{
		Gin:        NewEngine(observability.Config{Environment: "test"}, obsmetrics.NewHTTPMetrics(prometheus.NewRegistry())),
		Log:        zap.NewNop(),
		InvoiceSvc: svc,
	})

	rec := postRaw(s, "/api/invoices", `{
		"invoice_type": "sales",
		"customer_id": "1",
		"items": [{"quantity": 1, "unit_price": 9999999999999.9999, "discount_rate": 1234567890.1234567}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, svc.got.Items, 1)
	require.NotNil(t, svc.got.Items[0].UnitPrice)
	assert.Equal(t, "9999999999999.9999", svc.got.Items[0].UnitPrice.String())
	assert.Equal(t, "1234567890.1234567", svc.got.Items[0].DiscountRate.String())

	echoed := decodeData[invoicedomain.Invoice](t, rec)
	require.Len(t, echoed.Items, 1)
	assert.True(t, echoed.Items[0].UnitPrice.Equal(decimal.RequireFromString("9999999999999.9999")), echoed.Items[0].UnitPrice.String())
}

func TestAddPayment_KeepsSeventeenDigitAmountExact(t *testing.T) {
	s := newTestServer(t)
	customer := createCustomer(t, s)
	inv := createWorkedExample(t, s, customer.ID.String())

	rec := postRaw(s, "/api/invoices/"+inv.ID.String()+"/payments", `{"amount": 1234567890123.4567, "payment_method": "bank_transfer"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	payment := decodeData[paymentdomain.Payment](t, rec)
	assert.Equal(t, "1234567890123.4567", payment.Amount.String())
}

func TestAddPayment_FinerThanFourPlacesRejected(t *testing.T) {
	s := newTestServer(t)
	customer := createCustomer(t, s)
	inv := createWorkedExample(t, s, customer.ID.String())

	rec := postRaw(s, "/api/invoices/"+inv.ID.String()+"/payments", `{"amount": 10.00005}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_amount_precision", payload.Errors[0].Code)
}

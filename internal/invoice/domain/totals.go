package domain

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/bizledger/pkg/money"
)

// Totals are the document-level amounts of an invoice.
type Totals struct {
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
	TotalAmount decimal.Decimal
}

// LineTotal is the discount-adjusted, tax-exclusive amount of one line.
func LineTotal(quantity, unitPrice, discountRate decimal.Decimal) decimal.Decimal {
	subtotal := quantity.Mul(unitPrice)
	discount := subtotal.Mul(money.Percent(discountRate))
	return money.Round4(subtotal.Sub(discount))
}

// LineTax is the tax on a line's net amount. It is left unrounded so that the
// aggregate rounds once over the whole document.
func LineTax(lineTotal, taxRate decimal.Decimal) decimal.Decimal {
	return lineTotal.Mul(money.Percent(taxRate))
}

// Aggregate recomputes document totals from the full item set.
func Aggregate(items []InvoiceItem) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
		tax = tax.Add(LineTax(item.LineTotal, item.TaxRate))
	}

	subtotal = money.Round4(subtotal)
	tax = money.Round4(tax)
	return Totals{
		Subtotal:    subtotal,
		TaxAmount:   tax,
		TotalAmount: money.Round4(subtotal.Add(tax)),
	}
}

// Apply copies totals onto the invoice.
func (t Totals) Apply(inv *Invoice) {
	inv.Subtotal = t.Subtotal
	inv.TaxAmount = t.TaxAmount
	inv.TotalAmount = t.TotalAmount
}

// Matches reports whether the invoice already carries these totals.
func (t Totals) Matches(inv Invoice) bool {
	return inv.Subtotal.Equal(t.Subtotal) &&
		inv.TaxAmount.Equal(t.TaxAmount) &&
		inv.TotalAmount.Equal(t.TotalAmount)
}

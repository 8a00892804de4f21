package domain

import "github.com/shopspring/decimal"

// DerivePaymentStatus classifies the sum of all payments against the invoice total.
func DerivePaymentStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.Sign() <= 0:
		return PaymentStatusUnpaid
	case paid.LessThan(total):
		return PaymentStatusPartial
	default:
		return PaymentStatusPaid
	}
}

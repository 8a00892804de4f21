package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePaymentStatus(t *testing.T) {
	cases := []struct {
		paid, total string
		want        PaymentStatus
	}{
		{"0", "276", PaymentStatusUnpaid},
		{"0", "0", PaymentStatusUnpaid},
		{"100", "276", PaymentStatusPartial},
		{"275.9999", "276", PaymentStatusPartial},
		{"276", "276", PaymentStatusPaid},
		{"300", "276", PaymentStatusPaid},
		{"5", "0", PaymentStatusPaid},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DerivePaymentStatus(d(tc.paid), d(tc.total)), "paid=%s total=%s", tc.paid, tc.total)
	}
}

func TestDerivePaymentStatusAfterSequence(t *testing.T) {
	total := d("276")
	paid := d("0")

	paid = paid.Add(d("100"))
	assert.Equal(t, PaymentStatusPartial, DerivePaymentStatus(paid, total))

	paid = paid.Add(d("176"))
	assert.Equal(t, PaymentStatusPaid, DerivePaymentStatus(paid, total))
}

package pdf

import (
	"context"

	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptDocument confirms one payment against an invoice.
type ReceiptDocument struct {
	IssuerName    string
	PaymentNumber string
	InvoiceNumber string
	DatePaid      string
	Method        string
	Reference     string
	Currency      string

	ReceivedFrom string

	Amount        string
	InvoiceTotal  string
	TotalPaid     string
	AmountDue     string
	PaymentStatus string
}

func (p *PDFRenderer) RenderReceipt(ctx context.Context, receipt ReceiptDocument) ([]byte, error) {
	if receipt.PaymentNumber == "" {
		return nil, ErrEmptyDocument
	}
	if receipt.IssuerName == "" {
		receipt.IssuerName = p.issuer
	}

	m := newMaroto()

	m.AddRow(12,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, receipt.IssuerName, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Receipt number: "+receipt.PaymentNumber, props.Text{Top: 0}),
			text.New("Invoice number: "+receipt.InvoiceNumber, props.Text{Top: 4}),
			text.New("Date paid: "+receipt.DatePaid, props.Text{Top: 8}),
			text.New("Method: "+receipt.Method, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Received from", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.ReceivedFrom, props.Text{Top: 5}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, receipt.Amount+" "+receipt.Currency+" paid on "+receipt.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)

	if receipt.Reference != "" {
		m.AddRow(8,
			text.NewCol(12, "Reference: "+receipt.Reference, props.Text{Size: 9}),
		)
	}

	addTotal(m, "Invoice total", receipt.InvoiceTotal, false)
	addTotal(m, "Paid to date", receipt.TotalPaid, false)
	addTotal(m, "Amount due", receipt.AmountDue, true)
	addTotal(m, "Status", receipt.PaymentStatus, false)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

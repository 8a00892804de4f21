package pdf

import (
	"context"
	"errors"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyDocument = errors.New("document has no number")

// InvoiceDocument carries display-ready strings. Amounts are formatted by the
// caller at display precision.
type InvoiceDocument struct {
	Title         string
	IssuerName    string
	InvoiceNumber string
	IssueDate     string
	DueDate       string
	Status        string
	PaymentStatus string
	Currency      string

	BillToName  string
	BillToEmail string

	Lines []InvoiceLine

	Subtotal  string
	TaxAmount string
	Total     string
	Paid      string
	AmountDue string
	Notes     string
}

type InvoiceLine struct {
	Description  string
	Quantity     string
	UnitPrice    string
	DiscountRate string
	TaxRate      string
	Amount       string
}

type PDFRenderer struct {
	issuer string
}

func New(issuer string) Renderer {
	return &PDFRenderer{issuer: issuer}
}

func newMaroto() core.Maroto {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	return maroto.New(cfg)
}

func (p *PDFRenderer) RenderInvoice(ctx context.Context, invoice InvoiceDocument) ([]byte, error) {
	if invoice.InvoiceNumber == "" {
		return nil, ErrEmptyDocument
	}
	if invoice.IssuerName == "" {
		invoice.IssuerName = p.issuer
	}
	title := invoice.Title
	if title == "" {
		title = "Invoice"
	}

	m := newMaroto()

	m.AddRow(12,
		text.NewCol(8, title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, invoice.IssuerName, props.Text{
			Size:  11,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate, props.Text{Top: 4}),
			text.New("Date due: "+invoice.DueDate, props.Text{Top: 8}),
			text.New("Status: "+invoice.Status+" / "+invoice.PaymentStatus, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(invoice.BillToName, props.Text{Top: 5}),
			text.New(invoice.BillToEmail, props.Text{Top: 9}),
		),
	)

	m.AddRow(12,
		text.NewCol(12, invoice.AmountDue+" "+invoice.Currency+" due "+invoice.DueDate, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   3,
		}),
	)

	m.AddRow(10,
		text.NewCol(4, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "Disc %", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(1, "Tax %", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range invoice.Lines {
		m.AddRow(8,
			text.NewCol(4, line.Description, props.Text{Size: 9}),
			text.NewCol(2, line.Quantity, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, line.DiscountRate, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(1, line.TaxRate, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	addTotal(m, "Subtotal", invoice.Subtotal, false)
	addTotal(m, "Tax", invoice.TaxAmount, false)
	addTotal(m, "Total", invoice.Total, false)
	addTotal(m, "Paid", invoice.Paid, false)
	addTotal(m, "Amount due", invoice.AmountDue, true)

	if invoice.Notes != "" {
		m.AddRow(20,
			text.NewCol(12, invoice.Notes, props.Text{Size: 9, Top: 5}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func addTotal(m core.Maroto, label, value string, bold bool) {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, label, props.Text{Style: style, Size: 9}),
		text.NewCol(2, value, props.Text{Style: style, Size: 9, Align: align.Right}),
	)
}

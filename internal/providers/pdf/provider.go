package pdf

import (
	"context"
)

// Renderer turns prepared ledger documents into PDF bytes.
type Renderer interface {
	RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
	RenderReceipt(ctx context.Context, doc ReceiptDocument) ([]byte, error)
}

// NoOpRenderer renders nothing. Used when PDF output is disabled.
type NoOpRenderer struct{}

func (p *NoOpRenderer) RenderInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	return nil, nil
}

func (p *NoOpRenderer) RenderReceipt(ctx context.Context, doc ReceiptDocument) ([]byte, error) {
	return nil, nil
}

package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Product, error)
	List(ctx context.Context, req ListRequest) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
}

type ListRequest struct {
	Code   string
	Active *bool
}

type CreateRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Active      *bool           `json:"active"`
	Metadata    map[string]any  `json:"metadata"`
}

var (
	ErrInvalidCode      = errors.New("invalid_code")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
	ErrInvalidTaxRate   = errors.New("invalid_tax_rate")
	ErrInvalidID        = errors.New("invalid_id")
	ErrDuplicateCode    = errors.New("duplicate_code")
	ErrNotFound         = errors.New("not_found")
)

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bizledger/pkg/db/pagination"
)

type ListCustomerRequest struct {
	pagination.Pagination
	Email    string
	Currency string
}

type ListCustomerFilter struct {
	Email    string
	Currency string
	BeforeID snowflake.ID
	Limit    int
}

type ListCustomerResponse struct {
	pagination.PageInfo
	Customers []Customer `json:"customers"`
}

type CreateCustomerRequest struct {
	Name             string         `json:"name"`
	Email            string         `json:"email"`
	Currency         string         `json:"currency"`
	PaymentTermsDays int            `json:"payment_terms_days"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

type Service interface {
	Create(context.Context, CreateCustomerRequest) (Customer, error)
	List(context.Context, ListCustomerRequest) (ListCustomerResponse, error)
	GetByID(ctx context.Context, id string) (Customer, error)
}

var (
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidPaymentTerms = errors.New("invalid_payment_terms")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrNotFound            = errors.New("not_found")
)

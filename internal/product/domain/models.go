package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Product supplies defaults for invoice lines that reference it.
type Product struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	Code        string            `json:"code" gorm:"type:varchar(64);not null;uniqueIndex:ux_products_code"`
	Name        string            `json:"name" gorm:"type:text;not null"`
	Description string            `json:"description,omitempty" gorm:"type:text"`
	UnitPrice   decimal.Decimal   `json:"unit_price" gorm:"type:numeric(20,4);not null;default:0"`
	TaxRate     decimal.Decimal   `json:"tax_rate" gorm:"type:numeric(7,4);not null;default:0"`
	Active      bool              `json:"active" gorm:"not null;default:true"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Customer struct {
	ID               snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name             string            `gorm:"not null" json:"name"`
	Email            string            `gorm:"not null;index" json:"email"`
	Currency         string            `gorm:"type:varchar(3);column:currency" json:"currency,omitempty"`
	PaymentTermsDays int               `gorm:"not null;default:0" json:"payment_terms_days"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

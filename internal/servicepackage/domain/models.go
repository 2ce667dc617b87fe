package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Package is a sellable internet plan.
type Package struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	Title          string          `gorm:"type:varchar(255);not null" json:"title"`
	Speed          string          `gorm:"type:varchar(32);not null" json:"speed"`
	SpeedType      string          `gorm:"type:varchar(16);not null" json:"speed_type"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	GatewayID      *snowflake.ID   `gorm:"index" json:"gateway_id,omitempty"`
	BillingCycleID *snowflake.ID   `gorm:"index" json:"billing_cycle_id,omitempty"`
	Published      bool            `gorm:"not null;default:true" json:"published"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Package) TableName() string { return "packages" }

// SetupItem is a one-time charge template attached to a package.
type SetupItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	PackageID   snowflake.ID    `gorm:"not null;index" json:"package_id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	Currency    string          `gorm:"type:varchar(3);not null" json:"currency"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	Published   bool            `gorm:"not null;default:true" json:"published"`
}

// TableName sets the database table name.
func (SetupItem) TableName() string { return "package_setup_items" }

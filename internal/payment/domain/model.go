package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Payment is money received from a partner.
type Payment struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	PartnerID     snowflake.ID    `json:"partner_id" gorm:"not null;index"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(20,4);not null"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);not null"`
	Reference     string          `json:"reference" gorm:"type:varchar(128);not null;uniqueIndex"`
	LedgerEntryID *snowflake.ID   `json:"ledger_entry_id,omitempty" gorm:"index"`
	PaidAt        time.Time       `json:"paid_at" gorm:"not null"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

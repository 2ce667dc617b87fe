// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// MoveType distinguishes invoices, refunds and receipts on either side.
type MoveType string

const (
	MoveTypeEntry      MoveType = "entry"
	MoveTypeOutInvoice MoveType = "out_invoice"
	MoveTypeOutRefund  MoveType = "out_refund"
	MoveTypeInInvoice  MoveType = "in_invoice"
	MoveTypeInRefund   MoveType = "in_refund"
	MoveTypeOutReceipt MoveType = "out_receipt"
	MoveTypeInReceipt  MoveType = "in_receipt"
)

// IsInvoice reports whether the move is an invoice or refund, and a receipt
// when includeReceipts is set.
func (t MoveType) IsInvoice(includeReceipts bool) bool {
	switch t {
	case MoveTypeOutInvoice, MoveTypeOutRefund, MoveTypeInInvoice, MoveTypeInRefund:
		return true
	case MoveTypeOutReceipt, MoveTypeInReceipt:
		return includeReceipts
	}
	return false
}

// IsInbound reports whether the move brings money in. Its pay-term line is a debit.
func (t MoveType) IsInbound() bool {
	switch t {
	case MoveTypeOutInvoice, MoveTypeInRefund, MoveTypeOutReceipt:
		return true
	}
	return false
}

// IsSale reports whether the move faces a customer.
func (t MoveType) IsSale() bool {
	switch t {
	case MoveTypeOutInvoice, MoveTypeOutRefund, MoveTypeOutReceipt:
		return true
	}
	return false
}

type State string

const (
	StateDraft  State = "draft"
	StatePosted State = "posted"
	StateCancel State = "cancel"
)

type PaymentState string

const (
	PaymentStateNotPaid PaymentState = "not_paid"
	PaymentStatePartial PaymentState = "partial"
	PaymentStatePaid    PaymentState = "paid"
)

// Invoice is an accounting move billed to a partner.
type Invoice struct {
	ID                  snowflake.ID    `gorm:"primaryKey" json:"id"`
	PartnerID           snowflake.ID    `gorm:"not null;index" json:"partner_id"`
	CommercialPartnerID snowflake.ID    `gorm:"not null;index" json:"commercial_partner_id"`
	MoveType            MoveType        `gorm:"type:varchar(16);not null" json:"move_type"`
	State               State           `gorm:"type:varchar(16);not null;index" json:"state"`
	PaymentState        PaymentState    `gorm:"type:varchar(16);not null" json:"payment_state"`
	Currency            string          `gorm:"type:varchar(3);not null" json:"currency"`
	AmountTotal         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_total"`
	AmountResidual      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_residual"`
	InvoiceDate         time.Time       `gorm:"not null" json:"invoice_date"`
	LedgerEntryID       *snowflake.ID   `gorm:"index" json:"ledger_entry_id,omitempty"`
	PostedAt            *time.Time      `json:"posted_at,omitempty"`
	CreatedAt           time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// IsPaid reports whether nothing is left to collect.
func (i Invoice) IsPaid() bool {
	return i.PaymentState == PaymentStatePaid
}

// Line is one billed item.
type Line struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Quantity  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"quantity"`
	PriceUnit decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price_unit"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	AccountID snowflake.ID    `gorm:"not null" json:"account_id"`
}

// TableName sets the database table name.
func (Line) TableName() string { return "invoice_lines" }

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// AccountType classifies accounts for reconciliation.
type AccountType string

const (
	AccountTypeReceivable AccountType = "receivable"
	AccountTypePayable    AccountType = "payable"
	AccountTypeIncome     AccountType = "income"
	AccountTypeLiquidity  AccountType = "liquidity"
)

// IsPayTerm reports whether lines on this account carry open balances.
func (t AccountType) IsPayTerm() bool {
	return t == AccountTypeReceivable || t == AccountTypePayable
}

// Direction represents debit or credit postings.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

type EntryState string

const (
	EntryStateDraft  EntryState = "draft"
	EntryStatePosted EntryState = "posted"
)

type SourceType string

const (
	SourceTypeInvoice SourceType = "invoice"
	SourceTypePayment SourceType = "payment"
)

// Account defines a chart-of-accounts entry.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Code      string       `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	Name      string       `gorm:"type:varchar(255);not null" json:"name"`
	Type      AccountType  `gorm:"type:varchar(16);not null" json:"type"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "ledger_accounts" }

// Entry groups balanced lines posted for one source document.
type Entry struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	SourceType SourceType   `gorm:"type:varchar(32);not null;uniqueIndex:ux_ledger_entries_source,priority:1" json:"source_type"`
	SourceID   snowflake.ID `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:2" json:"source_id"`
	PartnerID  snowflake.ID `gorm:"not null;index" json:"partner_id"`
	Currency   string       `gorm:"type:varchar(3);not null" json:"currency"`
	State      EntryState   `gorm:"type:varchar(16);not null" json:"state"`
	OccurredAt time.Time    `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "ledger_entries" }

// EntryLine is one side of a posting. AmountResidual is signed like Balance.
type EntryLine struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	LedgerEntryID  snowflake.ID    `gorm:"not null;index" json:"ledger_entry_id"`
	AccountID      snowflake.ID    `gorm:"not null;index" json:"account_id"`
	PartnerID      snowflake.ID    `gorm:"not null;index" json:"partner_id"`
	Direction      Direction       `gorm:"type:varchar(8);not null" json:"direction"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	AmountResidual decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_residual"`
	Reconciled     bool            `gorm:"not null;default:false" json:"reconciled"`
	ReconcileID    *snowflake.ID   `gorm:"index" json:"reconcile_id,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (EntryLine) TableName() string { return "ledger_entry_lines" }

// Balance is +amount for debits and -amount for credits.
func (l EntryLine) Balance() decimal.Decimal {
	if l.Direction == DirectionCredit {
		return l.Amount.Neg()
	}
	return l.Amount
}

// Match records an amount settled between a debit and a credit line.
type Match struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	ReconcileID  snowflake.ID    `gorm:"not null;index" json:"reconcile_id"`
	DebitLineID  snowflake.ID    `gorm:"not null;index" json:"debit_line_id"`
	CreditLineID snowflake.ID    `gorm:"not null;index" json:"credit_line_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Match) TableName() string { return "ledger_reconcile_matches" }

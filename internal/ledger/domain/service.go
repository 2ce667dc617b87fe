package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LineInput is one requested posting line.
type LineInput struct {
	AccountID snowflake.ID
	PartnerID snowflake.ID
	Direction Direction
	Amount    decimal.Decimal
}

type PostEntryRequest struct {
	SourceType SourceType
	SourceID   snowflake.ID
	PartnerID  snowflake.ID
	Currency   string
	OccurredAt time.Time
	Lines      []LineInput
}

// CandidateFilter selects open pay-term lines for reconciliation.
type CandidateFilter struct {
	AccountIDs []snowflake.ID
	PartnerID  snowflake.ID
	// Sign is -1 for lines with negative balance, +1 for positive.
	Sign         int
	ExcludeEntry snowflake.ID
	// Currency restricts candidates to entries booked in it when set.
	Currency string
}

// Service posts balanced entries and reconciles open lines. All methods take
// the transaction to run in.
type Service interface {
	AccountByCode(ctx context.Context, tx *gorm.DB, code string) (*Account, error)
	PostEntry(ctx context.Context, tx *gorm.DB, req PostEntryRequest) (*Entry, []EntryLine, error)
	EntryLines(ctx context.Context, tx *gorm.DB, entryID snowflake.ID) ([]EntryLine, error)
	// PayTermLines returns the entry's lines on receivable or payable accounts.
	PayTermLines(ctx context.Context, tx *gorm.DB, entryID snowflake.ID) ([]EntryLine, error)
	OpenLines(ctx context.Context, tx *gorm.DB, filter CandidateFilter) ([]EntryLine, error)
	// Reconcile matches the debit and credit residuals of lines sharing one
	// account. Lines left with zero residual become reconciled.
	Reconcile(ctx context.Context, tx *gorm.DB, lineIDs []snowflake.ID) (int, error)
}

var (
	ErrAccountNotFound    = errors.New("ledger_account_not_found")
	ErrInvalidSourceType  = errors.New("invalid_source_type")
	ErrInvalidSourceID    = errors.New("invalid_source_id")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidEntryLines  = errors.New("invalid_entry_lines")
	ErrInvalidLineAmount  = errors.New("invalid_line_amount")
	ErrInvalidDirection   = errors.New("invalid_direction")
	ErrUnbalancedEntry    = errors.New("unbalanced_entry")
	ErrDuplicateEntry     = errors.New("duplicate_ledger_entry")
	ErrMixedAccounts      = errors.New("reconcile_mixed_accounts")
	ErrLineAlreadyMatched = errors.New("line_already_reconciled")
)

// ValidateBalanced checks that debits equal credits.
func ValidateBalanced(lines []LineInput) error {
	total := decimal.Zero
	for _, line := range lines {
		switch line.Direction {
		case DirectionDebit:
			total = total.Add(line.Amount)
		case DirectionCredit:
			total = total.Sub(line.Amount)
		default:
			return ErrInvalidDirection
		}
	}
	if !total.IsZero() {
		return ErrUnbalancedEntry
	}
	return nil
}

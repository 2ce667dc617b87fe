package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	"gorm.io/gorm"
)

// Result describes one reconciliation attempt.
type Result struct {
	// Skipped is set when the invoice is not eligible. It is not an error.
	Skipped      bool
	Matches      int
	PaymentState invoicedomain.PaymentState
}

const (
	OutcomeSkipped      = "skipped"
	OutcomeNoCandidates = "no_candidates"
	OutcomeMatched      = "matched"
)

type Service interface {
	// Reconcile matches a posted invoice's open pay-term lines against the
	// partner's outstanding opposite-sign ledger lines.
	Reconcile(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (Result, error)
}

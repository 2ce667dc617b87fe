package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	"gorm.io/gorm"
)

type RegisterPaymentRequest struct {
	PartnerID snowflake.ID    `validate:"required"`
	Amount    decimal.Decimal `validate:"gt=0"`
	Currency  string          `validate:"required,len=3,alpha"`
	Reference string          `validate:"required,max=128"`
	PaidAt    time.Time
}

// AppliedInvoice reports the state of an invoice the payment touched.
type AppliedInvoice struct {
	InvoiceID    snowflake.ID               `json:"invoice_id"`
	Matches      int                        `json:"matches"`
	PaymentState invoicedomain.PaymentState `json:"payment_state"`
}

type RegisterPaymentResult struct {
	Payment  Payment          `json:"payment"`
	Invoices []AppliedInvoice `json:"invoices"`
}

type Service interface {
	// RegisterPayment posts the payment to the ledger and reconciles it
	// against the partner's open invoices.
	RegisterPayment(ctx context.Context, req RegisterPaymentRequest) (RegisterPaymentResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	SetLedgerEntry(ctx context.Context, db *gorm.DB, id snowflake.ID, entryID snowflake.ID) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
}

var (
	ErrInvalidPartner   = errors.New("invalid_partner")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidReference = errors.New("invalid_reference")
	ErrDuplicatePayment = errors.New("duplicate_payment")
)

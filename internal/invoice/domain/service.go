package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LineInput struct {
	Name      string
	Quantity  decimal.Decimal
	PriceUnit decimal.Decimal
	// AccountID overrides the income account from policy.
	AccountID snowflake.ID
}

type CreateRequest struct {
	PartnerID   snowflake.ID
	MoveType    MoveType
	Currency    string
	InvoiceDate time.Time
	Lines       []LineInput
}

type Service interface {
	// Create stores a draft invoice.
	Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (*Invoice, error)
	// Post moves a draft to posted and writes its ledger entry.
	Post(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*Invoice, error)
	// RefreshPaymentState recomputes residual and payment state from the
	// invoice's pay-term ledger lines.
	RefreshPaymentState(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*Invoice, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	Lines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Line, error)
	// ListOpen returns posted, unpaid invoices of a commercial partner, oldest first.
	ListOpen(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) ([]Invoice, error)
	RenderPDF(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (RenderResponse, error)
}

type RenderResponse struct {
	FileName string
	Body     io.Reader
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice, lines []Line) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	Lines(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Line, error)
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	ListOpenByPartner(ctx context.Context, db *gorm.DB, partnerID snowflake.ID) ([]Invoice, error)
}

// Renderer produces a printable document for an invoice.
type Renderer interface {
	Render(ctx context.Context, doc Document) (io.Reader, error)
}

// Document is the printable view of an invoice.
type Document struct {
	Number      string
	IssueDate   string
	PartnerName string
	Email       string
	Currency    string
	State       string
	Items       []DocumentItem
	Total       string
	AmountDue   string
}

type DocumentItem struct {
	Description string
	Quantity    string
	UnitPrice   string
	Amount      string
}

var (
	ErrNotFound           = errors.New("invoice_not_found")
	ErrInvalidPartner     = errors.New("invalid_partner")
	ErrInvalidMoveType    = errors.New("invalid_move_type")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrEmptyInvoice       = errors.New("invoice_has_no_lines")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrNotDraft           = errors.New("invoice_not_draft")
	ErrZeroTotal          = errors.New("invoice_total_is_zero")
	ErrLedgerEntryMissing = errors.New("invoice_ledger_entry_missing")
	ErrRendererMissing    = errors.New("renderer_not_configured")
)

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	"gorm.io/gorm"
)

type CreateConnectionRequest struct {
	PackageID  snowflake.ID `json:"package_id" validate:"required"`
	PartnerID  snowflake.ID `json:"partner_id" validate:"required"`
	Username   string       `json:"username" validate:"required,max=64,radiususer"`
	Password   string       `json:"password" validate:"required,max=128"`
	Params     string       `json:"params"`
	ExpiryDate *time.Time   `json:"expiry_date"`
}

// JobResult summarises one pass of a lifecycle job.
type JobResult struct {
	Selected        int
	Processed       int
	Skipped         int
	ProvisionFailed int
}

type Service interface {
	// Create stores a new connection and copies the package's published
	// setup items onto it.
	Create(ctx context.Context, req CreateConnectionRequest) (*Connection, error)
	// GenerateInvoice bills the connection's setup items.
	GenerateInvoice(ctx context.Context, connectionID snowflake.ID) (*invoicedomain.Invoice, error)
	// Provision pushes the connection's current credentials and profile.
	Provision(ctx context.Context, connectionID snowflake.ID) error

	ProcessNewConnections(ctx context.Context) (JobResult, error)
	ProcessAllConnections(ctx context.Context) (JobResult, error)
	ProcessExpiry(ctx context.Context) (JobResult, error)
	PrepareBilling(ctx context.Context) (JobResult, error)
	ProcessPaidBillings(ctx context.Context) (JobResult, error)
	RetryProvisioning(ctx context.Context) (JobResult, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, conn *Connection) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Connection, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Connection, error)
	Update(ctx context.Context, db *gorm.DB, conn *Connection) error

	ListSetupItems(ctx context.Context, db *gorm.DB, connectionID snowflake.ID) ([]SetupItem, error)
	InsertSetupItems(ctx context.Context, db *gorm.DB, items []SetupItem) error
	InsertInvoiceLink(ctx context.Context, db *gorm.DB, link *Invoice) error

	// Candidate queries page by id: they return ids greater than afterID.
	ListNewWithPaidInvoice(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
	ListActiveWithPaidInvoice(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
	ListExpired(ctx context.Context, db *gorm.DB, today time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
	ListDueForBilling(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error)

	InsertBilling(ctx context.Context, db *gorm.DB, billing *Billing, items []BillingItem) error
	SetBillingInvoice(ctx context.Context, db *gorm.DB, billingID, invoiceID snowflake.ID) error
	FindBillingForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Billing, error)
	ListPaidUnappliedBillings(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error)
	MarkBillingApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	FindTaskByConnection(ctx context.Context, db *gorm.DB, connectionID snowflake.ID) (*ProvisioningTask, error)
	InsertTask(ctx context.Context, db *gorm.DB, task *ProvisioningTask) error
	UpdateTask(ctx context.Context, db *gorm.DB, task *ProvisioningTask) error
	DeleteTaskByConnection(ctx context.Context, db *gorm.DB, connectionID snowflake.ID) error
	ListDueTasks(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]ProvisioningTask, error)
	CountTasks(ctx context.Context, db *gorm.DB, status TaskStatus) (int64, error)
}

var (
	ErrNotFound            = errors.New("connection_not_found")
	ErrInvalidRequest      = errors.New("invalid_connection_request")
	ErrSetupInvoicePending = errors.New("setup_invoice_pending")
	ErrNoSetupItems        = errors.New("no_setup_items")
	ErrPackageNotFound     = errors.New("connection_package_not_found")
)

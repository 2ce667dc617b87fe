// Package domain contains persistence models for subscriber connections.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status represents connection lifecycle states.
type Status string

const (
	StatusNew      Status = "new"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusClosed   Status = "closed"
)

// Connection is a subscriber's internet access account.
type Connection struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	PackageID   snowflake.ID  `gorm:"not null;index" json:"package_id"`
	PartnerID   snowflake.ID  `gorm:"not null;index" json:"partner_id"`
	InvoiceID   *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	Username    string        `gorm:"type:varchar(64);not null" json:"username"`
	Password    string        `gorm:"type:varchar(128);not null" json:"-"`
	ExpiryDate  *time.Time    `gorm:"index" json:"expiry_date,omitempty"`
	BillingDate *time.Time    `gorm:"index" json:"billing_date,omitempty"`
	Params      string        `gorm:"type:text" json:"params,omitempty"`
	IsSetup     bool          `gorm:"not null;default:false" json:"is_setup"`
	IsPaid      bool          `gorm:"not null;default:false" json:"is_paid"`
	Status      Status        `gorm:"type:varchar(16);not null;default:'new';index" json:"status"`
	CreatedAt   time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Connection) TableName() string { return "connections" }

// SetupItem is a one-time charge attached to a connection.
type SetupItem struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	ConnectionID snowflake.ID    `gorm:"not null;index" json:"connection_id"`
	Title        string          `gorm:"type:varchar(255);not null" json:"title"`
	Description  string          `gorm:"type:text" json:"description,omitempty"`
	Currency     string          `gorm:"type:varchar(3);not null" json:"currency"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (SetupItem) TableName() string { return "connection_setup_items" }

// Invoice links a connection to every invoice issued for it.
type Invoice struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	ConnectionID snowflake.ID `gorm:"not null;index" json:"connection_id"`
	InvoiceID    snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "connection_invoices" }

// Billing is one recurring service period charged to a connection.
type Billing struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	ConnectionID snowflake.ID  `gorm:"not null;index" json:"connection_id"`
	PackageID    snowflake.ID  `gorm:"not null" json:"package_id"`
	Title        string        `gorm:"type:varchar(255);not null" json:"title"`
	Description  string        `gorm:"type:text" json:"description,omitempty"`
	StartDate    time.Time     `gorm:"not null" json:"start_date"`
	EndDate      time.Time     `gorm:"not null" json:"end_date"`
	InvoiceID    *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`
	AppliedAt    *time.Time    `json:"applied_at,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Billing) TableName() string { return "billings" }

type BillingItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	BillingID   snowflake.ID    `gorm:"not null;index" json:"billing_id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (BillingItem) TableName() string { return "billing_items" }

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusFailed  TaskStatus = "failed"
)

// ProvisioningTask queues a connection whose RADIUS sync failed.
type ProvisioningTask struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	ConnectionID  snowflake.ID      `gorm:"not null;uniqueIndex" json:"connection_id"`
	Status        TaskStatus        `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	LastError     string            `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt time.Time         `gorm:"not null;index" json:"next_attempt_at"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (ProvisioningTask) TableName() string { return "provisioning_tasks" }

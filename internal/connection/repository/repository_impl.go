package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ispbill/internal/connection/domain"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, conn *domain.Connection) error {
	return db.WithContext(ctx).Create(conn).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Connection, error) {
	var conn domain.Connection
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&conn).Error
	if err != nil {
		return nil, err
	}
	if conn.ID == 0 {
		return nil, nil
	}
	return &conn, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Connection, error) {
	var conn domain.Connection
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&conn).Error
	if err != nil {
		return nil, err
	}
	if conn.ID == 0 {
		return nil, nil
	}
	return &conn, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, conn *domain.Connection) error {
	return db.WithContext(ctx).Model(&domain.Connection{}).
		Where("id = ?", conn.ID).
		Updates(map[string]any{
			"package_id":   conn.PackageID,
			"invoice_id":   conn.InvoiceID,
			"expiry_date":  conn.ExpiryDate,
			"billing_date": conn.BillingDate,
			"is_setup":     conn.IsSetup,
			"is_paid":      conn.IsPaid,
			"status":       conn.Status,
			"updated_at":   conn.UpdatedAt,
		}).Error
}

func (r *repo) ListSetupItems(ctx context.Context, db *gorm.DB, connectionID snowflake.ID) ([]domain.SetupItem, error) {
	var items []domain.SetupItem
	err := db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) InsertSetupItems(ctx context.Context, db *gorm.DB, items []domain.SetupItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) InsertInvoiceLink(ctx context.Context, db *gorm.DB, link *domain.Invoice) error {
	return db.WithContext(ctx).Create(link).Error
}

func (r *repo) ListNewWithPaidInvoice(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT c.id FROM connections c
		 JOIN invoices i ON i.id = c.invoice_id
		 WHERE c.status = ? AND i.payment_state = ? AND c.id > ?
		 ORDER BY c.id ASC
		 LIMIT ?`,
		domain.StatusNew,
		invoicedomain.PaymentStatePaid,
		afterID,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ListActiveWithPaidInvoice(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT c.id FROM connections c
		 JOIN invoices i ON i.id = c.invoice_id
		 WHERE c.status = ? AND i.payment_state = ? AND c.id > ?
		 ORDER BY c.id ASC
		 LIMIT ?`,
		domain.StatusActive,
		invoicedomain.PaymentStatePaid,
		afterID,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, today time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM connections
		 WHERE status = ? AND is_paid = ? AND expiry_date IS NOT NULL AND expiry_date <= ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		domain.StatusActive,
		true,
		today,
		afterID,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ListDueForBilling(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM connections
		 WHERE status = ? AND billing_date IS NOT NULL AND billing_date <= ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		domain.StatusActive,
		cutoff,
		afterID,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) InsertBilling(ctx context.Context, db *gorm.DB, billing *domain.Billing, items []domain.BillingItem) error {
	if err := db.WithContext(ctx).Create(billing).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) SetBillingInvoice(ctx context.Context, db *gorm.DB, billingID, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billings SET invoice_id = ? WHERE id = ?`,
		invoiceID,
		billingID,
	).Error
}

func (r *repo) FindBillingForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Billing, error) {
	var billing domain.Billing
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&billing).Error
	if err != nil {
		return nil, err
	}
	if billing.ID == 0 {
		return nil, nil
	}
	return &billing, nil
}

func (r *repo) ListPaidUnappliedBillings(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT b.id FROM billings b
		 JOIN invoices i ON i.id = b.invoice_id
		 WHERE b.applied_at IS NULL AND i.payment_state = ? AND b.id > ?
		 ORDER BY b.id ASC
		 LIMIT ?`,
		invoicedomain.PaymentStatePaid,
		afterID,
		limit,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) MarkBillingApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billings SET applied_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) FindTaskByConnection(ctx context.Context, db *gorm.DB, connectionID snowflake.ID) (*domain.ProvisioningTask, error) {
	var task domain.ProvisioningTask
	err := db.WithContext(ctx).Where("connection_id = ?", connectionID).Limit(1).Find(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ID == 0 {
		return nil, nil
	}
	return &task, nil
}

func (r *repo) InsertTask(ctx context.Context, db *gorm.DB, task *domain.ProvisioningTask) error {
	return db.WithContext(ctx).Create(task).Error
}

func (r *repo) UpdateTask(ctx context.Context, db *gorm.DB, task *domain.ProvisioningTask) error {
	return db.WithContext(ctx).Model(&domain.ProvisioningTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"status":          task.Status,
			"attempts":        task.Attempts,
			"last_error":      task.LastError,
			"next_attempt_at": task.NextAttemptAt,
			"metadata":        task.Metadata,
			"updated_at":      task.UpdatedAt,
		}).Error
}

func (r *repo) DeleteTaskByConnection(ctx context.Context, db *gorm.DB, connectionID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Delete(&domain.ProvisioningTask{}).Error
}

func (r *repo) ListDueTasks(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]domain.ProvisioningTask, error) {
	var tasks []domain.ProvisioningTask
	err := db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ? AND id > ?", domain.TaskStatusPending, now, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&tasks).Error
	return tasks, err
}

func (r *repo) CountTasks(ctx context.Context, db *gorm.DB, status domain.TaskStatus) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.ProvisioningTask{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

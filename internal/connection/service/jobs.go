package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ispbill/internal/clock"
	"github.com/smallbiznis/ispbill/internal/connection/domain"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	"github.com/smallbiznis/ispbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	packagedomain "github.com/smallbiznis/ispbill/internal/servicepackage/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeProvisionFailed
)

type pageFunc func(ctx context.Context, afterID snowflake.ID, limit int) ([]snowflake.ID, error)

type handleFunc func(ctx context.Context, id snowflake.ID) (outcome, error)

// forEach walks candidates page by page in id order. A failing candidate is
// recorded and the walk moves on to the next one.
func (s *Service) forEach(ctx context.Context, job, resource string, list pageFunc, handle handleFunc) (domain.JobResult, error) {
	var (
		result  domain.JobResult
		errs    []error
		afterID snowflake.ID
	)

pages:
	for {
		ids, err := list(ctx, afterID, s.batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s candidates: %w", job, err))
			break
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break pages
			}
			afterID = id
			result.Selected++

			out, err := handle(ctx, id)
			if err != nil {
				result.Skipped++
				errs = append(errs, fmt.Errorf("%s %s: %w", resource, id, err))
				s.logFor(ctx).Error("connection.job.item_failed",
					zap.String("job", job),
					zap.String("id", id.String()),
					zap.Error(err),
				)
				continue
			}
			switch out {
			case outcomeProcessed:
				result.Processed++
			case outcomeSkipped:
				result.Skipped++
			case outcomeProvisionFailed:
				result.Processed++
				result.ProvisionFailed++
			}
		}
		if len(ids) < s.batchSize {
			break
		}
	}

	s.schedMetrics.AddBatchProcessed(job, resource, result.Processed)
	return result, errors.Join(errs...)
}

func (s *Service) ProcessNewConnections(ctx context.Context) (domain.JobResult, error) {
	today := clock.Today(s.clock)
	list := func(ctx context.Context, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
		return s.repo.ListNewWithPaidInvoice(ctx, s.db, afterID, limit)
	}
	return s.forEach(ctx, domain.JobNewConnections, "connection", list, func(ctx context.Context, id snowflake.ID) (outcome, error) {
		ctx = logger.WithConnectionID(ctx, id.String())

		var activated *domain.Connection
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			conn, err := s.lockConnection(ctx, tx, id)
			if err != nil || conn == nil {
				return err
			}
			if conn.Status != domain.StatusNew || conn.InvoiceID == nil {
				return nil
			}
			invoice, err := s.invoiceSvc.FindByID(ctx, tx, *conn.InvoiceID)
			if err != nil {
				return err
			}
			if !invoice.IsPaid() {
				return nil
			}

			pkg, err := s.findPackage(ctx, tx, conn.PackageID)
			if err != nil {
				return err
			}
			billingDate, err := s.nextDate(ctx, tx, pkg, today)
			if err != nil {
				return err
			}
			conn.Status = domain.StatusActive
			conn.IsPaid = true
			conn.BillingDate = &billingDate
			if conn.ExpiryDate == nil {
				expiry := billingDate
				conn.ExpiryDate = &expiry
			}
			conn.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, conn); err != nil {
				return err
			}
			activated = conn
			return nil
		})
		if err != nil {
			return outcomeSkipped, err
		}
		if activated == nil {
			return outcomeSkipped, nil
		}

		s.logFor(ctx).Info("connection.activated",
			zap.Time("billing_date", *activated.BillingDate),
		)
		return s.syncOutcome(ctx, activated), nil
	})
}

func (s *Service) ProcessAllConnections(ctx context.Context) (domain.JobResult, error) {
	list := func(ctx context.Context, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
		return s.repo.ListActiveWithPaidInvoice(ctx, s.db, afterID, limit)
	}
	return s.forEach(ctx, domain.JobRefreshConnections, "connection", list, func(ctx context.Context, id snowflake.ID) (outcome, error) {
		ctx = logger.WithConnectionID(ctx, id.String())
		conn, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return outcomeSkipped, err
		}
		if conn == nil || conn.Status != domain.StatusActive {
			return outcomeSkipped, nil
		}
		return s.syncOutcome(ctx, conn), nil
	})
}

func (s *Service) ProcessExpiry(ctx context.Context) (domain.JobResult, error) {
	today := clock.Today(s.clock)
	cheapest, err := s.packageRepo.FindCheapest(ctx, s.db)
	if err != nil {
		return domain.JobResult{}, err
	}
	if cheapest == nil {
		return domain.JobResult{}, packagedomain.ErrNoPackages
	}

	list := func(ctx context.Context, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
		return s.repo.ListExpired(ctx, s.db, today, afterID, limit)
	}
	return s.forEach(ctx, domain.JobExpiry, "connection", list, func(ctx context.Context, id snowflake.ID) (outcome, error) {
		ctx = logger.WithConnectionID(ctx, id.String())

		var expired *domain.Connection
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			conn, err := s.lockConnection(ctx, tx, id)
			if err != nil || conn == nil {
				return err
			}
			if conn.Status != domain.StatusActive || !conn.IsPaid || conn.ExpiryDate == nil || conn.ExpiryDate.After(today) {
				return nil
			}
			conn.PackageID = cheapest.ID
			conn.IsPaid = false
			conn.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, conn); err != nil {
				return err
			}
			expired = conn
			return nil
		})
		if err != nil {
			return outcomeSkipped, err
		}
		if expired == nil {
			return outcomeSkipped, nil
		}

		s.logFor(ctx).Info("connection.expired",
			zap.String("fallback_package_id", cheapest.ID.String()),
		)
		return s.syncOutcome(ctx, expired), nil
	})
}

func (s *Service) PrepareBilling(ctx context.Context) (domain.JobResult, error) {
	today := clock.Today(s.clock)
	cutoff := today.AddDate(0, 0, s.policy.Get().BillingLookaheadDays)

	list := func(ctx context.Context, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
		return s.repo.ListDueForBilling(ctx, s.db, cutoff, afterID, limit)
	}
	return s.forEach(ctx, domain.JobPrepareBilling, "connection", list, func(ctx context.Context, id snowflake.ID) (outcome, error) {
		ctx = logger.WithConnectionID(ctx, id.String())

		var billing *domain.Billing
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			conn, err := s.lockConnection(ctx, tx, id)
			if err != nil || conn == nil {
				return err
			}
			if conn.Status != domain.StatusActive || conn.BillingDate == nil || conn.BillingDate.After(cutoff) {
				return nil
			}
			pkg, err := s.findPackage(ctx, tx, conn.PackageID)
			if err != nil {
				return err
			}

			start := today
			if conn.BillingDate != nil {
				start = clock.StartOfDay(*conn.BillingDate)
			}
			end, err := s.nextDate(ctx, tx, pkg, start)
			if err != nil {
				return err
			}
			conn.BillingDate = &end
			conn.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, conn); err != nil {
				return err
			}

			billing, err = s.createBilling(ctx, tx, conn, pkg, start, end)
			return err
		})
		if err != nil {
			return outcomeSkipped, err
		}
		if billing == nil {
			return outcomeSkipped, nil
		}

		s.logFor(ctx).Info("connection.billing.prepared",
			zap.String("billing_id", billing.ID.String()),
			zap.Time("start_date", billing.StartDate),
			zap.Time("end_date", billing.EndDate),
		)
		return outcomeProcessed, nil
	})
}

// createBilling stores one billing period with a single item for the package
// and invoices it.
func (s *Service) createBilling(ctx context.Context, tx *gorm.DB, conn *domain.Connection, pkg *packagedomain.Package, start, end time.Time) (*domain.Billing, error) {
	now := s.clock.Now()
	billing := &domain.Billing{
		ID:           s.genID.Generate(),
		ConnectionID: conn.ID,
		PackageID:    pkg.ID,
		Title:        pkg.Title,
		Description:  pkg.Title,
		StartDate:    start,
		EndDate:      end,
		CreatedAt:    now,
	}
	items := []domain.BillingItem{{
		ID:          s.genID.Generate(),
		BillingID:   billing.ID,
		Title:       pkg.Title,
		Description: pkg.Title,
		Amount:      pkg.Amount,
		CreatedAt:   now,
	}}
	if err := s.repo.InsertBilling(ctx, tx, billing, items); err != nil {
		return nil, err
	}

	lines := make([]invoicedomain.LineInput, 0, len(items))
	for _, item := range items {
		lines = append(lines, invoicedomain.LineInput{
			Name:      item.Title,
			Quantity:  decimal.NewFromInt(1),
			PriceUnit: item.Amount,
		})
	}
	invoice, err := s.issueInvoice(ctx, tx, conn, pkg.Currency, lines)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetBillingInvoice(ctx, tx, billing.ID, invoice.ID); err != nil {
		return nil, err
	}
	billing.InvoiceID = &invoice.ID
	return billing, nil
}

func (s *Service) ProcessPaidBillings(ctx context.Context) (domain.JobResult, error) {
	list := func(ctx context.Context, afterID snowflake.ID, limit int) ([]snowflake.ID, error) {
		return s.repo.ListPaidUnappliedBillings(ctx, s.db, afterID, limit)
	}
	return s.forEach(ctx, domain.JobPaidBillings, "billing", list, func(ctx context.Context, id snowflake.ID) (outcome, error) {
		var renewed *domain.Connection
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			start := time.Now()
			billing, err := s.repo.FindBillingForUpdate(ctx, tx, id)
			s.schedMetrics.ObserveDBLockWait(obsmetrics.LockResourceBillingsForWork, time.Since(start))
			if err != nil || billing == nil || billing.AppliedAt != nil {
				return err
			}

			conn, err := s.lockConnection(ctx, tx, billing.ConnectionID)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			if conn != nil && conn.Status == domain.StatusActive {
				expiry := clock.StartOfDay(billing.EndDate)
				conn.ExpiryDate = &expiry
				conn.IsPaid = true
				conn.PackageID = billing.PackageID
				conn.UpdatedAt = now
				if err := s.repo.Update(ctx, tx, conn); err != nil {
					return err
				}
				renewed = conn
			}
			return s.repo.MarkBillingApplied(ctx, tx, billing.ID, now)
		})
		if err != nil {
			return outcomeSkipped, err
		}
		if renewed == nil {
			return outcomeSkipped, nil
		}

		ctx = logger.WithConnectionID(ctx, renewed.ID.String())
		s.logFor(ctx).Info("connection.renewed",
			zap.String("billing_id", id.String()),
			zap.Time("expiry_date", *renewed.ExpiryDate),
		)
		return s.syncOutcome(ctx, renewed), nil
	})
}

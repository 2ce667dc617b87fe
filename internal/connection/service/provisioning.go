package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/smallbiznis/ispbill/internal/config"
	"github.com/smallbiznis/ispbill/internal/connection/domain"
	gatewaydomain "github.com/smallbiznis/ispbill/internal/gateway/domain"
	"github.com/smallbiznis/ispbill/internal/observability/logger"
	"github.com/smallbiznis/ispbill/internal/observability/tracing"
	"github.com/smallbiznis/ispbill/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func (s *Service) Provision(ctx context.Context, connectionID snowflake.ID) error {
	ctx = logger.WithConnectionID(ctx, connectionID.String())
	conn, err := s.repo.FindByID(ctx, s.db, connectionID)
	if err != nil {
		return err
	}
	if conn == nil {
		return domain.ErrNotFound
	}
	if err := s.provision(ctx, conn); err != nil {
		s.queueRetry(ctx, conn, err)
		return err
	}
	s.clearRetry(ctx, conn)
	return nil
}

// syncOutcome pushes the committed connection state to RADIUS. Failures are
// queued for retry and never undo the state change.
func (s *Service) syncOutcome(ctx context.Context, conn *domain.Connection) outcome {
	if err := s.provision(ctx, conn); err != nil {
		s.queueRetry(ctx, conn, err)
		return outcomeProvisionFailed
	}
	s.clearRetry(ctx, conn)
	return outcomeProcessed
}

func (s *Service) provision(ctx context.Context, conn *domain.Connection) error {
	pkg, err := s.findPackage(ctx, s.db, conn.PackageID)
	if err != nil {
		return err
	}
	gw, err := s.resolver.ResolveForPackage(ctx, s.db, pkg.GatewayID)
	if err != nil {
		return err
	}
	result, err := s.provisioner.Provision(ctx, gatewaydomain.ProvisionRequest{
		ConnectionID: conn.ID,
		Username:     conn.Username,
		Password:     conn.Password,
		Speed:        pkg.Speed,
		SpeedType:    pkg.SpeedType,
		Gateway:      *gw,
	})
	if err != nil {
		return err
	}
	s.logFor(ctx).Debug("connection.provisioned",
		zap.String("profile", result.Profile),
		zap.String("transport", string(result.Transport)),
		zap.String("verified", string(result.Verified)),
	)
	return nil
}

func (s *Service) queueRetry(ctx context.Context, conn *domain.Connection, cause error) {
	log := s.logFor(ctx)
	log.Error("connection.provision.failed",
		zap.String("connection_id", conn.ID.String()),
		zap.String("username", conn.Username),
		zap.Error(cause),
	)
	if err := s.enqueue(ctx, conn.ID, cause); err != nil {
		log.Error("connection.provision.enqueue_failed", zap.Error(err))
	}
}

func (s *Service) clearRetry(ctx context.Context, conn *domain.Connection) {
	if err := s.repo.DeleteTaskByConnection(ctx, s.db, conn.ID); err != nil {
		s.logFor(ctx).Warn("connection.provision.clear_task_failed", zap.Error(err))
	}
}

func (s *Service) enqueue(ctx context.Context, connectionID snowflake.ID, cause error) error {
	now := s.clock.Now()
	policy := s.policy.Get().ProvisioningRetry
	task, err := s.repo.FindTaskByConnection(ctx, s.db, connectionID)
	if err != nil {
		return err
	}
	if task != nil {
		// a task that gave up starts a fresh backoff schedule
		if task.Status == domain.TaskStatusFailed {
			task.Attempts = 0
			task.NextAttemptAt = now.Add(retryDelay(policy, 1))
		}
		task.Status = domain.TaskStatusPending
		task.LastError = tracing.SafeError(cause).Error()
		task.Metadata = failureMetadata(cause)
		task.UpdatedAt = now
		return s.repo.UpdateTask(ctx, s.db, task)
	}

	err = s.repo.InsertTask(ctx, s.db, &domain.ProvisioningTask{
		ID:            s.genID.Generate(),
		ConnectionID:  connectionID,
		Status:        domain.TaskStatusPending,
		LastError:     tracing.SafeError(cause).Error(),
		NextAttemptAt: now.Add(retryDelay(policy, 1)),
		Metadata:      failureMetadata(cause),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if db.IsDuplicateKeyErr(err) {
		return nil
	}
	return err
}

func (s *Service) RetryProvisioning(ctx context.Context) (domain.JobResult, error) {
	var (
		result  domain.JobResult
		errs    []error
		afterID snowflake.ID
	)
	now := s.clock.Now()
	policy := s.policy.Get().ProvisioningRetry

pages:
	for {
		tasks, err := s.repo.ListDueTasks(ctx, s.db, now, afterID, s.batchSize)
		if err != nil {
			errs = append(errs, fmt.Errorf("list provisioning tasks: %w", err))
			break
		}
		for i := range tasks {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break pages
			}
			task := tasks[i]
			afterID = task.ID
			result.Selected++

			if err := s.retryTask(ctx, &task, policy, &result); err != nil {
				errs = append(errs, fmt.Errorf("provisioning task %s: %w", task.ID, err))
			}
		}
		if len(tasks) < s.batchSize {
			break
		}
	}

	s.schedMetrics.AddBatchProcessed(domain.JobProvisioningRetry, "provisioning_task", result.Processed)
	s.publishQueueDepth(ctx)
	return result, errors.Join(errs...)
}

func (s *Service) retryTask(ctx context.Context, task *domain.ProvisioningTask, policy config.RetryPolicy, result *domain.JobResult) error {
	ctx = logger.WithConnectionID(ctx, task.ConnectionID.String())
	conn, err := s.repo.FindByID(ctx, s.db, task.ConnectionID)
	if err != nil {
		result.Skipped++
		return err
	}
	if conn == nil || conn.Status != domain.StatusActive {
		result.Skipped++
		return s.repo.DeleteTaskByConnection(ctx, s.db, task.ConnectionID)
	}

	provisionErr := s.provision(ctx, conn)
	if provisionErr == nil {
		result.Processed++
		s.logFor(ctx).Info("connection.provision.recovered", zap.Int("attempts", task.Attempts+1))
		return s.repo.DeleteTaskByConnection(ctx, s.db, task.ConnectionID)
	}

	result.Processed++
	result.ProvisionFailed++
	now := s.clock.Now()
	task.Attempts++
	task.LastError = tracing.SafeError(provisionErr).Error()
	task.Metadata = failureMetadata(provisionErr)
	task.UpdatedAt = now
	if task.Attempts >= policy.MaxAttempts {
		task.Status = domain.TaskStatusFailed
		s.logFor(ctx).Error("connection.provision.gave_up",
			zap.Int("attempts", task.Attempts),
			zap.Error(provisionErr),
		)
	} else {
		task.NextAttemptAt = now.Add(retryDelay(policy, task.Attempts+1))
		s.logFor(ctx).Warn("connection.provision.retry_scheduled",
			zap.Int("attempts", task.Attempts),
			zap.Time("next_attempt_at", task.NextAttemptAt),
			zap.Error(provisionErr),
		)
	}
	return s.repo.UpdateTask(ctx, s.db, task)
}

func (s *Service) publishQueueDepth(ctx context.Context) {
	if s.provMetrics == nil {
		return
	}
	for _, status := range []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusFailed} {
		count, err := s.repo.CountTasks(ctx, s.db, status)
		if err != nil {
			s.logFor(ctx).Warn("connection.provision.queue_depth_failed", zap.Error(err))
			return
		}
		s.provMetrics.SetQueueDepth(string(status), count)
	}
}

// retryDelay returns the wait before the given attempt number, starting at 1.
func retryDelay(policy config.RetryPolicy, attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialInterval
	b.MaxInterval = policy.MaxInterval
	b.Multiplier = policy.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.InitialInterval
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func failureMetadata(err error) datatypes.JSONMap {
	meta := datatypes.JSONMap{"reason": "unknown"}
	var perr *gatewaydomain.ProvisionError
	switch {
	case errors.As(err, &perr):
		meta["reason"] = "gateway"
		meta["stage"] = string(perr.Stage)
		meta["gateway_id"] = perr.GatewayID.String()
	case errors.Is(err, gatewaydomain.ErrNoGateway), errors.Is(err, gatewaydomain.ErrGatewayNotFound):
		meta["reason"] = "no_gateway"
	case errors.Is(err, context.DeadlineExceeded):
		meta["reason"] = "timeout"
	}
	return meta
}

package scheduler

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	connectiondomain "github.com/smallbiznis/ispbill/internal/connection/domain"
	obslogger "github.com/smallbiznis/ispbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	"go.uber.org/zap"
)

type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	result    connectiondomain.JobResult
	errored   bool
}

func (s *Scheduler) newJobRun(ctx context.Context, job string) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     ulid.Make().String(),
		batchSize: s.cfg.BatchSize,
		startedAt: time.Now(),
	}
	return obslogger.WithJobRun(ctx, job, run.runID), run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int("batch_size", run.batchSize),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("selected_count", run.result.Selected),
		zap.Int("processed_count", run.result.Processed),
		zap.Int("skipped_count", run.result.Skipped),
		zap.Int("provision_failed_count", run.result.ProvisionFailed),
	}
	log := s.logger(ctx)
	if run.errored || run.result.ProvisionFailed > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logJobError(ctx context.Context, run *jobRun, err error) {
	if err == nil {
		return
	}
	run.errored = true
	s.logger(ctx).Error("scheduler.job.failed",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}

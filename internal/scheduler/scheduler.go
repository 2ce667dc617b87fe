package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/ispbill/internal/clock"
	connectiondomain "github.com/smallbiznis/ispbill/internal/connection/domain"
	"github.com/smallbiznis/ispbill/internal/lock"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	"github.com/smallbiznis/ispbill/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_job")
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	ConnectionSvc connectiondomain.Service
	Config        Config                       `optional:"true"`
	Locker        *lock.Locker                 `optional:"true"`
	Metrics       *obsmetrics.SchedulerMetrics `optional:"true"`
}

type jobFunc func(ctx context.Context) (connectiondomain.JobResult, error)

type job struct {
	name string
	run  jobFunc
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	locker  *lock.Locker
	metrics *obsmetrics.SchedulerMetrics
	jobs    []job
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.ConnectionSvc == nil {
		return nil, ErrInvalidConfig
	}
	svc := p.ConnectionSvc
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		locker:  p.Locker,
		metrics: p.Metrics,
		jobs: []job{
			{connectiondomain.JobNewConnections, svc.ProcessNewConnections},
			{connectiondomain.JobPaidBillings, svc.ProcessPaidBillings},
			{connectiondomain.JobExpiry, svc.ProcessExpiry},
			{connectiondomain.JobPrepareBilling, svc.PrepareBilling},
			{connectiondomain.JobProvisioningRetry, svc.RetryProvisioning},
			{connectiondomain.JobRefreshConnections, svc.ProcessAllConnections},
		},
	}, nil
}

// Jobs lists the job names in run order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	return names
}

// RunJob runs one job by name, whether or not it is enabled for the loop.
func (s *Scheduler) RunJob(ctx context.Context, name string) (connectiondomain.JobResult, error) {
	for _, j := range s.jobs {
		if j.name == name {
			return s.runJob(ctx, j.name, s.cfg.JobTimeout, j.run)
		}
	}
	return connectiondomain.JobResult{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn jobFunc,
) (connectiondomain.JobResult, error) {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(parent, name, timeout+s.cfg.LeaseGrace)
		switch {
		case err != nil:
			s.log.Warn("scheduler.lease.unavailable", zap.String("job", name), zap.Error(err))
		case !ok:
			s.metrics.IncBatchDeferred(name, obsmetrics.SchedulerBatchDeferredReasonLeaseHeld)
			s.log.Debug("scheduler.lease.held", zap.String("job", name))
			return connectiondomain.JobResult{}, nil
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(parent), name, token); err != nil {
					s.log.Warn("scheduler.lease.release_failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name)
	ctx, span := tracing.StartSpan(ctx, "scheduler."+name,
		attribute.String("job", name),
		attribute.String("run_id", run.runID),
	)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	result, err := fn(ctx)
	run.result = result
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	s.logJobError(ctx, run, err)
	s.logJobFinish(ctx, run)
	tracing.EndSpan(span, err)
	if err == nil {
		return result, nil
	}

	// deadline is a soft timeout; the next tick picks up where this one stopped.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return result, nil
	}

	return result, fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs {
		if !s.isJobEnabled(j.name) {
			continue
		}
		_, jobErr := s.runJob(parent, j.name, s.cfg.JobTimeout, j.run)
		err = errors.Join(err, jobErr)
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if runLag := time.Since(nextRun); runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/ispbill/internal/clock"
	connectiondomain "github.com/smallbiznis/ispbill/internal/connection/domain"
	invoicedomain "github.com/smallbiznis/ispbill/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/ispbill/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConnections struct {
	calls []string
	fail  map[string]error
}

func (f *fakeConnections) record(name string) (connectiondomain.JobResult, error) {
	f.calls = append(f.calls, name)
	if err := f.fail[name]; err != nil {
		return connectiondomain.JobResult{}, err
	}
	return connectiondomain.JobResult{Selected: 1, Processed: 1}, nil
}

func (f *fakeConnections) Create(context.Context, connectiondomain.CreateConnectionRequest) (*connectiondomain.Connection, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConnections) GenerateInvoice(context.Context, snowflake.ID) (*invoicedomain.Invoice, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeConnections) Provision(context.Context, snowflake.ID) error {
	return errors.New("not implemented")
}

func (f *fakeConnections) ProcessNewConnections(context.Context) (connectiondomain.JobResult, error) {
	return f.record(connectiondomain.JobNewConnections)
}

func (f *fakeConnections) ProcessAllConnections(context.Context) (connectiondomain.JobResult, error) {
	return f.record(connectiondomain.JobRefreshConnections)
}

func (f *fakeConnections) ProcessExpiry(context.Context) (connectiondomain.JobResult, error) {
	return f.record(connectiondomain.JobExpiry)
}

func (f *fakeConnections) PrepareBilling(context.Context) (connectiondomain.JobResult, error) {
	return f.record(connectiondomain.JobPrepareBilling)
}

func (f *fakeConnections) ProcessPaidBillings(context.Context) (connectiondomain.JobResult, error) {
	return f.record(connectiondomain.JobPaidBillings)
}

func (f *fakeConnections) RetryProvisioning(context.Context) (connectiondomain.JobResult, error) {
	return f.record(connectiondomain.JobProvisioningRetry)
}

func newTestScheduler(t *testing.T, svc connectiondomain.Service, cfg Config) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)),
		ConnectionSvc: svc,
		Config:        cfg,
	})
	require.NoError(t, err)
	return s
}

func TestNewRequiresConnectionService(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop(), Clock: clock.NewSystemClock()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnceRunsEveryJobInOrder(t *testing.T) {
	svc := &fakeConnections{}
	s := newTestScheduler(t, svc, Config{})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{
		connectiondomain.JobNewConnections,
		connectiondomain.JobPaidBillings,
		connectiondomain.JobExpiry,
		connectiondomain.JobPrepareBilling,
		connectiondomain.JobProvisioningRetry,
		connectiondomain.JobRefreshConnections,
	}, svc.calls)
	assert.Equal(t, svc.calls, s.Jobs())
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	svc := &fakeConnections{}
	s := newTestScheduler(t, svc, Config{EnabledJobs: []string{"EXPIRY", "prepare_billing"}})

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{connectiondomain.JobExpiry, connectiondomain.JobPrepareBilling}, svc.calls)
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	svc := &fakeConnections{fail: map[string]error{connectiondomain.JobPaidBillings: boom}}
	s := newTestScheduler(t, svc, Config{})

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), connectiondomain.JobPaidBillings)
	assert.Len(t, svc.calls, 6)
}

func TestRunJobByName(t *testing.T) {
	svc := &fakeConnections{}
	s := newTestScheduler(t, svc, Config{EnabledJobs: []string{connectiondomain.JobExpiry}})

	result, err := s.RunJob(context.Background(), connectiondomain.JobPrepareBilling)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, []string{connectiondomain.JobPrepareBilling}, svc.calls)

	_, err = s.RunJob(context.Background(), "compact_ledger")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestIsJobEnabled(t *testing.T) {
	tests := []struct {
		name    string
		enabled []string
		job     string
		want    bool
	}{
		{name: "empty enables all", job: connectiondomain.JobExpiry, want: true},
		{name: "listed", enabled: []string{"expiry"}, job: connectiondomain.JobExpiry, want: true},
		{name: "case insensitive", enabled: []string{"Paid_Billings"}, job: connectiondomain.JobPaidBillings, want: true},
		{name: "not listed", enabled: []string{"expiry"}, job: connectiondomain.JobPrepareBilling, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scheduler{cfg: Config{EnabledJobs: tt.enabled}}
			assert.Equal(t, tt.want, s.isJobEnabled(tt.job))
		})
	}
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	defer restore()

	obsmetrics.ResetSchedulerMetricsForTest()
	m := obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "ispbill",
		Environment: "test",
	})

	s := &Scheduler{
		log:     zap.NewNop(),
		cfg:     DefaultConfig(),
		clock:   clock.NewFakeClock(time.Time{}),
		metrics: m,
	}
	_, err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) (connectiondomain.JobResult, error) {
		<-ctx.Done()
		return connectiondomain.JobResult{}, ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "ispbill",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ispbill_scheduler_job_timeouts_total", labels))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ispbill_scheduler_job_runs_total", labels))

	errorLabels := map[string]string{
		"service": "ispbill",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "ispbill_scheduler_job_errors_total", errorLabels))
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

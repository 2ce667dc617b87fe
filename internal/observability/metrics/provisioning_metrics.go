package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ProvisionOutcomeSuccess = "success"
	ProvisionOutcomeFailure = "failure"

	VerifyOutcomeAccept  = "accept"
	VerifyOutcomeReject  = "reject"
	VerifyOutcomeError   = "error"
	VerifyOutcomeSkipped = "skipped"
)

// ProvisioningMetrics tracks radcheck writes against RADIUS gateways.
type ProvisioningMetrics struct {
	attempts      *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
}

var (
	provisioningMetricsOnce sync.Once
	provisioningMetrics     *ProvisioningMetrics
)

// Provisioning returns the singleton provisioning metrics registry.
func Provisioning() *ProvisioningMetrics {
	return ProvisioningWithConfig(Config{})
}

// ProvisioningWithConfig returns the singleton provisioning metrics registry using config labels.
func ProvisioningWithConfig(cfg Config) *ProvisioningMetrics {
	provisioningMetricsOnce.Do(func() {
		provisioningMetrics = newProvisioningMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return provisioningMetrics
}

// ResetProvisioningMetricsForTest resets the provisioning metrics singleton for tests.
func ResetProvisioningMetricsForTest() {
	provisioningMetricsOnce = sync.Once{}
	provisioningMetrics = nil
}

func newProvisioningMetrics(registerer prometheus.Registerer, cfg Config) *ProvisioningMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ispbill_provisioning_attempts_total",
		Help:        "radcheck provisioning attempts by transport and outcome.",
		ConstLabels: labels,
	}, []string{"transport", "outcome"})
	stageFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ispbill_provisioning_stage_failures_total",
		Help:        "radcheck provisioning failures by failing stage.",
		ConstLabels: labels,
	}, []string{"transport", "stage"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "ispbill_provisioning_duration_seconds",
		Help:        "Time spent writing radcheck rows to a gateway.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		ConstLabels: labels,
	}, []string{"transport"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "ispbill_provisioning_verifications_total",
		Help:        "RADIUS Access-Request probes after provisioning by outcome.",
		ConstLabels: labels,
	}, []string{"outcome"})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "ispbill_provisioning_queue_depth",
		Help:        "Provisioning retry tasks by status.",
		ConstLabels: labels,
	}, []string{"status"})

	registerer.MustRegister(attempts, stageFailures, duration, verifications, queueDepth)

	return &ProvisioningMetrics{
		attempts:      attempts,
		stageFailures: stageFailures,
		duration:      duration,
		verifications: verifications,
		queueDepth:    queueDepth,
	}
}

// ObserveAttempt records one provisioning call.
func (m *ProvisioningMetrics) ObserveAttempt(transport, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(transport, outcome).Inc()
	m.duration.WithLabelValues(transport).Observe(elapsed.Seconds())
}

// IncStageFailure records the stage at which provisioning stopped.
func (m *ProvisioningMetrics) IncStageFailure(transport, stage string) {
	if m == nil {
		return
	}
	m.stageFailures.WithLabelValues(transport, stage).Inc()
}

// IncVerification records the outcome of a post-provision RADIUS probe.
func (m *ProvisioningMetrics) IncVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// SetQueueDepth publishes the number of retry tasks in a status.
func (m *ProvisioningMetrics) SetQueueDepth(status string, depth int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(status).Set(float64(depth))
}

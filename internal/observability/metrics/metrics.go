package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes billing-level instruments pushed over OTLP.
type Metrics struct {
	invoicesPosted  metric.Int64Counter
	paymentsApplied metric.Int64Counter
	ledgerEntries   metric.Int64Counter
	reconciliations metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the billing instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "ispbill"
	}
	meter := provider.Meter(name)

	invoicesPosted, err := meter.Int64Counter("ispbill_invoices_posted_total")
	if err != nil {
		return nil, err
	}
	paymentsApplied, err := meter.Int64Counter("ispbill_payments_applied_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("ispbill_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("ispbill_reconciliations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesPosted:  invoicesPosted,
		paymentsApplied: paymentsApplied,
		ledgerEntries:   ledgerEntries,
		reconciliations: reconciliations,
	}, nil
}

// NewNoop returns instruments bound to a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordInvoicePosted counts invoices moved to posted.
func (m *Metrics) RecordInvoicePosted(ctx context.Context, moveType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("move_type", strings.TrimSpace(moveType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.invoicesPosted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentApplied counts registered payments.
func (m *Metrics) RecordPaymentApplied(ctx context.Context, paymentState string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("payment_state", strings.TrimSpace(paymentState)))
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry counts ledger entries by source.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation counts reconcile attempts by outcome.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"move_type":     {},
	"payment_state": {},
	"source_type":   {},
	"outcome":       {},
	"reason":        {},
	"transport":     {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

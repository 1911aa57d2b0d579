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

// Metrics exposes ledger instruments.
type Metrics struct {
	ledgerEntries       metric.Int64Counter
	ledgerTransitions   metric.Int64Counter
	concurrencyRetries  metric.Int64Counter
	concurrencyExhaust  metric.Int64Counter
	payoutItems         metric.Int64Counter
	reconciliations     metric.Int64Counter
	balanceDrifts       metric.Int64Counter
	reconciliationDelta metric.Int64Histogram
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "marketledger"
	}
	meter := provider.Meter(name)

	ledgerEntries, err := meter.Int64Counter("marketledger_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	ledgerTransitions, err := meter.Int64Counter("marketledger_ledger_transitions_total")
	if err != nil {
		return nil, err
	}
	concurrencyRetries, err := meter.Int64Counter("marketledger_concurrency_retries_total")
	if err != nil {
		return nil, err
	}
	concurrencyExhaust, err := meter.Int64Counter("marketledger_concurrency_exhausted_total")
	if err != nil {
		return nil, err
	}
	payoutItems, err := meter.Int64Counter("marketledger_payout_items_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("marketledger_reconciliations_total")
	if err != nil {
		return nil, err
	}
	balanceDrifts, err := meter.Int64Counter("marketledger_balance_drifts_total")
	if err != nil {
		return nil, err
	}
	reconciliationDelta, err := meter.Int64Histogram("marketledger_reconciliation_difference_minor_units")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ledgerEntries:       ledgerEntries,
		ledgerTransitions:   ledgerTransitions,
		concurrencyRetries:  concurrencyRetries,
		concurrencyExhaust:  concurrencyExhaust,
		payoutItems:         payoutItems,
		reconciliations:     reconciliations,
		balanceDrifts:       balanceDrifts,
		reconciliationDelta: reconciliationDelta,
	}, nil
}

// NewNoop returns instruments backed by the noop provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, txnType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("transaction_type", strings.TrimSpace(txnType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerTransition counts status changes of ledger entries.
func (m *Metrics) RecordLedgerTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("from_status", from),
		attribute.String("to_status", to),
	)
	m.ledgerTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConcurrencyRetry counts a retried unit of work.
func (m *Metrics) RecordConcurrencyRetry(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", operation))
	m.concurrencyRetries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConcurrencyExhausted counts a unit of work that ran out of attempts.
func (m *Metrics) RecordConcurrencyExhausted(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", operation))
	m.concurrencyExhaust.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayoutItem counts payout items by outcome.
func (m *Metrics) RecordPayoutItem(ctx context.Context, status, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", status),
		attribute.String("reason", reason),
	)
	m.payoutItems.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReconciliation counts reconciliation outcomes and the size of the gap.
func (m *Metrics) RecordReconciliation(ctx context.Context, territoryID, status string, difference int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("territory_id", territoryID),
		attribute.String("status", status),
	)
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
	if difference < 0 {
		difference = -difference
	}
	m.reconciliationDelta.Record(ctx, difference, metric.WithAttributes(attrs...))
}

// RecordBalanceDrift counts seller balances that disagree with their transactions.
func (m *Metrics) RecordBalanceDrift(ctx context.Context, territoryID string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("territory_id", territoryID))
	m.balanceDrifts.Add(ctx, int64(count), metric.WithAttributes(attrs...))
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
	"territory_id":     {},
	"transaction_type": {},
	"from_status":      {},
	"to_status":        {},
	"operation":        {},
	"status":           {},
	"reason":           {},
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

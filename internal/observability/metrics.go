package observability

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/m-kis/merlya-sub001/internal/types"
)

// Metric name constants for action execution observability.
// Centralized here to keep names consistent and prevent typos.
const (
	MetricActions        = "merlya.actions.total"
	MetricActionDuration = "merlya.actions.duration_ms"
	MetricSSHDials       = "merlya.ssh.dials.total"
	MetricPoolSize       = "merlya.ssh.pool.size"
	MetricCircuitOpens   = "merlya.ssh.circuit.opens.total"
)

// MetricsRecorder provides an interface for recording operational metrics
// during action execution. It decouples the executor from a concrete
// metrics backend.
//
// Implementations must be safe for concurrent use; actions may complete
// from multiple goroutines.
type MetricsRecorder interface {
	// RecordCounter increments a counter metric by the given value.
	RecordCounter(name string, value int64, labels map[string]string)

	// RecordGauge sets a gauge metric to the given value.
	RecordGauge(name string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram metric.
	RecordHistogram(name string, value float64, labels map[string]string)
}

// RecordAction records the standard metric set for one execution attempt:
// an action counter and a duration histogram, labeled with the target,
// command class, exit code, success flag and risk level. Every attempt is
// recorded regardless of which dispatch branch it took.
func RecordAction(r MetricsRecorder, target string, class types.CommandClass, durationMs float64, exitCode int, success bool, risk types.RiskLevel) {
	if r == nil {
		return
	}
	labels := map[string]string{
		"target":        target,
		"command_class": string(class),
		"exit_code":     strconv.Itoa(exitCode),
		"success":       strconv.FormatBool(success),
		"risk_level":    risk.String(),
	}
	r.RecordCounter(MetricActions, 1, labels)
	r.RecordHistogram(MetricActionDuration, durationMs, labels)
}

// NoOpMetricsRecorder discards all metrics. Used in tests and when metrics
// are disabled.
type NoOpMetricsRecorder struct{}

// NewNoOpMetricsRecorder creates a new no-op metrics recorder.
func NewNoOpMetricsRecorder() *NoOpMetricsRecorder {
	return &NoOpMetricsRecorder{}
}

// RecordCounter is a no-op implementation that discards counter metrics.
func (n *NoOpMetricsRecorder) RecordCounter(name string, value int64, labels map[string]string) {
}

// RecordGauge is a no-op implementation that discards gauge metrics.
func (n *NoOpMetricsRecorder) RecordGauge(name string, value float64, labels map[string]string) {
}

// RecordHistogram is a no-op implementation that discards histogram metrics.
func (n *NoOpMetricsRecorder) RecordHistogram(name string, value float64, labels map[string]string) {
}

// InitMeterProvider initializes a meter provider. When disabled, a noop
// provider is returned so call sites never need nil checks. When enabled,
// a Prometheus exporter is registered; the scrape endpoint is served by
// the CLI layer.
func InitMeterProvider(enabled bool) (metric.MeterProvider, error) {
	if !enabled {
		return noop.NewMeterProvider(), nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	return provider, nil
}

// OTelMetricsRecorder implements MetricsRecorder using OpenTelemetry.
//
// Instruments are lazily created on first use and cached for subsequent
// recordings. Reader lock for instrument lookups, writer lock for creation.
type OTelMetricsRecorder struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	gauges     map[string]metric.Float64Gauge
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

// NewOTelMetricsRecorder creates a new OpenTelemetry-based metrics recorder.
func NewOTelMetricsRecorder(meter metric.Meter) *OTelMetricsRecorder {
	return &OTelMetricsRecorder{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		gauges:     make(map[string]metric.Float64Gauge),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// RecordCounter increments a counter metric by the given value.
func (r *OTelMetricsRecorder) RecordCounter(name string, value int64, labels map[string]string) {
	counter := r.getOrCreateCounter(name)
	if counter == nil {
		return
	}

	attrs := labelsToAttributes(labels)
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

// RecordGauge sets a gauge metric to the given value.
func (r *OTelMetricsRecorder) RecordGauge(name string, value float64, labels map[string]string) {
	gauge := r.getOrCreateGauge(name)
	if gauge == nil {
		return
	}

	attrs := labelsToAttributes(labels)
	gauge.Record(context.Background(), value, metric.WithAttributes(attrs...))
}

// RecordHistogram records a value in a histogram metric.
func (r *OTelMetricsRecorder) RecordHistogram(name string, value float64, labels map[string]string) {
	histogram := r.getOrCreateHistogram(name)
	if histogram == nil {
		return
	}

	attrs := labelsToAttributes(labels)
	histogram.Record(context.Background(), value, metric.WithAttributes(attrs...))
}

// getOrCreateCounter retrieves or creates a counter instrument.
func (r *OTelMetricsRecorder) getOrCreateCounter(name string) metric.Int64Counter {
	r.mu.RLock()
	counter, exists := r.counters[name]
	r.mu.RUnlock()

	if exists {
		return counter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check in case another goroutine created it
	if counter, exists := r.counters[name]; exists {
		return counter
	}

	counter, err := r.meter.Int64Counter(name)
	if err != nil {
		return nil
	}

	r.counters[name] = counter
	return counter
}

// getOrCreateGauge retrieves or creates a gauge instrument.
func (r *OTelMetricsRecorder) getOrCreateGauge(name string) metric.Float64Gauge {
	r.mu.RLock()
	gauge, exists := r.gauges[name]
	r.mu.RUnlock()

	if exists {
		return gauge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gauge, exists := r.gauges[name]; exists {
		return gauge
	}

	gauge, err := r.meter.Float64Gauge(name)
	if err != nil {
		return nil
	}

	r.gauges[name] = gauge
	return gauge
}

// getOrCreateHistogram retrieves or creates a histogram instrument.
func (r *OTelMetricsRecorder) getOrCreateHistogram(name string) metric.Float64Histogram {
	r.mu.RLock()
	histogram, exists := r.histograms[name]
	r.mu.RUnlock()

	if exists {
		return histogram
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if histogram, exists := r.histograms[name]; exists {
		return histogram
	}

	histogram, err := r.meter.Float64Histogram(name)
	if err != nil {
		return nil
	}

	r.histograms[name] = histogram
	return histogram
}

// labelsToAttributes converts a string map to OpenTelemetry attributes.
func labelsToAttributes(labels map[string]string) []attribute.KeyValue {
	if labels == nil {
		return []attribute.KeyValue{}
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// Ensure implementations satisfy MetricsRecorder at compile time
var (
	_ MetricsRecorder = (*OTelMetricsRecorder)(nil)
	_ MetricsRecorder = (*NoOpMetricsRecorder)(nil)
)

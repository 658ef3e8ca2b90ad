package observability

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-kis/merlya-sub001/internal/types"
)

// captureRecorder records metric calls for assertions.
type captureRecorder struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string][]float64
	labels     map[string]map[string]string
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{
		counters:   make(map[string]int64),
		histograms: make(map[string][]float64),
		labels:     make(map[string]map[string]string),
	}
}

func (c *captureRecorder) RecordCounter(name string, value int64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += value
	c.labels[name] = labels
}

func (c *captureRecorder) RecordGauge(name string, value float64, labels map[string]string) {}

func (c *captureRecorder) RecordHistogram(name string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms[name] = append(c.histograms[name], value)
	c.labels[name] = labels
}

func TestRecordAction(t *testing.T) {
	rec := newCaptureRecorder()

	RecordAction(rec, "prod-db", types.CommandClassRemote, 42.5, 0, true, types.RiskLevelLow)

	assert.Equal(t, int64(1), rec.counters[MetricActions])
	require.Len(t, rec.histograms[MetricActionDuration], 1)
	assert.Equal(t, 42.5, rec.histograms[MetricActionDuration][0])

	labels := rec.labels[MetricActions]
	assert.Equal(t, "prod-db", labels["target"])
	assert.Equal(t, "remote", labels["command_class"])
	assert.Equal(t, "0", labels["exit_code"])
	assert.Equal(t, "true", labels["success"])
	assert.Equal(t, "low", labels["risk_level"])
}

func TestRecordAction_NilRecorder(t *testing.T) {
	// Must not panic
	RecordAction(nil, "prod-db", types.CommandClassLocal, 1, 0, true, types.RiskLevelLow)
}

func TestInitMeterProvider_Disabled(t *testing.T) {
	provider, err := InitMeterProvider(false)
	require.NoError(t, err)
	require.NotNil(t, provider)

	// Noop provider still hands out usable meters
	rec := NewOTelMetricsRecorder(provider.Meter("merlya"))
	rec.RecordCounter(MetricSSHDials, 1, map[string]string{"host": "h"})
	rec.RecordHistogram(MetricActionDuration, 10, nil)
	rec.RecordGauge(MetricPoolSize, 2, nil)
}

func TestNoOpMetricsRecorder(t *testing.T) {
	rec := NewNoOpMetricsRecorder()
	rec.RecordCounter("x", 1, nil)
	rec.RecordGauge("x", 1, nil)
	rec.RecordHistogram("x", 1, nil)
}

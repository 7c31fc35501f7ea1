package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func withManualReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	return reader
}

func TestRecordCounterAccumulates(t *testing.T) {
	reader := withManualReader(t)
	m := NewMetricInstruments("test-meter")
	ctx := context.Background()

	require.NoError(t, m.RecordCounter(ctx, "requests.total", 1))
	require.NoError(t, m.RecordCounter(ctx, "requests.total", 2))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "requests.total" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(3), total)
}

func TestRecordCounterCachesInstruments(t *testing.T) {
	withManualReader(t)
	m := NewMetricInstruments("test-meter")
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, m.RecordCounter(ctx, "hot.path", 1))
	}
	require.NoError(t, m.RecordCounter(ctx, "other.counter", 1))

	m.mu.RLock()
	defer m.mu.RUnlock()
	assert.Len(t, m.counters, 2, "one instrument per name, not per call")
}

func TestRecordHistogramCachesInstruments(t *testing.T) {
	withManualReader(t)
	m := NewMetricInstruments("test-meter")
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, m.RecordHistogram(ctx, "latency.ms", float64(i)))
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	assert.Len(t, m.histograms, 1)
}

func TestRecordCounterConcurrentFirstUse(t *testing.T) {
	withManualReader(t)
	m := NewMetricInstruments("test-meter")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.RecordCounter(ctx, "raced.counter", 1)
		}()
	}
	wg.Wait()

	m.mu.RLock()
	defer m.mu.RUnlock()
	assert.Len(t, m.counters, 1, "concurrent first use must create a single instrument")
}

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestNew_WithoutEndpointIsDisabled(t *testing.T) {
	p, err := New(context.Background(), Config{ServiceName: "vaicheck"})
	require.NoError(t, err)
	assert.Nil(t, p.meterProvider)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewWithReader_GlobalMeterReachesReader(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()

	p, err := NewWithReader(ctx, Config{
		ServiceName:    "vaicheck",
		ServiceVersion: "test",
		Environment:    "test",
	}, reader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(ctx) })

	counter, err := otel.Meter("vaicheck.test").Int64Counter("vaicheck.test.events")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	name, ok := rm.Resource.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "vaicheck", name.AsString())

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "vaicheck.test.events" {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), total)
}

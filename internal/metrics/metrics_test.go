package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_Enabled(t *testing.T) {
	// the exporter connects lazily, so an unreachable endpoint is fine here
	shutdown, err := Setup(context.Background(), Config{OTLPEndpoint: "127.0.0.1:1", ServiceName: "subdns-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
}

func TestNewMeterProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := NewMeterProvider(nil, reader)
	defer provider.Shutdown(context.Background())

	counter, err := provider.Meter("test").Int64Counter("ticks")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

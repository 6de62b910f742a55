package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zapcore"

	"marketplace/internal/telemetry"
)

func TestMetricsRecord(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := telemetry.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m.Purchases.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	m.Purchases.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "ok")))
	m.RevenueAtomic.Add(ctx, 1e19)
	m.RevenueAtomic.Add(ctx, 1e19)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	got := map[string]int64{}
	revenue := 0.0
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch sum := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range sum.DataPoints {
					got[md.Name] += dp.Value
				}
			case metricdata.Sum[float64]:
				for _, dp := range sum.DataPoints {
					revenue += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), got["marketplace_purchases_total"])
	assert.InEpsilon(t, 2e19, revenue, 1e-9)
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	core, tracer, meter, shutdown, err := telemetry.Setup(context.Background(), "test", "")
	require.NoError(t, err)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
	assert.NotNil(t, tracer)
	assert.NotNil(t, meter)
	shutdown(context.Background())
}

func TestNoop(t *testing.T) {
	m := telemetry.Noop()
	require.NotNil(t, m)
	m.ItemsListed.Add(context.Background(), 1)
}

package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type Metrics struct {
	ItemsListed      metric.Int64Counter
	Purchases        metric.Int64Counter
	RevenueAtomic    metric.Float64Counter
	Withdrawals      metric.Int64Counter
	EventsPublished  metric.Int64Counter
	PurchaseDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	listed, err := meter.Int64Counter("marketplace_items_listed_total",
		metric.WithDescription("Items listed or relisted by the owner"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	purchases, err := meter.Int64Counter("marketplace_purchases_total",
		metric.WithDescription("Purchase attempts by outcome"),
		metric.WithUnit("{purchase}"),
	)
	if err != nil {
		return nil, err
	}

	// Float because amounts outgrow int64; precision loss is fine for a rate.
	revenue, err := meter.Float64Counter("marketplace_revenue_atomic_total",
		metric.WithDescription("Payments captured by the ledger, in atomic units"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, err
	}

	withdrawals, err := meter.Int64Counter("marketplace_withdrawals_total",
		metric.WithDescription("Withdraw calls by outcome"),
		metric.WithUnit("{withdrawal}"),
	)
	if err != nil {
		return nil, err
	}

	published, err := meter.Int64Counter("marketplace_events_published_total",
		metric.WithDescription("Ledger events published to Kafka"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("marketplace_purchase_duration_seconds",
		metric.WithDescription("Duration of purchase settlement"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ItemsListed:      listed,
		Purchases:        purchases,
		RevenueAtomic:    revenue,
		Withdrawals:      withdrawals,
		EventsPublished:  published,
		PurchaseDuration: duration,
	}, nil
}

// Noop returns metrics that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

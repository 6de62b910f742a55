package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"marketplace/internal/domain"
	"marketplace/internal/ledger"
	"marketplace/internal/telemetry"
	"marketplace/internal/wallet"
)

// MarketService settles purchases across the buyer's wallet and the ledger.
type MarketService struct {
	Ledger  *ledger.Ledger
	Wallet  wallet.Accounts
	Log     *zap.Logger
	Metrics *telemetry.Metrics
	tracer  trace.Tracer
}

func NewMarketService(l *ledger.Ledger, w wallet.Accounts, log *zap.Logger, metrics *telemetry.Metrics) *MarketService {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &MarketService{
		Ledger:  l,
		Wallet:  w,
		Log:     log,
		Metrics: metrics,
		tracer:  otel.Tracer("marketplace/services"),
	}
}

// Purchase records the purchase in the ledger and debits payment from buyer
// in the same transaction. Either both happen or neither does.
func (s *MarketService) Purchase(ctx context.Context, buyer domain.Address, id uint64, payment domain.Amount) (domain.Order, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "purchase",
		trace.WithAttributes(
			attribute.String("buyer", buyer.String()),
			attribute.Int64("item_id", int64(id)),
			attribute.String("payment", payment.String()),
		),
	)
	defer span.End()

	order, err := s.Ledger.BuyWith(ctx, buyer, id, payment, func(ctx context.Context) error {
		return s.Wallet.Debit(ctx, buyer, payment)
	})

	status := "ok"
	switch {
	case err == nil:
	case ledger.IsClientError(err) || errors.Is(err, wallet.ErrInsufficientFunds) || errors.Is(err, wallet.ErrInvalidAmount):
		status = "rejected"
	default:
		status = "failed"
		s.Log.Error("purchase failed",
			zap.String("buyer", buyer.String()),
			zap.Uint64("item_id", id),
			zap.Stringer("payment", payment),
			zap.Error(err),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	s.Metrics.Purchases.Add(ctx, 1, attrs)
	s.Metrics.PurchaseDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	return order, err
}

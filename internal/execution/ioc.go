package execution

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/adapter"
	"github.com/arvion-labs/perpcore/internal/domain"
)

// IOCConfig tunes the immediate-or-cancel taker strategy.
type IOCConfig struct {
	// PriceAdjustmentBps is added to the ask (buy) or subtracted from the bid
	// (sell) to improve fill probability.
	PriceAdjustmentBps float64
	// MaxCrossBps caps how far the adjusted price may cross the spread.
	MaxCrossBps float64
}

// DefaultIOCConfig matches the original's Week 1 defaults.
func DefaultIOCConfig() IOCConfig {
	return IOCConfig{PriceAdjustmentBps: 10.0, MaxCrossBps: 25.0}
}

// IOCExecutor submits an immediate-or-cancel order and returns its terminal
// state: FILLED (possibly partial), CANCELED, or REJECTED.
type IOCExecutor struct {
	adapter adapter.Adapter
	cfg     IOCConfig
	log     zerolog.Logger
}

// NewIOCExecutor constructs an IOCExecutor over the venue adapter.
func NewIOCExecutor(a adapter.Adapter, cfg IOCConfig, log zerolog.Logger) *IOCExecutor {
	if cfg.MaxCrossBps <= 0 {
		cfg.MaxCrossBps = 25.0
	}
	return &IOCExecutor{adapter: a, cfg: cfg, log: log.With().Str("component", "ioc_executor").Logger()}
}

var errIOCEmptyBookSide = errors.New("empty book side for ioc pricing")

// Execute submits the IOC order at a price adjusted to improve fill
// probability, capped so it never crosses more than MaxCrossBps.
func (e *IOCExecutor) Execute(ctx context.Context, side domain.Side, size decimal.Decimal, md domain.MarketData) (domain.Order, Outcome) {
	price, err := e.executionPrice(md, side)
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", md.Symbol).Msg("ioc_execution_skipped_no_liquidity")
		return domain.Order{}, OutcomeRejected
	}

	nonce := uuid.NewString()
	result, err := e.adapter.PlaceOrder(ctx, adapter.PlaceRequest{
		Nonce:  nonce,
		Symbol: md.Symbol,
		Side:   side,
		Kind:   domain.KindIOC,
		Price:  price,
		Size:   size,
	})
	if err != nil {
		e.log.Warn().Err(err).Str("symbol", md.Symbol).Msg("ioc_order_rejected")
		return domain.Order{Symbol: md.Symbol, Side: side, Price: price, Size: size, Status: domain.StatusRejected, ErrorMessage: err.Error()}, OutcomeRejected
	}

	order, err := e.adapter.GetOrder(ctx, result.OrderID)
	if err != nil {
		e.log.Error().Err(err).Str("order_id", result.OrderID).Msg("ioc_order_status_query_error")
		return domain.Order{}, OutcomeRejected
	}

	e.log.Info().
		Str("symbol", md.Symbol).
		Str("order_id", order.ID).
		Str("status", order.Status.String()).
		Msg("ioc_order_executed")

	switch order.Status {
	case domain.StatusFilled, domain.StatusPartiallyFilled:
		if order.FilledSize.IsPositive() {
			return order, OutcomeFilled
		}
		return order, OutcomeTimedOut
	default:
		return order, OutcomeRejected
	}
}

func (e *IOCExecutor) executionPrice(md domain.MarketData, side domain.Side) (decimal.Decimal, error) {
	adjustment := decimal.NewFromFloat(e.cfg.PriceAdjustmentBps / 10000)
	maxAdjustment := decimal.NewFromFloat(math.Min(e.cfg.PriceAdjustmentBps, e.cfg.MaxCrossBps) / 10000)
	if adjustment.GreaterThan(maxAdjustment) {
		adjustment = maxAdjustment
	}

	if side == domain.Buy {
		ask, ok := md.BestAsk()
		if !ok {
			return decimal.Zero, errIOCEmptyBookSide
		}
		return ask.Price.Mul(decimal.NewFromInt(1).Add(adjustment)), nil
	}
	bid, ok := md.BestBid()
	if !ok {
		return decimal.Zero, errIOCEmptyBookSide
	}
	return bid.Price.Mul(decimal.NewFromInt(1).Sub(adjustment)), nil
}

// Package execution implements the order-placement strategies the trading
// loop routes signals through: a shallow passive maker, an immediate-or-
// cancel taker, and the hybrid router that chooses between them by
// confidence band. Grounded on execution/shallow_maker_executor.py,
// execution/ioc_executor.py and execution/hybrid_executor.py.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/adapter"
	"github.com/arvion-labs/perpcore/internal/domain"
)

// ShallowMakerConfig tunes the one-tick-inside-the-touch maker strategy.
type ShallowMakerConfig struct {
	TimeoutHigh   time.Duration
	TimeoutMedium time.Duration
	TickOffset    decimal.Decimal
	PostOnly      bool
	PollInterval  time.Duration
}

// DefaultShallowMakerConfig matches the original's Week 1.5 defaults.
func DefaultShallowMakerConfig() ShallowMakerConfig {
	return ShallowMakerConfig{
		TimeoutHigh:   5 * time.Second,
		TimeoutMedium: 3 * time.Second,
		TickOffset:    decimal.NewFromFloat(0.1),
		PostOnly:      true,
		PollInterval:  100 * time.Millisecond, // >=10Hz polling floor
	}
}

// ShallowMakerExecutor places a limit order one tick inside the opposite
// side of the book and waits, by confidence, up to 5s (HIGH) or 3s
// (MEDIUM) for a fill before canceling.
type ShallowMakerExecutor struct {
	adapter adapter.Adapter
	cfg     ShallowMakerConfig
	log     zerolog.Logger
}

// NewShallowMakerExecutor constructs a ShallowMakerExecutor over the venue
// adapter.
func NewShallowMakerExecutor(a adapter.Adapter, cfg ShallowMakerConfig, log zerolog.Logger) *ShallowMakerExecutor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &ShallowMakerExecutor{adapter: a, cfg: cfg, log: log.With().Str("component", "shallow_maker").Logger()}
}

// Execute submits the maker order and polls until it fills, is rejected, or
// times out. The returned Order reflects the last known state even on
// timeout — any partial fill received before cancellation is preserved so
// the caller can still attribute it — while Outcome reports whether the
// attempt counts as a full maker fill.
func (e *ShallowMakerExecutor) Execute(ctx context.Context, side domain.Side, size decimal.Decimal, confidence domain.Confidence, md domain.MarketData) (domain.Order, Outcome) {
	t := newTracker()

	price, err := e.shallowMakerPrice(md, side)
	if err != nil {
		t.move(stateSkipped)
		e.log.Warn().Err(err).Str("symbol", md.Symbol).Msg("execution_skipped_no_liquidity")
		return domain.Order{}, OutcomeSkipped
	}

	timeout := e.cfg.TimeoutMedium
	if confidence == domain.High {
		timeout = e.cfg.TimeoutHigh
	}

	nonce := uuid.NewString()
	result, err := e.adapter.PlaceOrder(ctx, adapter.PlaceRequest{
		Nonce:    nonce,
		Symbol:   md.Symbol,
		Side:     side,
		Kind:     domain.KindLimit,
		Price:    price,
		Size:     size,
		PostOnly: e.cfg.PostOnly,
	})
	if err != nil {
		t.move(stateMakerPending)
		t.move(stateRejected)
		e.log.Warn().Err(err).Str("symbol", md.Symbol).Msg("shallow_maker_order_rejected")
		return domain.Order{Symbol: md.Symbol, Side: side, Price: price, Size: size, Status: domain.StatusRejected, ErrorMessage: err.Error()}, OutcomeRejected
	}
	t.move(stateMakerPending)

	e.log.Info().
		Str("symbol", md.Symbol).
		Str("side", string(side)).
		Str("price", price.String()).
		Str("size", size.String()).
		Dur("timeout", timeout).
		Msg("executing_shallow_maker_order")

	order, outcome := e.waitForFill(ctx, result.OrderID, timeout)
	switch outcome {
	case OutcomeFilled:
		t.move(stateFilled)
	case OutcomeRejected:
		t.move(stateRejected)
	default:
		t.move(stateCanceledByTimeout)
	}
	return order, outcome
}

func (e *ShallowMakerExecutor) waitForFill(ctx context.Context, orderID string, timeout time.Duration) (domain.Order, Outcome) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		order, err := e.adapter.GetOrder(ctx, orderID)
		if err == nil {
			switch order.Status {
			case domain.StatusFilled:
				return order, OutcomeFilled
			case domain.StatusRejected, domain.StatusCanceled, domain.StatusExpired:
				return order, OutcomeRejected
			}
		}

		if time.Now().After(deadline) {
			if cancelErr := e.adapter.CancelOrder(ctx, orderID); cancelErr != nil {
				e.log.Error().Err(cancelErr).Str("order_id", orderID).Msg("order_cancellation_error")
			}
			final, _ := e.adapter.GetOrder(ctx, orderID)
			final.Status = domain.StatusCanceled
			e.log.Warn().Str("order_id", orderID).Dur("timeout", timeout).Msg("shallow_maker_order_timeout_cancelled")
			return final, OutcomeTimedOut
		}

		select {
		case <-ctx.Done():
			_ = e.adapter.CancelOrder(ctx, orderID)
			return order, OutcomeTimedOut
		case <-ticker.C:
		}
	}
}

var errEmptyBookSide = errors.New("empty book side for shallow maker pricing")

func (e *ShallowMakerExecutor) shallowMakerPrice(md domain.MarketData, side domain.Side) (decimal.Decimal, error) {
	if side == domain.Buy {
		bid, ok := md.BestBid()
		if !ok {
			return decimal.Zero, errEmptyBookSide
		}
		return bid.Price.Add(e.cfg.TickOffset), nil
	}
	ask, ok := md.BestAsk()
	if !ok {
		return decimal.Zero, errEmptyBookSide
	}
	return ask.Price.Sub(e.cfg.TickOffset), nil
}

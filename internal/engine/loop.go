// Package engine ties the book, signal, risk, execution, and monitoring
// layers together into the per-symbol cooperative sequencer of spec §4.13,
// grounded on the teacher's cmd/paper for-select dispatch loop generalized
// from a single shared loop into one goroutine per symbol.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/cost"
	"github.com/arvion-labs/perpcore/internal/domain"
	"github.com/arvion-labs/perpcore/internal/execution"
	"github.com/arvion-labs/perpcore/internal/marketdata"
	"github.com/arvion-labs/perpcore/internal/metrics"
	"github.com/arvion-labs/perpcore/internal/monitor"
	"github.com/arvion-labs/perpcore/internal/pnl"
	"github.com/arvion-labs/perpcore/internal/risk"
	"github.com/arvion-labs/perpcore/internal/signalengine"
)

// Config tunes the intent sizing and staleness guard, the Go shape of
// spec's `size = min(base_size, k · |value| · nav / mid)` and the
// non-blocking staleness skip of step 1.
type Config struct {
	Symbol       string
	BaseSize     decimal.Decimal
	SizeK        float64
	MaxStaleness time.Duration
	DryRun       bool
}

// TradingLoop is the single-threaded per-symbol sequencer: read snapshot,
// compute/aggregate/classify signals, size the intent, gate through risk,
// execute, and fan the fill out to position/attribution/fill-rate/cost
// bookkeeping.
type TradingLoop struct {
	cfg Config
	log zerolog.Logger

	hub        *marketdata.Hub
	aggregator *signalengine.Aggregator
	gate       *risk.Gate
	positions  *risk.PositionManager
	hybrid     *execution.HybridExecutor
	costEst    *cost.DynamicCostEstimator
	fillRates  *monitor.FillRateMonitor
	attributor *pnl.PnLAttributor

	wake chan struct{}
}

// New constructs a TradingLoop for one symbol from its collaborators.
// positions, fillRates, and attributor are expected to be the same
// instances wired into hybrid as its PositionUpdater/FillRecorder/
// FillAttributor, so the loop only needs them for the post-fill cost
// bookkeeping step HybridExecutor doesn't own.
func New(
	cfg Config,
	hub *marketdata.Hub,
	aggregator *signalengine.Aggregator,
	gate *risk.Gate,
	positions *risk.PositionManager,
	hybrid *execution.HybridExecutor,
	costEst *cost.DynamicCostEstimator,
	fillRates *monitor.FillRateMonitor,
	attributor *pnl.PnLAttributor,
	log zerolog.Logger,
) *TradingLoop {
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = 250 * time.Millisecond
	}
	return &TradingLoop{
		cfg:        cfg,
		log:        log.With().Str("component", "trading_loop").Str("symbol", cfg.Symbol).Logger(),
		hub:        hub,
		aggregator: aggregator,
		gate:       gate,
		positions:  positions,
		hybrid:     hybrid,
		costEst:    costEst,
		fillRates:  fillRates,
		attributor: attributor,
		wake:       make(chan struct{}, 1),
	}
}

// Notify wakes the loop for one iteration; it is safe to call from any
// goroutine and never blocks. Multiple notifications before the loop
// drains collapse into a single iteration, mirroring the hub's own tick
// coalescing.
func (l *TradingLoop) Notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is canceled.
func (l *TradingLoop) Run(ctx context.Context) {
	l.log.Info().Msg("trading_loop_started")
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Msg("trading_loop_stopped")
			return
		case <-l.wake:
			l.iterate(ctx)
		}
	}
}

func (l *TradingLoop) iterate(ctx context.Context) {
	start := time.Now()
	defer func() {
		metrics.IterationLatency.WithLabelValues(l.cfg.Symbol).Observe(time.Since(start).Seconds())
	}()

	md, ok := l.hub.Snapshot(l.cfg.Symbol)
	if !ok {
		return
	}
	if age := time.Since(time.UnixMilli(md.Ts)); age > l.cfg.MaxStaleness {
		l.log.Warn().Dur("age", age).Msg("skipping stale snapshot")
		return
	}

	pos, _ := l.positions.GetPosition(l.cfg.Symbol)
	l.positions.UpdatePrices(map[string]decimal.Decimal{l.cfg.Symbol: md.Mid})
	prevTotal := pos.RealizedPnL.Add(pos.UnrealizedPnL)

	score := l.aggregator.Aggregate(md)
	metrics.SignalEvaluationsTotal.WithLabelValues(l.cfg.Symbol, score.Confidence.String()).Inc()

	if score.Value == 0 || score.Confidence == domain.Low {
		l.settlePnL(l.cfg.Symbol, prevTotal)
		return
	}

	size := l.sizeIntent(score, md)
	if !size.IsPositive() {
		l.settlePnL(l.cfg.Symbol, prevTotal)
		return
	}

	side := domain.Buy
	if score.Value < 0 {
		side = domain.Sell
	}

	intent := domain.Order{Symbol: l.cfg.Symbol, Side: side, Size: size}
	decision := l.gate.CheckOrder(intent, md.Mid, pos.Size, &md)
	if !decision.Approved {
		metrics.RiskDenialsTotal.WithLabelValues(l.cfg.Symbol).Inc()
		l.log.Info().Str("reason", decision.Reason).Msg("risk_gate_denied")
		l.settlePnL(l.cfg.Symbol, prevTotal)
		return
	}

	if l.cfg.DryRun {
		l.log.Info().Str("side", string(side)).Str("size", size.String()).Msg("dry_run_skipped_submission")
		l.settlePnL(l.cfg.Symbol, prevTotal)
		return
	}

	estimate := l.costEst.EstimateCost(domain.KindLimit, side, size, md)

	order, filled := l.hybrid.Execute(ctx, score, md, size, estimate)
	metrics.ExecutionOutcomesTotal.WithLabelValues(l.cfg.Symbol, "hybrid", order.Status.String()).Inc()

	if filled {
		l.costEst.RecordActualCost(order, estimate, order.AvgFillPrice, md.Mid, touchPrice(md, side))
	}

	share, healthy := l.attributor.AlphaShare()
	metrics.AlphaShareGauge.Set(share)
	if !healthy {
		l.log.Warn().Float64("alpha_share", share).Msg("alpha_health_below_threshold")
	}
	for _, confidence := range []domain.Confidence{domain.High, domain.Medium} {
		if rate, ok := l.fillRates.FillRate(confidence); ok {
			metrics.FillRateGauge.WithLabelValues(confidence.String()).Set(rate)
		}
	}

	l.settlePnL(l.cfg.Symbol, prevTotal)
}

// settlePnL feeds the net PnL change since the iteration began into the
// risk gate so NAV/drawdown tracking stays current even on iterations that
// neither deny nor fill an order (mark-to-market drift alone can trip the
// daily drawdown limit).
func (l *TradingLoop) settlePnL(symbol string, prevTotal decimal.Decimal) {
	pos, ok := l.positions.GetPosition(symbol)
	if !ok {
		return
	}
	newTotal := pos.RealizedPnL.Add(pos.UnrealizedPnL)
	delta := newTotal.Sub(prevTotal)
	if !delta.IsZero() {
		l.gate.UpdatePnL(delta)
	}
}

// sizeIntent implements spec's `size = min(base_size, k · |value| · nav / mid)`.
func (l *TradingLoop) sizeIntent(score domain.SignalScore, md domain.MarketData) decimal.Decimal {
	if md.Mid.IsZero() {
		return decimal.Zero
	}
	status := l.gate.Status()
	if status.CurrentNAV.IsZero() {
		return decimal.Zero
	}
	k := decimal.NewFromFloat(l.cfg.SizeK)
	magnitude := decimal.NewFromFloat(absFloat(score.Value))

	bySignal := k.Mul(magnitude).Mul(status.CurrentNAV).Div(md.Mid)
	if bySignal.LessThan(l.cfg.BaseSize) {
		return bySignal
	}
	return l.cfg.BaseSize
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func touchPrice(md domain.MarketData, side domain.Side) decimal.Decimal {
	if side == domain.Buy {
		if ask, ok := md.BestAsk(); ok {
			return ask.Price
		}
		return decimal.Zero
	}
	if bid, ok := md.BestBid(); ok {
		return bid.Price
	}
	return decimal.Zero
}

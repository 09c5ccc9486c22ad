package execution

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
	"github.com/arvion-labs/perpcore/internal/metrics"
)

// FillRecorder is the narrow contract HybridExecutor reports maker-leg
// outcomes through. internal/monitor.FillRateMonitor satisfies it.
type FillRecorder interface {
	Record(confidence domain.Confidence, filled bool)
}

// PositionUpdater is the narrow contract HybridExecutor reports fills
// through. internal/risk.PositionManager satisfies it.
type PositionUpdater interface {
	UpdateFromOrder(order domain.Order, fillSize, fillPrice decimal.Decimal) domain.Position
}

// FillAttributor is the narrow contract HybridExecutor reports fills
// through for PnL decomposition. internal/pnl.PnLAttributor satisfies it.
// score carries the signal value alpha is derived from; md carries the
// reference mid and best bid/ask at the time of the fill.
type FillAttributor interface {
	Attribute(order domain.Order, score domain.SignalScore, md domain.MarketData, estimate domain.CostEstimate) domain.Attribution
}

// HybridConfig tunes the confidence-based routing between maker and taker.
type HybridConfig struct {
	EnableFallback   bool
	FallbackOnMedium bool
}

// DefaultHybridConfig matches the original's Week 1.5 defaults.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{EnableFallback: true, FallbackOnMedium: false}
}

// Stats is the observational execution-rate breakdown recovered from
// hybrid_executor.py's get_statistics().
type Stats struct {
	TotalSignals         int64
	HighConfidenceCount  int64
	MediumConfidenceCount int64
	LowConfidenceCount   int64
	MakerExecutions      int64
	IOCExecutions        int64
	FallbackExecutions   int64
	SkippedSignals       int64
	CoalescedSignals     int64
}

// MakerFillRate returns the percentage (0-100) of signals that resulted in a
// maker fill.
func (s Stats) MakerFillRate() float64 {
	if s.TotalSignals == 0 {
		return 0
	}
	return float64(s.MakerExecutions) / float64(s.TotalSignals) * 100
}

// SkipRate returns the percentage (0-100) of signals that produced no order
// at all.
func (s Stats) SkipRate() float64 {
	if s.TotalSignals == 0 {
		return 0
	}
	return float64(s.SkippedSignals) / float64(s.TotalSignals) * 100
}

// HybridExecutor routes a classified signal to a maker attempt and, for
// HIGH confidence, an IOC fallback whenever the maker attempt does not fill
// (timeout, rejection, or no book side to price against). Grounded on
// execution/hybrid_executor.py.
type HybridExecutor struct {
	maker *ShallowMakerExecutor
	ioc   *IOCExecutor
	cfg   HybridConfig
	log   zerolog.Logger

	positions  PositionUpdater
	fillRates  FillRecorder
	attributor FillAttributor

	mu       sync.Mutex
	stats    Stats
	inFlight map[string]struct{}
}

// NewHybridExecutor constructs a HybridExecutor over the maker/IOC pair and
// the downstream collaborators that every terminal transition reports to.
func NewHybridExecutor(maker *ShallowMakerExecutor, ioc *IOCExecutor, cfg HybridConfig, positions PositionUpdater, fillRates FillRecorder, attributor FillAttributor, log zerolog.Logger) *HybridExecutor {
	return &HybridExecutor{
		maker:      maker,
		ioc:        ioc,
		cfg:        cfg,
		log:        log.With().Str("component", "hybrid_executor").Logger(),
		positions:  positions,
		fillRates:  fillRates,
		attributor: attributor,
		inFlight:   make(map[string]struct{}),
	}
}

// Execute routes score to a maker attempt, and for HIGH confidence a taker
// fallback, per the confidence-routing table. A signal for a symbol with an
// attempt already in flight is dropped and logged as coalesced.
func (h *HybridExecutor) Execute(ctx context.Context, score domain.SignalScore, md domain.MarketData, size decimal.Decimal, estimate domain.CostEstimate) (domain.Order, bool) {
	if !h.acquire(md.Symbol) {
		h.mu.Lock()
		h.stats.CoalescedSignals++
		h.mu.Unlock()
		h.log.Info().Str("symbol", md.Symbol).Msg("coalesced")
		return domain.Order{}, false
	}
	defer h.release(md.Symbol)

	h.mu.Lock()
	h.stats.TotalSignals++
	h.mu.Unlock()

	side := domain.Buy
	if score.Value < 0 {
		side = domain.Sell
	}
	if score.Value == 0 {
		h.markSkipped()
		return domain.Order{}, false
	}

	switch score.Confidence {
	case domain.Low:
		h.mu.Lock()
		h.stats.LowConfidenceCount++
		h.mu.Unlock()
		h.markSkipped()
		h.log.Info().Str("symbol", md.Symbol).Msg("routing_low_confidence_skipped")
		return domain.Order{}, false

	case domain.High:
		h.mu.Lock()
		h.stats.HighConfidenceCount++
		h.mu.Unlock()
		return h.routeHigh(ctx, side, size, score, md, estimate)

	default: // Medium
		h.mu.Lock()
		h.stats.MediumConfidenceCount++
		h.mu.Unlock()
		return h.routeMedium(ctx, side, size, score, md, estimate)
	}
}

func (h *HybridExecutor) routeHigh(ctx context.Context, side domain.Side, size decimal.Decimal, score domain.SignalScore, md domain.MarketData, estimate domain.CostEstimate) (domain.Order, bool) {
	metrics.OrdersTotal.WithLabelValues(md.Symbol, string(side)).Inc()
	order, outcome := h.maker.Execute(ctx, side, size, score.Confidence, md)
	h.reportMakerAttempt(score.Confidence, outcome)
	h.reportFill(order, score, md, estimate)

	if outcome == OutcomeFilled {
		h.mu.Lock()
		h.stats.MakerExecutions++
		h.mu.Unlock()
		return order, true
	}

	if !h.cfg.EnableFallback {
		h.markSkipped()
		h.log.Warn().Str("symbol", md.Symbol).Msg("high_confidence_maker_timeout_no_fallback")
		return order, false
	}

	h.log.Warn().Str("symbol", md.Symbol).Msg("high_confidence_maker_timeout_fallback_ioc")
	remaining := size.Sub(order.FilledSize)
	if remaining.LessThanOrEqual(decimal.Zero) {
		remaining = size
	}

	metrics.OrdersTotal.WithLabelValues(md.Symbol, string(side)).Inc()
	iocOrder, iocOutcome := h.ioc.Execute(ctx, side, remaining, md)
	h.reportFill(iocOrder, score, md, estimate)
	if iocOutcome == OutcomeFilled {
		h.mu.Lock()
		h.stats.FallbackExecutions++
		h.stats.IOCExecutions++
		h.mu.Unlock()
		return iocOrder, true
	}

	h.markSkipped()
	h.log.Error().Str("symbol", md.Symbol).Msg("high_confidence_fallback_failed")
	return iocOrder, false
}

func (h *HybridExecutor) routeMedium(ctx context.Context, side domain.Side, size decimal.Decimal, score domain.SignalScore, md domain.MarketData, estimate domain.CostEstimate) (domain.Order, bool) {
	metrics.OrdersTotal.WithLabelValues(md.Symbol, string(side)).Inc()
	order, outcome := h.maker.Execute(ctx, side, size, score.Confidence, md)
	h.reportMakerAttempt(score.Confidence, outcome)
	h.reportFill(order, score, md, estimate)

	if outcome == OutcomeFilled {
		h.mu.Lock()
		h.stats.MakerExecutions++
		h.mu.Unlock()
		return order, true
	}

	if !h.cfg.FallbackOnMedium {
		h.markSkipped()
		h.log.Info().Str("symbol", md.Symbol).Msg("medium_confidence_maker_timeout_skipped")
		return order, false
	}

	remaining := size.Sub(order.FilledSize)
	if remaining.LessThanOrEqual(decimal.Zero) {
		remaining = size
	}
	metrics.OrdersTotal.WithLabelValues(md.Symbol, string(side)).Inc()
	iocOrder, iocOutcome := h.ioc.Execute(ctx, side, remaining, md)
	h.reportFill(iocOrder, score, md, estimate)
	if iocOutcome == OutcomeFilled {
		h.mu.Lock()
		h.stats.FallbackExecutions++
		h.stats.IOCExecutions++
		h.mu.Unlock()
		return iocOrder, true
	}

	h.markSkipped()
	return iocOrder, false
}

// reportMakerAttempt records the maker leg's fill-rate outcome: filled iff
// the order FILLED fully within the maker window, per the documented
// fill-rate convention (a partial fill still counts against the rate).
func (h *HybridExecutor) reportMakerAttempt(confidence domain.Confidence, outcome Outcome) {
	if h.fillRates != nil {
		h.fillRates.Record(confidence, outcome == OutcomeFilled)
	}
}

func (h *HybridExecutor) reportFill(order domain.Order, score domain.SignalScore, md domain.MarketData, estimate domain.CostEstimate) {
	if order.FilledSize.IsZero() || !order.FilledSize.IsPositive() {
		return
	}
	if h.positions != nil {
		h.positions.UpdateFromOrder(order, order.FilledSize, order.AvgFillPrice)
	}
	if h.attributor != nil {
		h.attributor.Attribute(order, score, md, estimate)
	}
}

func (h *HybridExecutor) markSkipped() {
	h.mu.Lock()
	h.stats.SkippedSignals++
	h.mu.Unlock()
}

func (h *HybridExecutor) acquire(symbol string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inFlight[symbol]; busy {
		return false
	}
	h.inFlight[symbol] = struct{}{}
	return true
}

func (h *HybridExecutor) release(symbol string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inFlight, symbol)
}

// Statistics returns a snapshot of the execution-rate counters.
func (h *HybridExecutor) Statistics() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// ResetStatistics zeroes the execution-rate counters.
func (h *HybridExecutor) ResetStatistics() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = Stats{}
}

// Package risk implements the hard, unconditional trading limits (single-
// trade loss cap, daily drawdown cap, per-symbol position cap) and the
// position bookkeeping those limits are evaluated against, grounded on
// risk/hard_limits.py and risk/position_manager.py. The halt latch is the
// one piece of intentional process-wide shared state, so it is a plain
// atomic.Bool rather than anything guarded by the gate's own mutex.
package risk

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/audit"
	"github.com/arvion-labs/perpcore/internal/cost"
	"github.com/arvion-labs/perpcore/internal/domain"
	"github.com/arvion-labs/perpcore/internal/metrics"
)

const defaultSlippageFallbackPct = 0.01

// Limits is the hard-limit configuration, all percentages expressed as
// fractions of initial NAV per spec §6 (`risk.max_single_loss_pct`,
// `risk.max_daily_drawdown_pct`, `risk.max_position_usd`).
type Limits struct {
	MaxSingleLossPct    float64
	MaxDailyDrawdownPct float64
	MaxPositionUSD      decimal.Decimal
}

// Status is a read-only view of the gate's current bookkeeping, the Go
// shape of the original's get_status().
type Status struct {
	Halted               bool
	BreachReason         string
	CurrentNAV           decimal.Decimal
	DailyPnL             decimal.Decimal
	DailyPeakNAV         decimal.Decimal
	CurrentDrawdown      decimal.Decimal
	MaxDrawdown          decimal.Decimal
	DrawdownUtilization  float64
}

// Gate admits or rejects intended orders against the hard limits and owns
// the sticky halt latch: once set, no further orders are admitted until an
// explicit Reset.
type Gate struct {
	limits     Limits
	initialNAV decimal.Decimal
	slippage   *cost.SlippageEstimator
	audit      audit.Sink
	log        zerolog.Logger

	mu            sync.Mutex
	currentNAV    decimal.Decimal
	dailyPnL      decimal.Decimal
	dailyPeakNAV  decimal.Decimal
	tradingDate   string
	breachReason  string

	halted atomic.Bool
}

// NewGate constructs a Gate seeded with the starting NAV. slippage may be
// nil, in which case single-loss checks fall back to a conservative fixed
// 1% slippage assumption, matching the original's no-estimator path. sink
// may be nil, in which case breaches are only logged, not durably audited.
func NewGate(initialNAV decimal.Decimal, limits Limits, slippage *cost.SlippageEstimator, sink audit.Sink, log zerolog.Logger) *Gate {
	return &Gate{
		limits:       limits,
		initialNAV:   initialNAV,
		slippage:     slippage,
		audit:        sink,
		log:          log.With().Str("component", "risk").Logger(),
		currentNAV:   initialNAV,
		dailyPeakNAV: initialNAV,
		tradingDate:  time.Now().UTC().Format("2006-01-02"),
	}
}

// Halted reports whether the sticky halt latch is set.
func (g *Gate) Halted() bool { return g.halted.Load() }

// Halt sets the latch and records the breach reason. CheckOrder's
// single-loss and daily-drawdown checks call it on a breach; no other
// caller in this module sets the latch.
func (g *Gate) Halt(reason string) {
	if g.halted.CompareAndSwap(false, true) {
		g.mu.Lock()
		g.breachReason = reason
		g.mu.Unlock()
		g.log.Error().Str("reason", reason).Msg("hard_limit_breached")
		metrics.HaltsTotal.WithLabelValues(reason).Inc()
		if g.audit != nil {
			g.audit.Emit(audit.SeverityCritical, "hard_limit_breached", map[string]any{"reason": reason})
		}
	}
}

// Reset clears the halt latch. Per spec, halt is sticky until an explicit
// external reset — this is that reset.
func (g *Gate) Reset() {
	g.mu.Lock()
	prev := g.breachReason
	g.breachReason = ""
	g.mu.Unlock()
	g.halted.Store(false)
	g.log.Warn().Str("previous_reason", prev).Msg("breach_reset")
	if g.audit != nil {
		g.audit.Emit(audit.SeverityWarning, "breach_reset", map[string]any{"previous_reason": prev})
	}
}

// CheckOrder evaluates an intended order against every hard limit, in the
// order single-loss, daily-drawdown, position-size — the first breach wins
// and latches the gate.
func (g *Gate) CheckOrder(order domain.Order, currentPrice, currentPositionSize decimal.Decimal, md *domain.MarketData) domain.RiskDecision {
	if g.Halted() {
		g.mu.Lock()
		reason := g.breachReason
		g.mu.Unlock()
		return domain.RiskDecision{Approved: false, Reason: fmt.Sprintf("system halted: %s", reason)}
	}

	g.checkNewDay()

	if d := g.checkSingleLoss(order, currentPrice, md); !d.Approved {
		return d
	}
	if d := g.checkDailyDrawdown(); !d.Approved {
		return d
	}
	if d := g.checkPositionSize(order, currentPrice, currentPositionSize); !d.Approved {
		return d
	}
	return domain.RiskDecision{Approved: true}
}

func (g *Gate) checkSingleLoss(order domain.Order, currentPrice decimal.Decimal, md *domain.MarketData) domain.RiskDecision {
	orderValue := order.Size.Mul(currentPrice)
	maxLoss := g.initialNAV.Mul(decimal.NewFromFloat(g.limits.MaxSingleLossPct))

	var slippagePct decimal.Decimal
	if g.slippage != nil && md != nil {
		result := g.slippage.Estimate(*md, order.Side, order.Size)
		slippagePct = decimal.NewFromFloat(result.SlippageBps).Div(decimal.NewFromInt(10000))
	} else {
		slippagePct = decimal.NewFromFloat(defaultSlippageFallbackPct)
	}
	potentialLoss := orderValue.Mul(slippagePct)

	if potentialLoss.GreaterThan(maxLoss) {
		reason := fmt.Sprintf(
			"single loss limit exceeded: potential_loss=%s > max_loss=%s (initial_nav=%s, max_pct=%.2f%%)",
			potentialLoss.StringFixed(2), maxLoss.StringFixed(2), g.initialNAV.StringFixed(2), g.limits.MaxSingleLossPct*100,
		)
		g.Halt(reason)
		return domain.RiskDecision{Approved: false, Reason: reason}
	}
	return domain.RiskDecision{Approved: true}
}

func (g *Gate) checkDailyDrawdown() domain.RiskDecision {
	g.mu.Lock()
	drawdown := g.dailyPeakNAV.Sub(g.currentNAV)
	g.mu.Unlock()

	maxDrawdown := g.initialNAV.Mul(decimal.NewFromFloat(g.limits.MaxDailyDrawdownPct))
	if drawdown.GreaterThanOrEqual(maxDrawdown) {
		reason := fmt.Sprintf(
			"daily drawdown limit exceeded: drawdown=%s >= max_drawdown=%s (initial_nav=%s, max_pct=%.2f%%)",
			drawdown.StringFixed(2), maxDrawdown.StringFixed(2), g.initialNAV.StringFixed(2), g.limits.MaxDailyDrawdownPct*100,
		)
		g.Halt(reason)
		return domain.RiskDecision{Approved: false, Reason: reason}
	}
	return domain.RiskDecision{Approved: true}
}

func (g *Gate) checkPositionSize(order domain.Order, currentPrice, currentPositionSize decimal.Decimal) domain.RiskDecision {
	newSize := currentPositionSize
	if order.Side == domain.Buy {
		newSize = newSize.Add(order.Size)
	} else {
		newSize = newSize.Sub(order.Size)
	}
	newValue := newSize.Abs().Mul(currentPrice)

	if newValue.GreaterThan(g.limits.MaxPositionUSD) {
		reason := fmt.Sprintf(
			"position size limit exceeded: new_position=%s > max_position=%s",
			newValue.StringFixed(2), g.limits.MaxPositionUSD.StringFixed(2),
		)
		// Position-size breaches reject the order but do not halt the system —
		// the single-loss and drawdown checks are the sticky ones.
		return domain.RiskDecision{Approved: false, Reason: reason}
	}
	return domain.RiskDecision{Approved: true}
}

// UpdatePnL applies a realized or unrealized PnL delta to NAV and the daily
// peak, used for drawdown tracking.
func (g *Gate) UpdatePnL(pnl decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.checkNewDayLocked()
	g.currentNAV = g.currentNAV.Add(pnl)
	g.dailyPnL = g.dailyPnL.Add(pnl)
	if g.currentNAV.GreaterThan(g.dailyPeakNAV) {
		g.dailyPeakNAV = g.currentNAV
	}
}

func (g *Gate) checkNewDay() {
	g.mu.Lock()
	g.checkNewDayLocked()
	g.mu.Unlock()
}

func (g *Gate) checkNewDayLocked() {
	today := time.Now().UTC().Format("2006-01-02")
	if today != g.tradingDate {
		g.tradingDate = today
		g.dailyPnL = decimal.Zero
		g.dailyPeakNAV = g.currentNAV
	}
}

// Status returns a snapshot of the gate's current bookkeeping.
func (g *Gate) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	drawdown := g.dailyPeakNAV.Sub(g.currentNAV)
	maxDrawdown := g.initialNAV.Mul(decimal.NewFromFloat(g.limits.MaxDailyDrawdownPct))

	var utilization float64
	if maxDrawdown.IsPositive() {
		utilization, _ = drawdown.Div(maxDrawdown).Float64()
	}

	return Status{
		Halted:              g.halted.Load(),
		BreachReason:        g.breachReason,
		CurrentNAV:          g.currentNAV,
		DailyPnL:            g.dailyPnL,
		DailyPeakNAV:        g.dailyPeakNAV,
		CurrentDrawdown:     drawdown,
		MaxDrawdown:         maxDrawdown,
		DrawdownUtilization: utilization,
	}
}

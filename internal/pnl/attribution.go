// Package pnl decomposes every fill into alpha, cost, and rebate
// components, grounded on analytics/pnl_attribution.py and generalized per
// the independent-alpha rule: alpha is computed from reference-mid
// movement rather than backed out of the other components, so total is a
// strict identity sum rather than a circular definition.
package pnl

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

const defaultMaxHistory = 10000
const defaultAlphaThreshold = 0.70

var bps = decimal.NewFromInt(10000)

// Config tunes the attributor's health threshold and retained history.
type Config struct {
	AlphaThreshold float64
	MaxHistory     int
}

// DefaultConfig matches the original's 70% alpha-share health threshold
// and 10,000-trade retained history.
func DefaultConfig() Config {
	return Config{AlphaThreshold: defaultAlphaThreshold, MaxHistory: defaultMaxHistory}
}

// cumulative is the running sum of every attributed component.
type cumulative struct {
	alpha    decimal.Decimal
	fee      decimal.Decimal
	slippage decimal.Decimal
	impact   decimal.Decimal
	rebate   decimal.Decimal
	total    decimal.Decimal
}

// PnLAttributor decomposes each fill into {alpha, fee, slippage, impact,
// rebate} and tracks the cumulative split, grounded on PnLAttribution.
type PnLAttributor struct {
	cfg Config
	log zerolog.Logger

	mu           sync.Mutex
	referenceMid map[string]decimal.Decimal
	history      []domain.Attribution
	cum          cumulative
}

// NewPnLAttributor constructs a PnLAttributor.
func NewPnLAttributor(cfg Config, log zerolog.Logger) *PnLAttributor {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.AlphaThreshold <= 0 {
		cfg.AlphaThreshold = defaultAlphaThreshold
	}
	return &PnLAttributor{
		cfg:          cfg,
		log:          log.With().Str("component", "pnl_attribution").Logger(),
		referenceMid: make(map[string]decimal.Decimal),
	}
}

// Attribute decomposes one fill's PnL. alpha is the move in the traded
// direction since this symbol's last attributed reference mid (or zero on
// the first fill for a symbol, when there is no prior reference); fee,
// slippage, and impact are the maker/taker-rate-aware cost legs; rebate is
// zero unless the venue separately confirms eligibility (not modeled here).
func (a *PnLAttributor) Attribute(order domain.Order, score domain.SignalScore, md domain.MarketData, estimate domain.CostEstimate) domain.Attribution {
	signedSize := order.FilledSize
	if order.Side == domain.Sell {
		signedSize = signedSize.Neg()
	}

	a.mu.Lock()
	refMid, hasRef := a.referenceMid[order.Symbol]
	if !hasRef {
		refMid = md.Mid
	}
	a.referenceMid[order.Symbol] = md.Mid
	a.mu.Unlock()

	alpha := md.Mid.Sub(refMid).Mul(signedSize)

	notional := order.FilledSize.Mul(order.AvgFillPrice)
	feeRate := decimal.NewFromFloat(estimate.FeeBps).Div(bps)
	fee := notional.Mul(feeRate).Neg()

	bestPrice := touchPrice(md, order.Side)
	slippage := order.AvgFillPrice.Sub(refMid).Abs().Mul(order.FilledSize).Neg()

	impactRate := decimal.NewFromFloat(estimate.ImpactBps).Div(bps)
	impact := notional.Mul(impactRate).Neg()
	if !bestPrice.IsZero() {
		realizedImpact := order.AvgFillPrice.Sub(bestPrice)
		if order.Side == domain.Sell {
			realizedImpact = realizedImpact.Neg()
		}
		impact = realizedImpact.Mul(order.FilledSize).Neg()
	}

	rebate := decimal.Zero
	total := alpha.Add(fee).Add(slippage).Add(impact).Add(rebate)

	attribution := domain.Attribution{
		OrderID:  order.ID,
		Symbol:   order.Symbol,
		Alpha:    alpha,
		Fee:      fee,
		Slippage: slippage,
		Impact:   impact,
		Rebate:   rebate,
		Total:    total,
		Ts:       order.LastUpdateAt.UnixMilli(),
	}

	a.record(attribution)

	a.log.Info().
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("alpha", alpha.StringFixed(4)).
		Str("total", total.StringFixed(4)).
		Msg("trade_attributed")

	return attribution
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

func (a *PnLAttributor) record(at domain.Attribution) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history = append(a.history, at)
	if len(a.history) > a.cfg.MaxHistory {
		a.history = a.history[len(a.history)-a.cfg.MaxHistory:]
	}

	a.cum.alpha = a.cum.alpha.Add(at.Alpha)
	a.cum.fee = a.cum.fee.Add(at.Fee)
	a.cum.slippage = a.cum.slippage.Add(at.Slippage)
	a.cum.impact = a.cum.impact.Add(at.Impact)
	a.cum.rebate = a.cum.rebate.Add(at.Rebate)
	a.cum.total = a.cum.total.Add(at.Total)
}

// ReconcileObservedTotal compares an externally observed total PnL for an
// already-attributed order against the computed total and, on the most
// recent attribution for that order, records the gap as Unexplained
// rather than silently absorbing it into any one component.
func (a *PnLAttributor) ReconcileObservedTotal(orderID string, observedTotal decimal.Decimal) (domain.Attribution, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := len(a.history) - 1; i >= 0; i-- {
		if a.history[i].OrderID != orderID {
			continue
		}
		a.history[i].Unexplained = observedTotal.Sub(a.history[i].Total)
		return a.history[i], true
	}
	return domain.Attribution{}, false
}

// Cumulative is the running sum of every attributed component.
type Cumulative struct {
	Alpha    decimal.Decimal
	Fee      decimal.Decimal
	Slippage decimal.Decimal
	Impact   decimal.Decimal
	Rebate   decimal.Decimal
	Total    decimal.Decimal
}

// CumulativeAttribution returns the running sum of every component.
func (a *PnLAttributor) CumulativeAttribution() Cumulative {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Cumulative{
		Alpha:    a.cum.alpha,
		Fee:      a.cum.fee,
		Slippage: a.cum.slippage,
		Impact:   a.cum.impact,
		Rebate:   a.cum.rebate,
		Total:    a.cum.total,
	}
}

// Percentages breaks each cumulative component down as a percentage of
// |total|, so the shares read sensibly whether total is net profit or loss.
type Percentages struct {
	Alpha    float64
	Fee      float64
	Slippage float64
	Impact   float64
	Rebate   float64
}

// AttributionPercentages returns each cumulative component as a percentage
// of absolute cumulative total, or all zero if there have been no fills.
func (a *PnLAttributor) AttributionPercentages() Percentages {
	c := a.CumulativeAttribution()
	if c.Total.IsZero() {
		return Percentages{}
	}
	base := c.Total.Abs()
	pct := func(v decimal.Decimal) float64 {
		f, _ := v.Div(base).Mul(decimal.NewFromInt(100)).Float64()
		return f
	}
	return Percentages{
		Alpha:    pct(c.Alpha),
		Fee:      pct(c.Fee),
		Slippage: pct(c.Slippage),
		Impact:   pct(c.Impact),
		Rebate:   pct(c.Rebate),
	}
}

// AlphaShare is the rolling Σalpha / Σ|total| health metric from spec
// §4.12 and alpha_health_checker.py, taken over the retained history (the
// last MaxHistory fills) — informational only, never a gate.
// With no fills yet it reports 1.0 (healthy), matching the original's
// "no trades yet, health check skipped" convention.
func (a *PnLAttributor) AlphaShare() (share float64, healthy bool) {
	a.mu.Lock()
	sumAlpha, sumAbsTotal := decimal.Zero, decimal.Zero
	for _, at := range a.history {
		sumAlpha = sumAlpha.Add(at.Alpha)
		sumAbsTotal = sumAbsTotal.Add(at.Total.Abs())
	}
	a.mu.Unlock()
	if sumAbsTotal.IsZero() {
		return 1.0, true
	}
	share, _ = sumAlpha.Div(sumAbsTotal).Float64()
	healthy = share >= a.cfg.AlphaThreshold
	if healthy {
		a.log.Info().Float64("alpha_share", share).Msg("alpha_health_check_passed")
	} else {
		a.log.Warn().Float64("alpha_share", share).Msg("alpha_health_check_failed")
	}
	return share, healthy
}

// Report is a point-in-time summary, the Go shape of
// get_attribution_report().
type Report struct {
	Cumulative  Cumulative
	Percentages Percentages
	AlphaShare  float64
	Healthy     bool
	TradeCount  int
}

// Report returns a full summary of cumulative attribution and alpha health.
func (a *PnLAttributor) Report() Report {
	share, healthy := a.AlphaShare()
	a.mu.Lock()
	count := len(a.history)
	a.mu.Unlock()
	return Report{
		Cumulative:  a.CumulativeAttribution(),
		Percentages: a.AttributionPercentages(),
		AlphaShare:  share,
		Healthy:     healthy,
		TradeCount:  count,
	}
}

// Recent returns up to n of the most recently attributed fills, newest
// first.
func (a *PnLAttributor) Recent(n int) []domain.Attribution {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= 0 || len(a.history) == 0 {
		return nil
	}
	if n > len(a.history) {
		n = len(a.history)
	}
	out := make([]domain.Attribution, n)
	for i := 0; i < n; i++ {
		out[i] = a.history[len(a.history)-1-i]
	}
	return out
}

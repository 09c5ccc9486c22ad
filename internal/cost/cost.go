package cost

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

const defaultMaxHistory = 10000

// marketState is the liquidity/volatility snapshot used to scale the impact
// estimate, the Go shape of _calculate_market_state.
type marketState struct {
	SpreadBps       float64
	LiquidityScore  float64
	VolatilityScore float64
}

// ActualCost is the post-trade record compared against its pre-trade
// CostEstimate, the Go shape of the original's CostActual.
type ActualCost struct {
	OrderID            string
	Symbol             string
	FeeBps             float64
	SlippageBps        float64
	ImpactBps          float64
	TotalCostBps       float64
	EstimatedTotalBps  float64
	EstimationErrorPct float64
}

// AccuracyReport summarizes how close pre-trade estimates have tracked
// realized cost, recovered from get_estimation_accuracy as an informational,
// never-gating feature.
type AccuracyReport struct {
	AvgErrorPct float64
	ErrorStd    float64
	MAEBps      float64
	RMSEBps     float64
	Within10Pct float64
	Within20Pct float64
	NumSamples  int
}

// DynamicCostEstimator predicts the fee/slippage/impact bps cost of an
// order before submission and tracks realized cost afterward, grounded on
// analytics/dynamic_cost_estimator.py's linear impact model.
type DynamicCostEstimator struct {
	makerFeeBps float64
	takerFeeBps float64
	slippage    *SlippageEstimator
	impactAlpha float64
	maxHistory  int
	log         zerolog.Logger

	mu      sync.Mutex
	history []ActualCost
}

// Config carries the fee schedule and impact-model tuning for construction.
type Config struct {
	MakerFeeBps float64
	TakerFeeBps float64
	ImpactAlpha float64
	MaxHistory  int
}

// New constructs a DynamicCostEstimator over an internal SlippageEstimator.
func New(cfg Config, log zerolog.Logger) *DynamicCostEstimator {
	alpha := cfg.ImpactAlpha
	if alpha <= 0 {
		alpha = 0.01
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &DynamicCostEstimator{
		makerFeeBps: cfg.MakerFeeBps,
		takerFeeBps: cfg.TakerFeeBps,
		slippage:    NewSlippageEstimator(20),
		impactAlpha: alpha,
		maxHistory:  maxHistory,
		log:         log.With().Str("component", "cost").Logger(),
	}
}

// EstimateCost predicts the bps cost breakdown of an order before
// submission. Recomputed on every attempt per spec, never cached across
// iterations.
func (e *DynamicCostEstimator) EstimateCost(kind domain.OrderKind, side domain.Side, size decimal.Decimal, md domain.MarketData) domain.CostEstimate {
	feeBps := e.makerFeeBps
	if kind == domain.KindIOC {
		feeBps = e.takerFeeBps
	}

	slipResult := e.slippage.Estimate(md, side, size)
	slippageBps := slipResult.SlippageBps
	if math.IsInf(slippageBps, 1) {
		slippageBps = 0
	}

	state := computeMarketState(md)
	impactBps := e.estimateImpactBps(side, size, md, state)

	return domain.CostEstimate{
		FeeBps:      feeBps,
		SlippageBps: slippageBps,
		ImpactBps:   impactBps,
		TotalBps:    feeBps + slippageBps + impactBps,
	}
}

func (e *DynamicCostEstimator) estimateImpactBps(side domain.Side, size decimal.Decimal, md domain.MarketData, state marketState) float64 {
	levels := md.Asks
	if side == domain.Sell {
		levels = md.Bids
	}
	n := 3
	if n > len(levels) {
		n = len(levels)
	}
	levels = levels[:n]

	totalLiquidity := decimal.Zero
	for _, l := range levels {
		totalLiquidity = totalLiquidity.Add(l.Size)
	}
	if totalLiquidity.IsZero() {
		return 5.0
	}

	ratio, _ := size.Div(totalLiquidity).Float64()
	impactBps := e.impactAlpha * ratio * 10000
	impactBps *= 1.0 + (1.0 - state.LiquidityScore)

	return math.Max(0.5, math.Min(impactBps, 10.0))
}

func computeMarketState(md domain.MarketData) marketState {
	var spreadBps float64
	if len(md.Bids) > 0 && len(md.Asks) > 0 {
		bid, ask := md.Bids[0].Price, md.Asks[0].Price
		mid := bid.Add(ask).Div(decimal.NewFromInt(2))
		if !mid.IsZero() {
			spread := ask.Sub(bid)
			spreadBps, _ = spread.Div(mid).Mul(bps10000).Float64()
		}
	} else {
		spreadBps = math.Inf(1)
	}

	total := decimal.Zero
	for _, l := range topN(md.Bids, 3) {
		total = total.Add(l.Size)
	}
	for _, l := range topN(md.Asks, 3) {
		total = total.Add(l.Size)
	}
	liquidityF, _ := total.Div(decimal.NewFromInt(100)).Float64()
	liquidityScore := math.Min(liquidityF, 1.0)

	var volatilityScore float64
	if math.IsInf(spreadBps, 1) {
		volatilityScore = 1.0
	} else {
		volatilityScore = math.Min(spreadBps/10.0, 1.0)
	}

	return marketState{SpreadBps: spreadBps, LiquidityScore: liquidityScore, VolatilityScore: volatilityScore}
}

func topN(levels []domain.Level, n int) []domain.Level {
	if n > len(levels) {
		n = len(levels)
	}
	return levels[:n]
}

// RecordActualCost computes the realized cost of a fill and compares it
// against the pre-trade estimate, appending to the bounded accuracy
// history.
func (e *DynamicCostEstimator) RecordActualCost(order domain.Order, estimated domain.CostEstimate, actualFillPrice, referencePrice, bestPrice decimal.Decimal) ActualCost {
	tradeValue := order.FilledSize.Mul(actualFillPrice)
	if tradeValue.IsZero() {
		rec := ActualCost{OrderID: order.ID, Symbol: order.Symbol, EstimatedTotalBps: estimated.TotalBps}
		e.append(rec)
		return rec
	}

	feeBps := e.makerFeeBps
	if order.Kind == domain.KindIOC {
		feeBps = e.takerFeeBps
	}

	slippageBps := e.slippage.ActualSlippageBps(actualFillPrice, referencePrice, order.Side)

	var impactBps float64
	if !bestPrice.IsZero() {
		diff := actualFillPrice.Sub(bestPrice)
		if order.Side == domain.Sell {
			diff = diff.Neg()
		}
		impactBps, _ = diff.Div(bestPrice).Mul(bps10000).Float64()
	}

	totalBps := feeBps + slippageBps + impactBps

	var errorPct float64
	if estimated.TotalBps != 0 {
		errorPct = (totalBps - estimated.TotalBps) / estimated.TotalBps * 100
	} else if totalBps != 0 {
		errorPct = math.Inf(1)
	}

	rec := ActualCost{
		OrderID:            order.ID,
		Symbol:             order.Symbol,
		FeeBps:             feeBps,
		SlippageBps:        slippageBps,
		ImpactBps:          impactBps,
		TotalCostBps:       totalBps,
		EstimatedTotalBps:  estimated.TotalBps,
		EstimationErrorPct: errorPct,
	}
	e.append(rec)
	return rec
}

func (e *DynamicCostEstimator) append(rec ActualCost) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, rec)
	if len(e.history) > e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory:]
	}
}

// EstimationAccuracy reports how closely pre-trade estimates have tracked
// realized cost across the retained history — informational only, never a
// gate, per the original's get_estimation_accuracy.
func (e *DynamicCostEstimator) EstimationAccuracy() AccuracyReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	valid := make([]ActualCost, 0, len(e.history))
	for _, r := range e.history {
		if !math.IsInf(r.EstimationErrorPct, 1) {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return AccuracyReport{}
	}

	var sumErr float64
	for _, r := range valid {
		sumErr += r.EstimationErrorPct
	}
	avgErr := sumErr / float64(len(valid))

	var variance float64
	for _, r := range valid {
		d := r.EstimationErrorPct - avgErr
		variance += d * d
	}
	variance /= float64(len(valid))

	var sumAbs, sumSq float64
	var within10, within20 int
	for _, r := range valid {
		diff := r.TotalCostBps - r.EstimatedTotalBps
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if math.Abs(r.EstimationErrorPct) < 10 {
			within10++
		}
		if math.Abs(r.EstimationErrorPct) < 20 {
			within20++
		}
	}

	return AccuracyReport{
		AvgErrorPct: avgErr,
		ErrorStd:    math.Sqrt(variance),
		MAEBps:      sumAbs / float64(len(valid)),
		RMSEBps:     math.Sqrt(sumSq / float64(len(valid))),
		Within10Pct: float64(within10) / float64(len(valid)),
		Within20Pct: float64(within20) / float64(len(valid)),
		NumSamples:  len(valid),
	}
}

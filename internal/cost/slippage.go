// Package cost estimates the pre-trade bps cost of an order (fee, slippage,
// impact) and tracks post-trade accuracy against realized cost, grounded on
// execution/slippage_estimator.py and analytics/dynamic_cost_estimator.py.
package cost

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

var bps10000 = decimal.NewFromInt(10000)

// SlippageResult is the outcome of simulating an order's execution walk
// across the resting book.
type SlippageResult struct {
	EstimatedPrice decimal.Decimal
	SlippageBps    float64
	Acceptable     bool
	LevelsConsumed int
}

// SlippageEstimator simulates walking the book to fill size and reports the
// resulting slippage versus the touch price. Slippage is always reported as
// a cost (positive means worse than the touch), regardless of side.
type SlippageEstimator struct {
	MaxSlippageBps float64
}

// NewSlippageEstimator constructs a SlippageEstimator with the given
// acceptance threshold.
func NewSlippageEstimator(maxSlippageBps float64) *SlippageEstimator {
	if maxSlippageBps <= 0 {
		maxSlippageBps = 20
	}
	return &SlippageEstimator{MaxSlippageBps: maxSlippageBps}
}

// Estimate walks the opposing side of the book (asks for a buy, bids for a
// sell) to fill size and reports the resulting slippage versus the touch.
func (s *SlippageEstimator) Estimate(md domain.MarketData, side domain.Side, size decimal.Decimal) SlippageResult {
	var levels []domain.Level
	var reference decimal.Decimal
	if side == domain.Buy {
		levels = md.Asks
		if len(md.Asks) > 0 {
			reference = md.Asks[0].Price
		}
	} else {
		levels = md.Bids
		if len(md.Bids) > 0 {
			reference = md.Bids[0].Price
		}
	}

	if len(levels) == 0 || reference.IsZero() {
		return SlippageResult{SlippageBps: math.Inf(1), Acceptable: false}
	}

	weightedPrice, levelsConsumed := simulateWalk(levels, size)
	if levelsConsumed == 0 {
		return SlippageResult{SlippageBps: math.Inf(1), Acceptable: false}
	}

	slippage := weightedPrice.Sub(reference).Div(reference)
	if side == domain.Sell {
		slippage = slippage.Neg()
	}
	slippageBps, _ := slippage.Mul(bps10000).Float64()

	return SlippageResult{
		EstimatedPrice: weightedPrice,
		SlippageBps:    slippageBps,
		Acceptable:     slippageBps <= s.MaxSlippageBps,
		LevelsConsumed: levelsConsumed,
	}
}

func simulateWalk(levels []domain.Level, size decimal.Decimal) (decimal.Decimal, int) {
	remaining := size
	totalCost := decimal.Zero
	filled := decimal.Zero
	consumed := 0

	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		fillSize := decimal.Min(remaining, lvl.Size)
		totalCost = totalCost.Add(fillSize.Mul(lvl.Price))
		filled = filled.Add(fillSize)
		remaining = remaining.Sub(fillSize)
		consumed++
	}

	if filled.IsZero() {
		return decimal.Zero, 0
	}
	return totalCost.Div(filled), consumed
}

// IsAcceptable reports whether slippageBps is within the configured cap.
func (s *SlippageEstimator) IsAcceptable(slippageBps float64) bool {
	return slippageBps <= s.MaxSlippageBps
}

// ActualSlippageBps computes realized slippage of an execution price versus
// a reference price, always expressed as a cost (positive is worse).
func (s *SlippageEstimator) ActualSlippageBps(executionPrice, referencePrice decimal.Decimal, side domain.Side) float64 {
	if referencePrice.IsZero() {
		return math.Inf(1)
	}
	diff := executionPrice.Sub(referencePrice)
	if side == domain.Sell {
		diff = diff.Neg()
	}
	bps, _ := diff.Div(referencePrice).Mul(bps10000).Float64()
	return bps
}

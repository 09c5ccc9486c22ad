// Package signalengine computes the microstructure signals (order book
// imbalance, microprice deviation, trade impact), aggregates them into a
// single SignalScore, and classifies that score into a confidence band.
// Grounded on the original's signals/obi.py, signals/microprice.py and
// signals/impact.py, generalized from Python's class-per-signal hierarchy
// into Go value types implementing a single Signal interface, the way the
// teacher's strategy package implements one OnTick-shaped interface per
// heuristic.
package signalengine

import (
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

// Signal computes one microstructure feature from a MarketData snapshot,
// returning a value in [-1, 1] with positive meaning bullish.
type Signal interface {
	Name() string
	Calculate(md domain.MarketData) float64
	Weight() float64
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// OBI is the order-book-imbalance signal:
// (bidVolume - askVolume) / (bidVolume + askVolume) over the top Levels
// rungs on each side.
type OBI struct {
	Levels   int
	Weighted bool
	weight   float64
}

// NewOBI constructs an OBI signal. Weighted enables the original's
// distance-weighted volume mode (nearer levels count more), which the
// distilled spec left unspecified — resolved here to match the original's
// default.
func NewOBI(levels int, weight float64, weighted bool) *OBI {
	if levels <= 0 {
		levels = 5
	}
	return &OBI{Levels: levels, Weighted: weighted, weight: weight}
}

func (o *OBI) Name() string    { return "obi" }
func (o *OBI) Weight() float64 { return o.weight }

func (o *OBI) Calculate(md domain.MarketData) float64 {
	if len(md.Bids) == 0 || len(md.Asks) == 0 {
		return 0
	}

	bidVol := o.volume(md.Bids)
	askVol := o.volume(md.Asks)
	total := bidVol.Add(askVol)
	if total.IsZero() {
		return 0
	}

	v, _ := bidVol.Sub(askVol).Div(total).Float64()
	return clamp(v, -1, 1)
}

func (o *OBI) volume(levels []domain.Level) decimal.Decimal {
	n := o.Levels
	if n > len(levels) {
		n = len(levels)
	}
	levels = levels[:n]
	if n == 0 {
		return decimal.Zero
	}
	if !o.Weighted {
		total := decimal.Zero
		for _, l := range levels {
			total = total.Add(l.Size)
		}
		return total
	}

	weightSum := n * (n + 1) / 2
	total := decimal.Zero
	for i, l := range levels {
		w := decimal.NewFromInt(int64(n - i)).Div(decimal.NewFromInt(int64(weightSum)))
		total = total.Add(l.Size.Mul(w))
	}
	return total
}

// Microprice is the liquidity-weighted deviation of the microprice from mid:
// ((bestBid*askSize + bestAsk*bidSize)/(bidSize+askSize) - mid) / mid,
// scaled up so small deviations produce a meaningful signal.
type Microprice struct {
	ScaleFactor float64
	weight      float64
}

// NewMicroprice constructs a Microprice signal with the given amplification
// factor (the original defaults to 10000, i.e. a 0.01% deviation maps to 1.0).
func NewMicroprice(weight, scaleFactor float64) *Microprice {
	if scaleFactor <= 0 {
		scaleFactor = 10000
	}
	return &Microprice{ScaleFactor: scaleFactor, weight: weight}
}

func (m *Microprice) Name() string    { return "microprice" }
func (m *Microprice) Weight() float64 { return m.weight }

func (m *Microprice) Calculate(md domain.MarketData) float64 {
	bid, okB := md.BestBid()
	ask, okA := md.BestAsk()
	if !okB || !okA || md.Mid.IsZero() {
		return 0
	}

	totalSize := bid.Size.Add(ask.Size)
	if totalSize.IsZero() {
		return 0
	}

	micro := ask.Price.Mul(bid.Size).Add(bid.Price.Mul(ask.Size)).Div(totalSize)
	deviation := micro.Sub(md.Mid).Div(md.Mid)
	scaled, _ := deviation.Mul(decimal.NewFromFloat(m.ScaleFactor)).Float64()
	return clamp(scaled, -1, 1)
}

// Impact is the recent-trade-tape impact signal:
// (buyVolume - sellVolume) / (buyVolume + sellVolume) over trades within
// WindowMs of the snapshot timestamp.
type Impact struct {
	WindowMs int64
	weight   float64
}

// NewImpact constructs an Impact signal over the given lookback window.
func NewImpact(windowMs int64, weight float64) *Impact {
	if windowMs <= 0 {
		windowMs = 100
	}
	return &Impact{WindowMs: windowMs, weight: weight}
}

func (imp *Impact) Name() string    { return "impact" }
func (imp *Impact) Weight() float64 { return imp.weight }

func (imp *Impact) Calculate(md domain.MarketData) float64 {
	if len(md.RecentTrades) == 0 {
		return 0
	}

	windowStart := md.Ts - imp.WindowMs
	buyVol := decimal.Zero
	sellVol := decimal.Zero
	for _, tr := range md.RecentTrades {
		if tr.Ts < windowStart {
			continue
		}
		if tr.Side == domain.Buy {
			buyVol = buyVol.Add(tr.Size)
		} else {
			sellVol = sellVol.Add(tr.Size)
		}
	}

	total := buyVol.Add(sellVol)
	if total.IsZero() {
		return 0
	}

	v, _ := buyVol.Sub(sellVol).Div(total).Float64()
	return clamp(v, -1, 1)
}

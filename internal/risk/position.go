package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

// PositionManager tracks per-symbol weighted-average-cost positions and
// realized/unrealized PnL, grounded on risk/position_manager.py.
type PositionManager struct {
	log zerolog.Logger

	mu        sync.Mutex
	positions map[string]domain.Position
}

// NewPositionManager constructs an empty PositionManager.
func NewPositionManager(log zerolog.Logger) *PositionManager {
	return &PositionManager{
		log:       log.With().Str("component", "position_manager").Logger(),
		positions: make(map[string]domain.Position),
	}
}

// UpdateFromOrder folds one fill into the symbol's running position. It
// handles the four cases the original's update_position distinguishes:
// a fresh open on a flat position, a same-direction add (weighted-average
// entry price), a partial close in the opposite direction (entry price
// held, realized PnL booked on the closed portion), and a full close or
// reversal (realized PnL on the whole prior size, any excess opens a new
// position on the other side).
func (pm *PositionManager) UpdateFromOrder(order domain.Order, fillSize, fillPrice decimal.Decimal) domain.Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pos, ok := pm.positions[order.Symbol]
	if !ok {
		pos = domain.Position{Symbol: order.Symbol}
	}

	signedFill := fillSize
	if order.Side == domain.Sell {
		signedFill = signedFill.Neg()
	}

	switch {
	case pos.Size.IsZero():
		pos = pm.openFresh(pos, signedFill, fillPrice)

	case sameSign(pos.Size, signedFill):
		pos = pm.addSameDirection(pos, signedFill, fillPrice)

	default:
		pos = pm.reduceOrReverse(pos, signedFill, fillPrice)
	}

	pm.positions[order.Symbol] = pos
	pm.log.Debug().
		Str("symbol", pos.Symbol).
		Str("size", pos.Size.String()).
		Str("avg_entry", pos.AvgEntryPrice.String()).
		Str("realized_pnl", pos.RealizedPnL.String()).
		Msg("position_updated")
	return pos
}

func (pm *PositionManager) openFresh(pos domain.Position, signedFill, fillPrice decimal.Decimal) domain.Position {
	pos.Size = signedFill
	pos.AvgEntryPrice = fillPrice
	pos.OpenedAt = time.Now().UTC()
	pos.HasOpenedAt = true
	return pos
}

func (pm *PositionManager) addSameDirection(pos domain.Position, signedFill, fillPrice decimal.Decimal) domain.Position {
	oldNotional := pos.AvgEntryPrice.Mul(pos.Size.Abs())
	addNotional := fillPrice.Mul(signedFill.Abs())
	newSize := pos.Size.Add(signedFill)

	if !newSize.IsZero() {
		pos.AvgEntryPrice = oldNotional.Add(addNotional).Div(newSize.Abs())
	}
	pos.Size = newSize
	return pos
}

// reduceOrReverse handles a fill in the opposite direction of the existing
// position: partial close, full close, or reversal (close plus open on the
// other side), booking realized PnL on the closed portion only.
func (pm *PositionManager) reduceOrReverse(pos domain.Position, signedFill, fillPrice decimal.Decimal) domain.Position {
	closingSize := decimal.Min(pos.Size.Abs(), signedFill.Abs())

	var pnlPerUnit decimal.Decimal
	if pos.Size.IsPositive() {
		pnlPerUnit = fillPrice.Sub(pos.AvgEntryPrice)
	} else {
		pnlPerUnit = pos.AvgEntryPrice.Sub(fillPrice)
	}
	pos.RealizedPnL = pos.RealizedPnL.Add(pnlPerUnit.Mul(closingSize))

	newSize := pos.Size.Add(signedFill)

	switch {
	case newSize.IsZero():
		pos.Size = decimal.Zero
		pos.AvgEntryPrice = decimal.Zero
		pos.UnrealizedPnL = decimal.Zero
		pos.HasOpenedAt = false
		pos.OpenedAt = time.Time{}

	case sameSign(pos.Size, newSize):
		// Partial close: direction unchanged, entry price untouched.
		pos.Size = newSize

	default:
		// Reversal: the fill size exceeded the prior position, flipping side.
		pos.Size = newSize
		pos.AvgEntryPrice = fillPrice
		pos.OpenedAt = time.Now().UTC()
		pos.HasOpenedAt = true
	}
	return pos
}

func sameSign(a, b decimal.Decimal) bool {
	return (a.IsPositive() && b.IsPositive()) || (a.IsNegative() && b.IsNegative())
}

// UpdatePrices recomputes unrealized PnL for every open position against
// the supplied mark prices. Symbols without a known mark are left
// unchanged.
func (pm *PositionManager) UpdatePrices(prices map[string]decimal.Decimal) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for symbol, pos := range pm.positions {
		price, ok := prices[symbol]
		if !ok || pos.Size.IsZero() {
			continue
		}
		diff := price.Sub(pos.AvgEntryPrice)
		if pos.Size.IsNegative() {
			diff = diff.Neg()
		}
		pos.UnrealizedPnL = diff.Mul(pos.Size.Abs())
		pm.positions[symbol] = pos
	}
}

// GetPosition returns the current position for a symbol.
func (pm *PositionManager) GetPosition(symbol string) (domain.Position, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pos, ok := pm.positions[symbol]
	return pos, ok
}

// AllPositions returns a snapshot copy of every tracked position.
func (pm *PositionManager) AllPositions() map[string]domain.Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make(map[string]domain.Position, len(pm.positions))
	for k, v := range pm.positions {
		out[k] = v
	}
	return out
}

// TotalUnrealizedPnL sums unrealized PnL across all tracked positions.
func (pm *PositionManager) TotalUnrealizedPnL() decimal.Decimal {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	total := decimal.Zero
	for _, p := range pm.positions {
		total = total.Add(p.UnrealizedPnL)
	}
	return total
}

// TotalRealizedPnL sums realized PnL across all tracked positions.
func (pm *PositionManager) TotalRealizedPnL() decimal.Decimal {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	total := decimal.Zero
	for _, p := range pm.positions {
		total = total.Add(p.RealizedPnL)
	}
	return total
}

// PositionAge reports how long a symbol's position has been open.
// Informational only — there is no auto-close on staleness.
func (pm *PositionManager) PositionAge(symbol string) (time.Duration, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pos, ok := pm.positions[symbol]
	if !ok || !pos.HasOpenedAt || pos.Size.IsZero() {
		return 0, false
	}
	return time.Since(pos.OpenedAt), true
}

// IsPositionStale reports whether a symbol's position has been open longer
// than maxAge. Informational only — callers decide what, if anything, to
// do about it.
func (pm *PositionManager) IsPositionStale(symbol string, maxAge time.Duration) bool {
	age, ok := pm.PositionAge(symbol)
	return ok && age > maxAge
}

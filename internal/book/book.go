// Package book maintains per-symbol top-N L2 order books from a snapshot
// plus a stream of incremental updates, grounded on the teacher's stateful,
// mutex-guarded accumulator pattern (internal/exchange.Feed) generalized from
// a single price series to a two-sided, depth-capped book.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Update is one incremental L2 change. Size == 0 removes the level.
type Update struct {
	Side  Side
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Side distinguishes bid/ask without reusing domain.Side, since a book side
// is not an order side (there is no "IOC bid").
type Side int

const (
	Bid Side = iota
	Ask
)

// OrderBook is a single symbol's top-N L2 book. Safe for concurrent reads via
// Snapshot; Apply/ApplySnapshot must be called from a single writer (the
// MarketDataHub that owns this symbol).
type OrderBook struct {
	mu     sync.RWMutex
	symbol string
	depth  int
	bids   []Level
	asks   []Level
	lastTs int64
	stale  bool
	log    zerolog.Logger
}

// Level is a resting price/size rung.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// New constructs an empty book capped at depth levels per side.
func New(symbol string, depth int, log zerolog.Logger) *OrderBook {
	if depth <= 0 {
		depth = 10
	}
	return &OrderBook{
		symbol: symbol,
		depth:  depth,
		log:    log.With().Str("symbol", symbol).Logger(),
	}
}

// ApplySnapshot replaces both sides wholesale (used on connect and on
// crossed-book resync) and clears the stale flag.
func (b *OrderBook) ApplySnapshot(bids, asks []Level, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = sortedTrimmed(bids, true, b.depth)
	b.asks = sortedTrimmed(asks, false, b.depth)
	b.lastTs = ts
	b.stale = false
}

// Apply folds a batch of incremental updates into the book. If the resulting
// book is crossed (best bid >= best ask), the book is marked stale and no
// further Snapshot calls will succeed until ApplySnapshot resyncs it —
// per spec, a stale book is never published to signals.
func (b *OrderBook) Apply(updates []Update, ts int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, u := range updates {
		switch u.Side {
		case Bid:
			b.bids = applyLevel(b.bids, u.Price, u.Size, true)
		case Ask:
			b.asks = applyLevel(b.asks, u.Price, u.Size, false)
		}
	}
	b.bids = trim(b.bids, b.depth)
	b.asks = trim(b.asks, b.depth)
	b.lastTs = ts

	if len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].Price.GreaterThanOrEqual(b.asks[0].Price) {
		b.stale = true
		b.log.Warn().
			Str("best_bid", b.bids[0].Price.String()).
			Str("best_ask", b.asks[0].Price.String()).
			Msg("book_crossed_marking_stale")
	}
}

// IsStale reports whether the book needs a resync before it can be published.
func (b *OrderBook) IsStale() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stale
}

// IsValid reports whether the book has data on both sides and is not stale.
func (b *OrderBook) IsValid() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.stale && len(b.bids) > 0 && len(b.asks) > 0
}

// LastUpdate returns the unix-ms timestamp of the last applied update.
func (b *OrderBook) LastUpdate() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastTs
}

// StaleFor reports how long the book has gone without an update, given now.
func (b *OrderBook) StaleFor(now time.Time) time.Duration {
	b.mu.RLock()
	last := b.lastTs
	b.mu.RUnlock()
	if last == 0 {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(time.UnixMilli(last))
}

// Snapshot returns an immutable copy of the current book, or false if the
// book is stale/empty and must not be published downstream.
func (b *OrderBook) Snapshot() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.stale || len(b.bids) == 0 || len(b.asks) == 0 {
		return Snapshot{}, false
	}

	bids := make([]Level, len(b.bids))
	copy(bids, b.bids)
	asks := make([]Level, len(b.asks))
	copy(asks, b.asks)

	return Snapshot{
		Symbol: b.symbol,
		Ts:     b.lastTs,
		Bids:   bids,
		Asks:   asks,
		Mid:    midOf(bids[0].Price, asks[0].Price),
	}, true
}

// Snapshot is an immutable view of a book at one instant.
type Snapshot struct {
	Symbol string
	Ts     int64
	Bids   []Level
	Asks   []Level
	Mid    decimal.Decimal
}

// SpreadBps returns the bid/ask spread in basis points of mid.
func (s Snapshot) SpreadBps() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 || s.Mid.IsZero() {
		return 0
	}
	spread := s.Asks[0].Price.Sub(s.Bids[0].Price)
	bps, _ := spread.Div(s.Mid).Mul(decimal.NewFromInt(10000)).Float64()
	return bps
}

// Microprice is the depth-weighted mid: (bestAsk*bidSize + bestBid*askSize) / (bidSize+askSize).
func (s Snapshot) Microprice() (decimal.Decimal, bool) {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return decimal.Zero, false
	}
	bid, ask := s.Bids[0], s.Asks[0]
	total := bid.Size.Add(ask.Size)
	if total.IsZero() {
		return decimal.Zero, false
	}
	num := ask.Price.Mul(bid.Size).Add(bid.Price.Mul(ask.Size))
	return num.Div(total), true
}

func midOf(bid, ask decimal.Decimal) decimal.Decimal {
	return bid.Add(ask).Div(decimal.NewFromInt(2))
}

func applyLevel(levels []Level, price, size decimal.Decimal, bidSide bool) []Level {
	idx := -1
	for i, lvl := range levels {
		if lvl.Price.Equal(price) {
			idx = i
			break
		}
	}
	if size.IsZero() {
		if idx >= 0 {
			levels = append(levels[:idx], levels[idx+1:]...)
		}
		return levels
	}
	if idx >= 0 {
		levels[idx].Size = size
		return levels
	}
	levels = append(levels, Level{Price: price, Size: size})
	return sortSide(levels, bidSide)
}

func sortSide(levels []Level, descending bool) []Level {
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})
	return levels
}

func trim(levels []Level, depth int) []Level {
	if len(levels) > depth {
		return levels[:depth]
	}
	return levels
}

func sortedTrimmed(levels []Level, descending bool, depth int) []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	out = sortSide(out, descending)
	return trim(out, depth)
}

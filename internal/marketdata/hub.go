// Package marketdata owns the streaming connection to the venue and fans
// incoming L2 updates and trades out to per-symbol order books, grounded on
// the original's MarketDataManager (bounded trade deque per symbol, book
// ownership keyed by symbol) and generalized from a single push-callback
// model to a channel-fed hub matching the teacher's Feed.Run loop shape.
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arvion-labs/perpcore/internal/adapter"
	"github.com/arvion-labs/perpcore/internal/book"
	"github.com/arvion-labs/perpcore/internal/domain"
	"github.com/arvion-labs/perpcore/internal/metrics"
)

const defaultTradeRingSize = 1000

// Hub demultiplexes one adapter.Adapter's stream into per-symbol books and
// trade rings, and coalesces a Tick per symbol at most once per interval.
type Hub struct {
	adapter         adapter.Adapter
	depth           int
	coalesceInterval time.Duration
	tradeRingSize   int
	log             zerolog.Logger

	mu     sync.RWMutex
	books  map[string]*book.OrderBook
	trades map[string]*tradeRing

	updates chan adapter.L2Update
	rawTr   chan domain.Trade
	ticks   chan Tick
}

// Tick is a coalesced per-symbol notification that new market data is
// available; consumers call Hub.Snapshot to read it.
type Tick struct {
	Symbol string
	Ts     int64
}

// Option configures Hub construction.
type Option func(*Hub)

// WithCoalesceInterval overrides the default 1ms tick coalescing window.
func WithCoalesceInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.coalesceInterval = d
		}
	}
}

// WithTradeRingSize overrides the default bounded trade history length.
func WithTradeRingSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.tradeRingSize = n
		}
	}
}

// New constructs a Hub fed by the given adapter, maintaining top-depth books.
func New(a adapter.Adapter, depth int, log zerolog.Logger, opts ...Option) *Hub {
	h := &Hub{
		adapter:          a,
		depth:            depth,
		coalesceInterval: time.Millisecond,
		tradeRingSize:    defaultTradeRingSize,
		log:              log.With().Str("component", "marketdata").Logger(),
		books:            make(map[string]*book.OrderBook),
		trades:           make(map[string]*tradeRing),
		updates:          make(chan adapter.L2Update, 4096),
		rawTr:            make(chan domain.Trade, 4096),
		ticks:            make(chan Tick, 256),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ticks returns the channel of coalesced per-symbol tick notifications.
func (h *Hub) Ticks() <-chan Tick { return h.ticks }

// Run subscribes to symbols and drives the demux loop until ctx is
// canceled. It also performs the initial snapshot fetch for each symbol.
func (h *Hub) Run(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		h.ensureBook(sym)
		if err := h.resync(ctx, sym); err != nil {
			h.log.Warn().Err(err).Str("symbol", sym).Msg("initial snapshot failed")
			continue
		}
		h.publish(sym)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.adapter.Subscribe(ctx, symbols, h.updates, h.rawTr)
	}()

	pending := make(map[string]struct{})
	coalesce := time.NewTicker(h.coalesceInterval)
	defer coalesce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case u := <-h.updates:
			h.applyUpdate(ctx, u)
			pending[u.Symbol] = struct{}{}
		case tr := <-h.rawTr:
			h.appendTrade(tr)
			pending[tr.Symbol] = struct{}{}
		case <-coalesce.C:
			for sym := range pending {
				h.publish(sym)
			}
			pending = make(map[string]struct{})
		}
	}
}

func (h *Hub) ensureBook(symbol string) *book.OrderBook {
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.books[symbol]; ok {
		return b
	}
	b := book.New(symbol, h.depth, h.log)
	h.books[symbol] = b
	h.trades[symbol] = newTradeRing(h.tradeRingSize)
	return b
}

func (h *Hub) applyUpdate(ctx context.Context, u adapter.L2Update) {
	b := h.ensureBook(u.Symbol)
	side := book.Bid
	if u.Side == adapter.SideAsk {
		side = book.Ask
	}
	b.Apply([]book.Update{{Side: side, Price: u.Price, Size: u.Size}}, u.Ts)
	metrics.BookUpdatesTotal.WithLabelValues(u.Symbol).Inc()

	if b.IsStale() {
		h.log.Warn().Str("symbol", u.Symbol).Msg("book stale after update, triggering resync")
		if err := h.resync(ctx, u.Symbol); err != nil {
			h.log.Warn().Err(err).Str("symbol", u.Symbol).Msg("resync failed")
		}
	}
}

func (h *Hub) resync(ctx context.Context, symbol string) error {
	snap, err := h.adapter.RequestSnapshot(ctx, symbol)
	if err != nil {
		return fmt.Errorf("request snapshot for %s: %w", symbol, err)
	}
	b := h.ensureBook(symbol)
	bids := make([]book.Level, len(snap.Bids))
	for i, l := range snap.Bids {
		bids[i] = book.Level{Price: l.Price, Size: l.Size}
	}
	asks := make([]book.Level, len(snap.Asks))
	for i, l := range snap.Asks {
		asks[i] = book.Level{Price: l.Price, Size: l.Size}
	}
	b.ApplySnapshot(bids, asks, snap.Ts)
	return nil
}

func (h *Hub) appendTrade(tr domain.Trade) {
	h.mu.RLock()
	ring, ok := h.trades[tr.Symbol]
	h.mu.RUnlock()
	if !ok {
		return
	}
	ring.push(tr)
}

func (h *Hub) publish(symbol string) {
	metrics.TicksTotal.WithLabelValues(symbol).Inc()
	select {
	case h.ticks <- Tick{Symbol: symbol, Ts: time.Now().UnixMilli()}:
	default:
		h.log.Warn().Str("symbol", symbol).Msg("tick channel full, dropping coalesced tick")
	}
}

// Snapshot returns the current immutable MarketData for symbol, or false if
// the book is stale/empty and must not be handed to signals.
func (h *Hub) Snapshot(symbol string) (domain.MarketData, bool) {
	h.mu.RLock()
	b, ok := h.books[symbol]
	ring := h.trades[symbol]
	h.mu.RUnlock()
	if !ok {
		return domain.MarketData{}, false
	}

	snap, ok := b.Snapshot()
	if !ok {
		return domain.MarketData{}, false
	}

	bids := make([]domain.Level, len(snap.Bids))
	for i, l := range snap.Bids {
		bids[i] = domain.Level{Price: l.Price, Size: l.Size}
	}
	asks := make([]domain.Level, len(snap.Asks))
	for i, l := range snap.Asks {
		asks[i] = domain.Level{Price: l.Price, Size: l.Size}
	}

	var recent []domain.Trade
	if ring != nil {
		recent = ring.recent(100)
	}

	return domain.MarketData{
		Symbol:       symbol,
		Ts:           snap.Ts,
		Bids:         bids,
		Asks:         asks,
		Mid:          snap.Mid,
		RecentTrades: recent,
	}, true
}

package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/adapter"
	"github.com/arvion-labs/perpcore/internal/domain"
)

type fakeAdapter struct {
	snapshot adapter.SnapshotResponse
	subErr   chan error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		snapshot: adapter.SnapshotResponse{
			Bids: []domain.Level{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}},
			Asks: []domain.Level{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}},
			Ts:   1,
		},
		subErr: make(chan error, 1),
	}
}

func (f *fakeAdapter) Subscribe(ctx context.Context, symbols []string, updates chan<- adapter.L2Update, trades chan<- domain.Trade) error {
	select {
	case err := <-f.subErr:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeAdapter) RequestSnapshot(ctx context.Context, symbol string) (adapter.SnapshotResponse, error) {
	snap := f.snapshot
	snap.Symbol = symbol
	return snap, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, req adapter.PlaceRequest) (adapter.PlaceResult, error) {
	return adapter.PlaceResult{}, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (f *fakeAdapter) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return domain.Order{}, nil
}
func (f *fakeAdapter) GetFills(ctx context.Context, orderID string) ([]adapter.Fill, error) {
	return nil, nil
}

func TestHubInitialResyncProducesSnapshot(t *testing.T) {
	fa := newFakeAdapter()
	h := New(fa, 5, zerolog.Nop(), WithCoalesceInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	go h.Run(ctx, []string{"BTC-PERP"})

	// Give the resync a moment to land before asserting.
	deadline := time.Now().Add(50 * time.Millisecond)
	var md domain.MarketData
	var ok bool
	for time.Now().Before(deadline) {
		md, ok = h.Snapshot("BTC-PERP")
		if ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !ok {
		t.Fatalf("expected snapshot to become available after initial resync")
	}
	if len(md.Bids) != 1 || len(md.Asks) != 1 {
		t.Fatalf("unexpected snapshot levels: %+v", md)
	}
}

func TestHubCoalescedTickAfterInitialResync(t *testing.T) {
	fa := newFakeAdapter()
	h := New(fa, 5, zerolog.Nop(), WithCoalesceInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go h.Run(ctx, []string{"BTC-PERP"})

	select {
	case tick := <-h.Ticks():
		if tick.Symbol != "BTC-PERP" {
			t.Fatalf("unexpected tick symbol: %s", tick.Symbol)
		}
	case <-time.After(150 * time.Millisecond):
		t.Fatalf("expected a coalesced tick after initial resync")
	}
}

func TestHubUnknownSymbolSnapshotMiss(t *testing.T) {
	fa := newFakeAdapter()
	h := New(fa, 5, zerolog.Nop())
	if _, ok := h.Snapshot("NOPE"); ok {
		t.Fatalf("expected no snapshot for unknown symbol")
	}
}

package book

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func lvl(price, size string) Level {
	return Level{Price: dec(price), Size: dec(size)}
}

func newTestBook(depth int) *OrderBook {
	return New("BTC-PERP", depth, zerolog.Nop())
}

func TestApplySnapshotRoundTrip(t *testing.T) {
	b := newTestBook(5)
	bids := []Level{lvl("100", "1"), lvl("99", "2")}
	asks := []Level{lvl("101", "1"), lvl("102", "2")}
	b.ApplySnapshot(bids, asks, 1000)

	snap, ok := b.Snapshot()
	if !ok {
		t.Fatalf("expected valid snapshot after ApplySnapshot")
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 2 {
		t.Fatalf("unexpected level counts: %+v", snap)
	}
	if !snap.Bids[0].Price.Equal(dec("100")) || !snap.Asks[0].Price.Equal(dec("101")) {
		t.Fatalf("unexpected best levels: %+v", snap)
	}
	if snap.Ts != 1000 {
		t.Fatalf("expected ts 1000, got %d", snap.Ts)
	}
}

func TestApplyUpsertAndRemove(t *testing.T) {
	b := newTestBook(5)
	b.ApplySnapshot([]Level{lvl("100", "1")}, []Level{lvl("101", "1")}, 1)

	b.Apply([]Update{
		{Side: Bid, Price: dec("100"), Size: dec("3")},
		{Side: Bid, Price: dec("99"), Size: dec("1")},
	}, 2)

	snap, ok := b.Snapshot()
	if !ok {
		t.Fatalf("expected valid snapshot")
	}
	if !snap.Bids[0].Size.Equal(dec("3")) {
		t.Fatalf("expected level update to 3, got %s", snap.Bids[0].Size)
	}
	if len(snap.Bids) != 2 {
		t.Fatalf("expected 2 bid levels, got %d", len(snap.Bids))
	}

	b.Apply([]Update{{Side: Bid, Price: dec("99"), Size: decimal.Zero}}, 3)
	snap, ok = b.Snapshot()
	if !ok {
		t.Fatalf("expected valid snapshot")
	}
	if len(snap.Bids) != 1 {
		t.Fatalf("expected removal to leave 1 bid level, got %d", len(snap.Bids))
	}
}

func TestApplyTrimsToDepth(t *testing.T) {
	b := newTestBook(2)
	b.ApplySnapshot(nil, nil, 0)
	b.Apply([]Update{
		{Side: Bid, Price: dec("100"), Size: dec("1")},
		{Side: Bid, Price: dec("99"), Size: dec("1")},
		{Side: Bid, Price: dec("98"), Size: dec("1")},
		{Side: Ask, Price: dec("101"), Size: dec("1")},
	}, 1)

	b.mu.RLock()
	bids := b.bids
	b.mu.RUnlock()
	if len(bids) != 2 {
		t.Fatalf("expected bids trimmed to depth 2, got %d", len(bids))
	}
	if !bids[0].Price.Equal(dec("100")) || !bids[1].Price.Equal(dec("99")) {
		t.Fatalf("unexpected top levels after trim: %+v", bids)
	}
}

func TestCrossedBookMarksStaleAndSuppressesSnapshot(t *testing.T) {
	b := newTestBook(5)
	b.ApplySnapshot([]Level{lvl("100", "1")}, []Level{lvl("101", "1")}, 1)

	b.Apply([]Update{{Side: Bid, Price: dec("102"), Size: dec("1")}}, 2)

	if !b.IsStale() {
		t.Fatalf("expected book to be marked stale when crossed")
	}
	if _, ok := b.Snapshot(); ok {
		t.Fatalf("expected Snapshot to fail while stale")
	}

	b.ApplySnapshot([]Level{lvl("100", "1")}, []Level{lvl("101", "1")}, 3)
	if b.IsStale() {
		t.Fatalf("expected resync to clear stale flag")
	}
	if _, ok := b.Snapshot(); !ok {
		t.Fatalf("expected Snapshot to succeed after resync")
	}
}

func TestSnapshotDerivedValues(t *testing.T) {
	snap := Snapshot{
		Bids: []Level{lvl("100", "2")},
		Asks: []Level{lvl("102", "1")},
		Mid:  dec("101"),
	}

	bps := snap.SpreadBps()
	if bps <= 0 {
		t.Fatalf("expected positive spread bps, got %v", bps)
	}

	micro, ok := snap.Microprice()
	if !ok {
		t.Fatalf("expected microprice to compute")
	}
	// (102*2 + 100*1) / 3 = 304/3 = 101.333...
	want := dec("304").Div(dec("3"))
	if !micro.Equal(want) {
		t.Fatalf("unexpected microprice: got %s want %s", micro, want)
	}
}

func TestIsValidRequiresBothSidesAndFreshness(t *testing.T) {
	b := newTestBook(5)
	if b.IsValid() {
		t.Fatalf("expected empty book invalid")
	}
	b.ApplySnapshot([]Level{lvl("100", "1")}, []Level{lvl("101", "1")}, 1)
	if !b.IsValid() {
		t.Fatalf("expected populated book valid")
	}
}

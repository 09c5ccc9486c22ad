package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell {
		t.Fatalf("expected Sell, got %s", Buy.Opposite())
	}
	if Sell.Opposite() != Buy {
		t.Fatalf("expected Buy, got %s", Sell.Opposite())
	}
}

func TestOrderStatusIsTerminal(t *testing.T) {
	cases := map[OrderStatus]bool{
		StatusCreated:         false,
		StatusSubmitted:       false,
		StatusPartiallyFilled: false,
		StatusFilled:          true,
		StatusCanceled:        true,
		StatusRejected:        true,
		StatusExpired:         true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestMarketDataBestLevels(t *testing.T) {
	md := MarketData{}
	if _, ok := md.BestBid(); ok {
		t.Fatalf("expected no best bid on empty book")
	}
	if _, ok := md.BestAsk(); ok {
		t.Fatalf("expected no best ask on empty book")
	}

	md.Bids = []Level{{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}}
	md.Asks = []Level{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}}

	bid, ok := md.BestBid()
	if !ok || !bid.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected best bid: %+v ok=%v", bid, ok)
	}
	ask, ok := md.BestAsk()
	if !ok || !ask.Price.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("unexpected best ask: %+v ok=%v", ask, ok)
	}
}

func TestSignalScoreWithConfidence(t *testing.T) {
	s := SignalScore{Value: 0.6, Confidence: Low, Components: []float64{0.1, 0.2}}
	updated := s.WithConfidence(High)

	if s.Confidence != Low {
		t.Fatalf("original SignalScore mutated: %s", s.Confidence)
	}
	if updated.Confidence != High {
		t.Fatalf("expected High, got %s", updated.Confidence)
	}
	if updated.Value != s.Value {
		t.Fatalf("WithConfidence changed Value: %v vs %v", updated.Value, s.Value)
	}
}

func TestPositionIsFlat(t *testing.T) {
	p := Position{Size: decimal.Zero}
	if !p.IsFlat() {
		t.Fatalf("expected flat position")
	}
	p.Size = decimal.NewFromInt(1)
	if p.IsFlat() {
		t.Fatalf("expected non-flat position")
	}
}

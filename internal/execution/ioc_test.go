package execution

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/arvion-labs/perpcore/internal/domain"
)

func TestIOCFillsImmediately(t *testing.T) {
	fa := newFakeAdapter()
	fa.fillAfterPoll = 1
	fa.fillSize = dec("1")
	fa.fillPrice = dec("101.01")

	e := NewIOCExecutor(fa, DefaultIOCConfig(), zerolog.Nop())
	order, outcome := e.Execute(context.Background(), domain.Buy, dec("1"), testMD())

	if outcome != OutcomeFilled {
		t.Fatalf("expected OutcomeFilled, got %v", outcome)
	}
	if !order.FilledSize.Equal(dec("1")) {
		t.Fatalf("expected filled size 1, got %s", order.FilledSize)
	}
}

func TestIOCRejectedOnPlace(t *testing.T) {
	fa := newFakeAdapter()
	fa.rejectOnPlace = true
	e := NewIOCExecutor(fa, DefaultIOCConfig(), zerolog.Nop())

	_, outcome := e.Execute(context.Background(), domain.Buy, dec("1"), testMD())
	if outcome != OutcomeRejected {
		t.Fatalf("expected OutcomeRejected, got %v", outcome)
	}
}

func TestIOCPriceCrossesTowardFill(t *testing.T) {
	e := NewIOCExecutor(newFakeAdapter(), DefaultIOCConfig(), zerolog.Nop())
	price, err := e.executionPrice(testMD(), domain.Buy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.GreaterThan(dec("101")) {
		t.Fatalf("expected buy price above best ask 101, got %s", price)
	}

	price, err = e.executionPrice(testMD(), domain.Sell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.LessThan(dec("100")) {
		t.Fatalf("expected sell price below best bid 100, got %s", price)
	}
}

func TestIOCPriceCappedByMaxCrossBps(t *testing.T) {
	cfg := DefaultIOCConfig()
	cfg.PriceAdjustmentBps = 100
	cfg.MaxCrossBps = 5
	e := NewIOCExecutor(newFakeAdapter(), cfg, zerolog.Nop())

	price, _ := e.executionPrice(testMD(), domain.Buy)
	// 5bps of 101 = 0.0505, so capped price should be at most 101.0505
	if price.GreaterThan(dec("101.06")) {
		t.Fatalf("expected price capped near 5bps above touch, got %s", price)
	}
}

package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func testMD() domain.MarketData {
	return domain.MarketData{
		Symbol: "BTC-PERP",
		Bids:   []domain.Level{{Price: dec("100"), Size: dec("10")}},
		Asks:   []domain.Level{{Price: dec("101"), Size: dec("10")}},
	}
}

func fastMakerConfig() ShallowMakerConfig {
	cfg := DefaultShallowMakerConfig()
	cfg.TimeoutHigh = 200 * time.Millisecond
	cfg.TimeoutMedium = 100 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func TestShallowMakerFillsWithinTimeout(t *testing.T) {
	fa := newFakeAdapter()
	fa.fillAfterPoll = 2
	fa.fillSize = dec("1")
	fa.fillPrice = dec("100.1")

	e := NewShallowMakerExecutor(fa, fastMakerConfig(), zerolog.Nop())
	order, outcome := e.Execute(context.Background(), domain.Buy, dec("1"), domain.High, testMD())

	if outcome != OutcomeFilled {
		t.Fatalf("expected OutcomeFilled, got %v", outcome)
	}
	if !order.FilledSize.Equal(dec("1")) {
		t.Fatalf("expected filled size 1, got %s", order.FilledSize)
	}
}

func TestShallowMakerTimesOutAndCancels(t *testing.T) {
	fa := newFakeAdapter() // never fills
	e := NewShallowMakerExecutor(fa, fastMakerConfig(), zerolog.Nop())

	order, outcome := e.Execute(context.Background(), domain.Buy, dec("1"), domain.Medium, testMD())
	if outcome != OutcomeTimedOut {
		t.Fatalf("expected OutcomeTimedOut, got %v", outcome)
	}
	if order.Status != domain.StatusCanceled {
		t.Fatalf("expected canceled status on timeout, got %v", order.Status)
	}
}

func TestShallowMakerRejectedOnPlace(t *testing.T) {
	fa := newFakeAdapter()
	fa.rejectOnPlace = true
	e := NewShallowMakerExecutor(fa, fastMakerConfig(), zerolog.Nop())

	_, outcome := e.Execute(context.Background(), domain.Buy, dec("1"), domain.High, testMD())
	if outcome != OutcomeRejected {
		t.Fatalf("expected OutcomeRejected, got %v", outcome)
	}
}

func TestShallowMakerPriceIsOneTickInsideTouch(t *testing.T) {
	fa := newFakeAdapter()
	cfg := fastMakerConfig()
	cfg.TickOffset = dec("0.1")
	e := NewShallowMakerExecutor(fa, cfg, zerolog.Nop())

	price, err := e.shallowMakerPrice(testMD(), domain.Buy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("100.1")) {
		t.Fatalf("expected buy price 100.1 (best_bid + tick), got %s", price)
	}

	price, err = e.shallowMakerPrice(testMD(), domain.Sell)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(dec("100.9")) {
		t.Fatalf("expected sell price 100.9 (best_ask - tick), got %s", price)
	}
}

func TestShallowMakerSkipsOnEmptyBookSide(t *testing.T) {
	fa := newFakeAdapter()
	e := NewShallowMakerExecutor(fa, fastMakerConfig(), zerolog.Nop())

	_, outcome := e.Execute(context.Background(), domain.Buy, dec("1"), domain.High, domain.MarketData{Symbol: "BTC-PERP"})
	if outcome != OutcomeSkipped {
		t.Fatalf("expected OutcomeSkipped for an empty book, got %v", outcome)
	}
}

package cost

import (
	"math"
	"testing"

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

func lvl(price, size string) domain.Level {
	return domain.Level{Price: dec(price), Size: dec(size)}
}

func TestSlippageEstimateBuyWalksAsks(t *testing.T) {
	s := NewSlippageEstimator(20)
	md := domain.MarketData{
		Asks: []domain.Level{lvl("100", "1"), lvl("101", "5")},
	}
	res := s.Estimate(md, domain.Buy, dec("2"))
	if res.LevelsConsumed != 2 {
		t.Fatalf("expected to consume 2 levels, got %d", res.LevelsConsumed)
	}
	// weighted price = (1*100 + 1*101) / 2 = 100.5, reference = 100
	if !res.EstimatedPrice.Equal(dec("100.5")) {
		t.Fatalf("unexpected weighted price: %s", res.EstimatedPrice)
	}
	if res.SlippageBps <= 0 {
		t.Fatalf("expected positive slippage for a buy walking up the book, got %v", res.SlippageBps)
	}
}

func TestSlippageEstimateNoLiquidity(t *testing.T) {
	s := NewSlippageEstimator(20)
	res := s.Estimate(domain.MarketData{}, domain.Buy, dec("1"))
	if !math.IsInf(res.SlippageBps, 1) || res.Acceptable {
		t.Fatalf("expected infinite unacceptable slippage with no liquidity, got %+v", res)
	}
}

func TestActualSlippageBpsSellSignFlip(t *testing.T) {
	s := NewSlippageEstimator(20)
	// Sell executed below reference: that is a cost, so bps should be positive.
	bps := s.ActualSlippageBps(dec("99"), dec("100"), domain.Sell)
	if bps <= 0 {
		t.Fatalf("expected positive (costly) slippage for a sell below reference, got %v", bps)
	}
}

func TestIsAcceptable(t *testing.T) {
	s := NewSlippageEstimator(10)
	if !s.IsAcceptable(5) {
		t.Fatalf("expected 5bps to be acceptable under a 10bps cap")
	}
	if s.IsAcceptable(15) {
		t.Fatalf("expected 15bps to exceed a 10bps cap")
	}
}

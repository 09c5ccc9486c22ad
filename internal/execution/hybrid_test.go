package execution

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/arvion-labs/perpcore/internal/domain"
)

type recordingPositions struct {
	mu     sync.Mutex
	orders []domain.Order
}

func (r *recordingPositions) UpdateFromOrder(order domain.Order, fillSize, fillPrice decimal.Decimal) domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
	return domain.Position{Symbol: order.Symbol, Size: fillSize}
}

type recordingFillRates struct {
	mu      sync.Mutex
	records []bool
}

func (r *recordingFillRates) Record(confidence domain.Confidence, filled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, filled)
}

type recordingAttributor struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingAttributor) Attribute(order domain.Order, score domain.SignalScore, md domain.MarketData, estimate domain.CostEstimate) domain.Attribution {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return domain.Attribution{OrderID: order.ID, Symbol: order.Symbol}
}

func newTestHybrid(fa *fakeAdapter, cfg HybridConfig) (*HybridExecutor, *recordingPositions, *recordingFillRates, *recordingAttributor) {
	maker := NewShallowMakerExecutor(fa, fastMakerConfig(), zerolog.Nop())
	ioc := NewIOCExecutor(fa, DefaultIOCConfig(), zerolog.Nop())
	pos := &recordingPositions{}
	rates := &recordingFillRates{}
	attr := &recordingAttributor{}
	h := NewHybridExecutor(maker, ioc, cfg, pos, rates, attr, zerolog.Nop())
	return h, pos, rates, attr
}

func TestHybridSkipsLowConfidence(t *testing.T) {
	fa := newFakeAdapter()
	h, _, rates, _ := newTestHybrid(fa, DefaultHybridConfig())

	score := domain.SignalScore{Value: 0.5, Confidence: domain.Low}
	_, ok := h.Execute(context.Background(), score, testMD(), dec("1"), domain.CostEstimate{})
	if ok {
		t.Fatalf("expected low confidence to be skipped")
	}
	if h.Statistics().SkippedSignals != 1 {
		t.Fatalf("expected 1 skipped signal, got %d", h.Statistics().SkippedSignals)
	}
	if len(rates.records) != 0 {
		t.Fatalf("expected no fill-rate record for a low confidence skip")
	}
}

func TestHybridHighConfidenceMakerFillDoesNotFallback(t *testing.T) {
	fa := newFakeAdapter()
	fa.fillAfterPoll = 1
	fa.fillSize = dec("1")
	fa.fillPrice = dec("100.1")

	h, pos, rates, attr := newTestHybrid(fa, DefaultHybridConfig())
	score := domain.SignalScore{Value: 0.9, Confidence: domain.High}
	order, ok := h.Execute(context.Background(), score, testMD(), dec("1"), domain.CostEstimate{})

	if !ok {
		t.Fatalf("expected a fill")
	}
	if h.Statistics().MakerExecutions != 1 || h.Statistics().IOCExecutions != 0 {
		t.Fatalf("expected 1 maker execution and 0 ioc executions, got %+v", h.Statistics())
	}
	if len(pos.orders) != 1 || pos.orders[0].ID != order.ID {
		t.Fatalf("expected the fill to be reported to positions exactly once")
	}
	if len(rates.records) != 1 || !rates.records[0] {
		t.Fatalf("expected a single true fill-rate record, got %+v", rates.records)
	}
	if attr.calls != 1 {
		t.Fatalf("expected a single attribution call, got %d", attr.calls)
	}
}

func TestHybridHighConfidenceFallsBackToIOCOnMakerTimeout(t *testing.T) {
	fa := newFakeAdapter()
	// Maker (LIMIT) orders never fill; IOC orders fill on their first poll.
	fa.fillAfterPollByKind = map[domain.OrderKind]int{domain.KindIOC: 1}
	fa.fillSize = dec("1")
	fa.fillPrice = dec("101.1")

	h, pos, rates, _ := newTestHybrid(fa, DefaultHybridConfig())

	score := domain.SignalScore{Value: 0.9, Confidence: domain.High}
	_, ok := h.Execute(context.Background(), score, testMD(), dec("1"), domain.CostEstimate{})

	if !ok {
		t.Fatalf("expected the ioc fallback to fill")
	}
	stats := h.Statistics()
	if stats.FallbackExecutions != 1 || stats.IOCExecutions != 1 {
		t.Fatalf("expected 1 fallback/ioc execution, got %+v", stats)
	}
	if len(rates.records) != 1 || rates.records[0] {
		t.Fatalf("expected the maker leg to record a false fill-rate entry, got %+v", rates.records)
	}
	if len(pos.orders) != 1 {
		t.Fatalf("expected exactly one fill reported to positions (the ioc fill), got %d", len(pos.orders))
	}
}

func TestHybridMediumConfidenceSkipsWithoutFallbackByDefault(t *testing.T) {
	fa := newFakeAdapter() // never fills
	h, _, rates, _ := newTestHybrid(fa, DefaultHybridConfig())

	score := domain.SignalScore{Value: 0.6, Confidence: domain.Medium}
	_, ok := h.Execute(context.Background(), score, testMD(), dec("1"), domain.CostEstimate{})

	if ok {
		t.Fatalf("expected medium confidence timeout to skip, not fallback")
	}
	if h.Statistics().IOCExecutions != 0 {
		t.Fatalf("expected no ioc executions for a default-config medium timeout")
	}
	if len(rates.records) != 1 || rates.records[0] {
		t.Fatalf("expected a single false fill-rate record, got %+v", rates.records)
	}
}

func TestHybridCoalescesConcurrentSignalForSameSymbol(t *testing.T) {
	fa := newFakeAdapter() // never fills, so the first attempt stays in flight
	h, _, _, _ := newTestHybrid(fa, DefaultHybridConfig())

	if !h.acquire("BTC-PERP") {
		t.Fatalf("expected the first acquire to succeed")
	}
	defer h.release("BTC-PERP")

	score := domain.SignalScore{Value: 0.9, Confidence: domain.High}
	_, ok := h.Execute(context.Background(), score, testMD(), dec("1"), domain.CostEstimate{})
	if ok {
		t.Fatalf("expected the coalesced signal to be dropped")
	}
	if h.Statistics().CoalescedSignals != 1 {
		t.Fatalf("expected 1 coalesced signal, got %d", h.Statistics().CoalescedSignals)
	}
}

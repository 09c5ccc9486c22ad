package signalengine

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/arvion-labs/perpcore/internal/domain"
)

type constSignal struct {
	name   string
	value  float64
	weight float64
}

func (c constSignal) Name() string                       { return c.name }
func (c constSignal) Calculate(domain.MarketData) float64 { return c.value }
func (c constSignal) Weight() float64                     { return c.weight }

func TestClassifyBands(t *testing.T) {
	c := NewClassifier(0.5, 0.2)
	cases := map[float64]domain.Confidence{
		0.6:  domain.High,
		-0.6: domain.High,
		0.3:  domain.Medium,
		0.1:  domain.Low,
	}
	for v, want := range cases {
		if got := c.Classify(v); got != want {
			t.Fatalf("Classify(%v) = %s, want %s", v, got, want)
		}
	}
}

func TestClassifierSwapsInvertedThresholds(t *testing.T) {
	c := NewClassifier(0.2, 0.5)
	t1, t2 := c.Thresholds()
	if t1 != 0.5 || t2 != 0.2 {
		t.Fatalf("expected thresholds swapped to (0.5, 0.2), got (%v, %v)", t1, t2)
	}
}

func TestAggregateWeightedAverage(t *testing.T) {
	signals := []Signal{
		constSignal{name: "a", value: 1.0, weight: 1},
		constSignal{name: "b", value: -1.0, weight: 1},
	}
	agg, err := NewAggregator(signals, NewClassifier(0.5, 0.2), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	score := agg.Aggregate(domain.MarketData{Symbol: "X", Ts: 5})
	if score.Value != 0 {
		t.Fatalf("expected cancelling signals to average to 0, got %v", score.Value)
	}
	if score.Confidence != domain.Low {
		t.Fatalf("expected LOW confidence at value 0, got %s", score.Confidence)
	}
}

func TestAggregateWeightedTowardStrongerSignal(t *testing.T) {
	signals := []Signal{
		constSignal{name: "a", value: 1.0, weight: 3},
		constSignal{name: "b", value: -0.2, weight: 1},
	}
	agg, err := NewAggregator(signals, NewClassifier(0.5, 0.2), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	score := agg.Aggregate(domain.MarketData{})
	want := (1.0*3 + -0.2*1) / 4
	if diff := score.Value - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %v, got %v", want, score.Value)
	}
	if score.Confidence != domain.High {
		t.Fatalf("expected HIGH confidence, got %s", score.Confidence)
	}
}

func TestNewAggregatorRejectsZeroWeightSum(t *testing.T) {
	signals := []Signal{constSignal{name: "a", value: 1, weight: 0}}
	if _, err := NewAggregator(signals, NewClassifier(0.5, 0.2), zerolog.Nop()); err == nil {
		t.Fatalf("expected error for zero total weight")
	}
}

func TestCalibrateFromHistoryAdjustsThresholds(t *testing.T) {
	c := NewClassifier(0.5, 0.2)
	history := make([]float64, 0, 100)
	for i := 0; i < 100; i++ {
		history = append(history, float64(i)/100.0)
	}
	c.CalibrateFromHistory(history)
	t1, t2 := c.Thresholds()
	if t1 <= t2 {
		t.Fatalf("expected theta1 > theta2 after calibration, got t1=%v t2=%v", t1, t2)
	}
}

func TestBuildOmitsZeroWeightSignals(t *testing.T) {
	agg, err := Build(WeightConfig{
		OBIWeight:        0.4,
		OBILevels:        5,
		MicropriceWeight: 0,
		ImpactWeight:     0.3,
		Theta1:           0.5,
		Theta2:           0.2,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := agg.Weights()["microprice"]; ok {
		t.Fatalf("expected microprice to be omitted at zero weight")
	}
	if len(agg.Weights()) != 2 {
		t.Fatalf("expected exactly 2 signals wired, got %d", len(agg.Weights()))
	}
}

package signalengine

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/arvion-labs/perpcore/internal/domain"
)

// Classifier partitions an aggregated signal value into a confidence band.
// theta_1 is the HIGH cutoff, theta_2 the MEDIUM cutoff; both are compared
// against the absolute signal value. Thresholds only ever change between
// TradingLoop iterations, never mid-execution of an order.
type Classifier struct {
	theta1 float64
	theta2 float64
}

// NewClassifier constructs a Classifier. Panics are never used here —
// invalid ordering is corrected by swapping, matching the original's
// validate_thresholds check expressed as a constructor-time fixup instead
// of a raised error, since the aggregator must always be constructible.
func NewClassifier(theta1, theta2 float64) *Classifier {
	if theta1 < theta2 {
		theta1, theta2 = theta2, theta1
	}
	return &Classifier{theta1: theta1, theta2: theta2}
}

// Classify returns the confidence band for an aggregated signal value.
func (c *Classifier) Classify(value float64) domain.Confidence {
	abs := value
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > c.theta1:
		return domain.High
	case abs > c.theta2:
		return domain.Medium
	default:
		return domain.Low
	}
}

// Thresholds returns the current theta_1/theta_2 pair.
func (c *Classifier) Thresholds() (theta1, theta2 float64) { return c.theta1, c.theta2 }

// CalibrateFromHistory recomputes theta_1/theta_2 from the p90/p70
// percentiles of a history of recent |signal| values, a supplemental
// feature recovered from the original's calibration note. The caller is
// responsible for only invoking this between TradingLoop iterations.
func (c *Classifier) CalibrateFromHistory(absValues []float64) {
	if len(absValues) == 0 {
		return
	}
	sorted := make([]float64, len(absValues))
	copy(sorted, absValues)
	sort.Float64s(sorted)

	c.theta1 = percentile(sorted, 0.90)
	c.theta2 = percentile(sorted, 0.70)
	if c.theta1 < c.theta2 {
		c.theta1, c.theta2 = c.theta2, c.theta1
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Aggregator combines a fixed set of Signals into one SignalScore per
// market-data snapshot via a weight_sum-normalized weighted average, the
// Go shape of the original's SignalAggregator.calculate.
type Aggregator struct {
	signals    []Signal
	classifier *Classifier
	log        zerolog.Logger
}

// NewAggregator constructs an Aggregator over the given signals. It returns
// an error if no signal carries positive weight, since the original treats
// a zero weight_sum as a degenerate configuration rather than a silent zero.
func NewAggregator(signals []Signal, classifier *Classifier, log zerolog.Logger) (*Aggregator, error) {
	var weightSum float64
	for _, s := range signals {
		weightSum += s.Weight()
	}
	if weightSum <= 0 {
		return nil, fmt.Errorf("signalengine: aggregator requires positive total signal weight, got %v", weightSum)
	}
	return &Aggregator{signals: signals, classifier: classifier, log: log.With().Str("component", "signalengine").Logger()}, nil
}

// Aggregate computes the weighted-average signal value across all
// constituent signals, classifies it, and returns the resulting SignalScore.
// A signal that errors (panics are not used; Calculate cannot fail) would
// contribute zero — in practice Calculate always returns a finite value
// since every signal degrades to 0 on missing data.
func (a *Aggregator) Aggregate(md domain.MarketData) domain.SignalScore {
	components := make([]float64, len(a.signals))
	var weightedSum, weightSum float64

	for i, s := range a.signals {
		score := s.Calculate(md)
		components[i] = score
		weightedSum += score * s.Weight()
		weightSum += s.Weight()
	}

	var value float64
	if weightSum > 0 {
		value = weightedSum / weightSum
	}

	confidence := a.classifier.Classify(value)

	a.log.Debug().
		Str("symbol", md.Symbol).
		Float64("value", value).
		Str("confidence", confidence.String()).
		Floats64("components", components).
		Msg("signal_aggregated")

	return domain.SignalScore{
		Value:      value,
		Confidence: confidence,
		Components: components,
		Ts:         md.Ts,
	}
}

// Weights returns a snapshot of each constituent signal's name and weight.
func (a *Aggregator) Weights() map[string]float64 {
	out := make(map[string]float64, len(a.signals))
	for _, s := range a.signals {
		out[s.Name()] = s.Weight()
	}
	return out
}

package signalengine

import "github.com/rs/zerolog"

// WeightConfig carries the per-signal weight and tunable knobs read from
// configuration, mirroring the original's create_aggregator_from_config.
type WeightConfig struct {
	OBIWeight        float64
	OBILevels        int
	OBIWeighted      bool
	MicropriceWeight float64
	MicropriceScale  float64
	ImpactWeight     float64
	ImpactWindowMs   int64
	Theta1           float64
	Theta2           float64
}

// Build constructs the standard OBI+Microprice+Impact Aggregator from a
// WeightConfig, the Go shape of create_aggregator_from_config. A signal
// with non-positive weight is omitted rather than included at zero, since a
// caller who wants a signal disabled shouldn't pay its computation.
func Build(cfg WeightConfig, log zerolog.Logger) (*Aggregator, error) {
	var signals []Signal
	if cfg.OBIWeight > 0 {
		signals = append(signals, NewOBI(cfg.OBILevels, cfg.OBIWeight, cfg.OBIWeighted))
	}
	if cfg.MicropriceWeight > 0 {
		signals = append(signals, NewMicroprice(cfg.MicropriceWeight, cfg.MicropriceScale))
	}
	if cfg.ImpactWeight > 0 {
		signals = append(signals, NewImpact(cfg.ImpactWindowMs, cfg.ImpactWeight))
	}

	classifier := NewClassifier(cfg.Theta1, cfg.Theta2)
	return NewAggregator(signals, classifier, log)
}

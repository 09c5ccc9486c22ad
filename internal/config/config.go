// Package config exposes strongly typed application configuration structs
// loaded from YAML, grounded on the teacher's own Load/Save pair.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings the teacher's own App struct
// carries: process name, environment, metrics bind address, log level —
// plus the starting NAV and book depth every symbol loop shares.
type App struct {
	Name        string  `yaml:"name"`
	Env         string  `yaml:"env"`
	MetricsAddr string  `yaml:"metrics_addr"`
	LogLevel    string  `yaml:"log_level"`
	AuditPath   string  `yaml:"audit_path"`
	InitialNAV  float64 `yaml:"initial_nav"`
	BookDepth   int     `yaml:"book_depth"`
}

// Venue describes the exchange connectivity the adapter layer needs: which
// symbols to trade and where the streaming/REST endpoints live. The core
// never reads credentials directly — per spec §6, those belong to the
// adapter's own environment contract.
type Venue struct {
	Symbols           []string `yaml:"symbols"`
	StreamURL         string   `yaml:"stream_url"`
	RESTBaseURL       string   `yaml:"rest_base_url"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
}

// SignalWeights maps each constituent signal to its aggregation weight, the
// Go shape of spec §6's `signals.weights`.
type SignalWeights struct {
	OBI        float64 `yaml:"obi"`
	Microprice float64 `yaml:"microprice"`
	Impact     float64 `yaml:"impact"`
}

// SignalThresholds carries the classifier's confidence cutoffs, spec §6's
// `signals.thresholds.theta_1/theta_2`.
type SignalThresholds struct {
	Theta1 float64 `yaml:"theta_1"`
	Theta2 float64 `yaml:"theta_2"`
}

// Signals groups every signal-layer tunable, including the per-signal knobs
// spec §6 leaves to each signal's own defaults.
type Signals struct {
	Weights         SignalWeights    `yaml:"weights"`
	Thresholds      SignalThresholds `yaml:"thresholds"`
	OBILevels       int              `yaml:"obi_levels"`
	OBIWeighted     bool             `yaml:"obi_weighted"`
	MicropriceScale float64          `yaml:"microprice_scale"`
	ImpactWindowMs  int64            `yaml:"impact_window_ms"`
}

// ShallowMaker carries the passive-maker tuning of spec §6's
// `execution.shallow_maker.*`.
type ShallowMaker struct {
	TimeoutHighSecs   float64 `yaml:"timeout_high"`
	TimeoutMediumSecs float64 `yaml:"timeout_medium"`
	TickOffset        float64 `yaml:"tick_offset"`
	PostOnly          bool    `yaml:"post_only"`
}

// IOC carries the taker-fallback tuning of spec §6's `execution.ioc.*`.
type IOC struct {
	FallbackOnHigh   bool `yaml:"fallback_on_high"`
	FallbackOnMedium bool `yaml:"fallback_on_medium"`
}

// Execution selects the routing strategy and its two executors' tuning.
type Execution struct {
	Strategy     string       `yaml:"strategy"` // "ioc_only" or "hybrid"
	ShallowMaker ShallowMaker `yaml:"shallow_maker"`
	IOC          IOC          `yaml:"ioc"`
}

// Risk encodes the hard-limit percentages of spec §6's `risk.*`.
type Risk struct {
	MaxSingleLossPct    float64 `yaml:"max_single_loss_pct"`
	MaxDailyDrawdownPct float64 `yaml:"max_daily_drawdown_pct"`
	MaxPositionUSD      float64 `yaml:"max_position_usd"`
}

// FillRateMonitoring carries the FillRateMonitor tuning of spec §6's
// `monitoring.fill_rate.*`.
type FillRateMonitoring struct {
	WindowSize           int     `yaml:"window_size"`
	AlertThresholdHigh   float64 `yaml:"alert_threshold_high"`
	AlertThresholdMedium float64 `yaml:"alert_threshold_medium"`
	CriticalThreshold    float64 `yaml:"critical_threshold"`
}

// Monitoring groups every monitoring-layer tunable.
type Monitoring struct {
	FillRate FillRateMonitoring `yaml:"fill_rate"`
}

// Cost carries the exchange fee schedule of spec §6's
// `cost.maker_fee_bps/taker_fee_bps`, plus the impact model's alpha the
// original's dynamic cost estimator tunes separately.
type Cost struct {
	MakerFeeBps float64 `yaml:"maker_fee_bps"`
	TakerFeeBps float64 `yaml:"taker_fee_bps"`
	ImpactAlpha float64 `yaml:"impact_alpha"`
}

// Config collects every configuration leaf for easy marshaling from YAML:
// spec §6's recognized-options table plus the ambient app bookkeeping the
// teacher's own Config carries.
type Config struct {
	App        App        `yaml:"app"`
	Venue      Venue      `yaml:"venue"`
	Signals    Signals    `yaml:"signals"`
	Execution  Execution  `yaml:"execution"`
	Risk       Risk       `yaml:"risk"`
	Monitoring Monitoring `yaml:"monitoring"`
	Cost       Cost       `yaml:"cost"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the configuration against the minimal invariants the core
// depends on to start: at least one symbol, a positive initial NAV, a
// recognized execution strategy, and a positive position cap. --check-config
// runs this before exiting.
func (c *Config) Validate() error {
	if len(c.Venue.Symbols) == 0 {
		return fmt.Errorf("venue.symbols: at least one symbol is required")
	}
	if c.App.InitialNAV <= 0 {
		return fmt.Errorf("app.initial_nav: must be positive, got %v", c.App.InitialNAV)
	}
	switch c.Execution.Strategy {
	case "ioc_only", "hybrid":
	default:
		return fmt.Errorf("execution.strategy: must be ioc_only or hybrid, got %q", c.Execution.Strategy)
	}
	if c.Risk.MaxPositionUSD <= 0 {
		return fmt.Errorf("risk.max_position_usd: must be positive, got %v", c.Risk.MaxPositionUSD)
	}
	return nil
}

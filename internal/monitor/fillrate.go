// Package monitor tracks the shallow-maker fill rate per confidence band
// and evaluates it against health bands, grounded on
// analytics/maker_fill_rate_monitor.py.
package monitor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/arvion-labs/perpcore/internal/audit"
	"github.com/arvion-labs/perpcore/internal/domain"
)

// Health is the evaluated state of a confidence band's fill rate.
type Health int

const (
	Healthy Health = iota
	Degraded
	Critical
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "HEALTHY"
	case Degraded:
		return "DEGRADED"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Thresholds is the healthy/critical cutoff for one confidence band's
// window fill rate. Degraded is everything between critical and healthy.
type Thresholds struct {
	Healthy  float64
	Critical float64
}

func defaultThresholds() map[domain.Confidence]Thresholds {
	return map[domain.Confidence]Thresholds{
		domain.High:   {Healthy: 0.80, Critical: 0.60},
		domain.Medium: {Healthy: 0.75, Critical: 0.60},
	}
}

// fillRing is a fixed-capacity circular buffer of recent fill outcomes,
// the Go shape of collections.deque(maxlen=window_size).
type fillRing struct {
	buf   []bool
	start int
	count int
}

func newFillRing(capacity int) *fillRing {
	if capacity <= 0 {
		capacity = 100
	}
	return &fillRing{buf: make([]bool, capacity)}
}

func (r *fillRing) push(filled bool) {
	idx := (r.start + r.count) % len(r.buf)
	r.buf[idx] = filled
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.buf)
	}
}

func (r *fillRing) rate() (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	filled := 0
	for i := 0; i < r.count; i++ {
		if r.buf[(r.start+i)%len(r.buf)] {
			filled++
		}
	}
	return float64(filled) / float64(r.count), true
}

// totals is the unwindowed, all-time attempt/fill count for one band.
type totals struct {
	attempts int64
	filled   int64
}

// FillRateMonitor maintains a sliding window of recent maker attempts per
// confidence band and classifies the resulting fill rate into a health
// band. A Critical classification emits an audit event but never itself
// halts trading.
type FillRateMonitor struct {
	thresholds map[domain.Confidence]Thresholds
	windowSize int
	sink       audit.Sink
	log        zerolog.Logger

	mu      sync.Mutex
	windows map[domain.Confidence]*fillRing
	totals  map[domain.Confidence]*totals
}

// NewFillRateMonitor constructs a FillRateMonitor with a window of the
// given size (default 100) per confidence band. sink may be nil.
func NewFillRateMonitor(windowSize int, sink audit.Sink, log zerolog.Logger) *FillRateMonitor {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &FillRateMonitor{
		thresholds: defaultThresholds(),
		windowSize: windowSize,
		sink:       sink,
		log:        log.With().Str("component", "fill_rate_monitor").Logger(),
		windows: map[domain.Confidence]*fillRing{
			domain.High:   newFillRing(windowSize),
			domain.Medium: newFillRing(windowSize),
		},
		totals: map[domain.Confidence]*totals{
			domain.High:   {},
			domain.Medium: {},
		},
	}
}

// Record appends one maker attempt outcome for the given confidence band.
// LOW confidence attempts are not tracked, matching the original's
// record_maker_attempt, which only recognizes HIGH/MEDIUM.
func (m *FillRateMonitor) Record(confidence domain.Confidence, filled bool) {
	m.mu.Lock()
	window, ok := m.windows[confidence]
	if !ok {
		m.mu.Unlock()
		return
	}
	window.push(filled)
	t := m.totals[confidence]
	t.attempts++
	if filled {
		t.filled++
	}
	rate, hasRate := window.rate()
	m.mu.Unlock()

	m.log.Debug().Str("confidence", confidence.String()).Bool("filled", filled).Msg("maker_attempt_recorded")

	if hasRate {
		m.checkAlert(confidence, rate)
	}
}

func (m *FillRateMonitor) checkAlert(confidence domain.Confidence, rate float64) {
	health := m.classify(confidence, rate)
	switch health {
	case Critical:
		m.log.Error().Str("confidence", confidence.String()).Float64("fill_rate", rate).Msg("maker_fill_rate_critical")
		if m.sink != nil {
			m.sink.Emit(audit.SeverityCritical, "maker_fill_rate_critical", map[string]any{
				"confidence": confidence.String(),
				"fill_rate":  rate,
			})
		}
	case Degraded:
		m.log.Warn().Str("confidence", confidence.String()).Float64("fill_rate", rate).Msg("maker_fill_rate_below_threshold")
	}
}

// classify returns the health band for a window fill rate.
func (m *FillRateMonitor) classify(confidence domain.Confidence, rate float64) Health {
	th, ok := m.thresholds[confidence]
	if !ok {
		return Healthy
	}
	switch {
	case rate < th.Critical:
		return Critical
	case rate < th.Healthy:
		return Degraded
	default:
		return Healthy
	}
}

// FillRate returns the current window fill rate for a confidence band, or
// ok=false if no attempts have been recorded yet.
func (m *FillRateMonitor) FillRate(confidence domain.Confidence) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window, ok := m.windows[confidence]
	if !ok {
		return 0, false
	}
	return window.rate()
}

// TotalFillRate returns the all-time (unwindowed) fill rate for a
// confidence band.
func (m *FillRateMonitor) TotalFillRate(confidence domain.Confidence) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.totals[confidence]
	if !ok || t.attempts == 0 {
		return 0, false
	}
	return float64(t.filled) / float64(t.attempts), true
}

// Evaluate classifies a confidence band's current window fill rate.
// Insufficient data (no attempts yet) is reported Healthy, matching the
// original's is_healthy "no data => healthy" convention.
func (m *FillRateMonitor) Evaluate(confidence domain.Confidence) Health {
	rate, ok := m.FillRate(confidence)
	if !ok {
		return Healthy
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.classify(confidence, rate)
}

// Reset clears every window and total, per the original's
// reset_statistics.
func (m *FillRateMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.windows[domain.High] = newFillRing(m.windowSize)
	m.windows[domain.Medium] = newFillRing(m.windowSize)
	m.totals[domain.High] = &totals{}
	m.totals[domain.Medium] = &totals{}
}

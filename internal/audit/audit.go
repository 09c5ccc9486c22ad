// Package audit appends structured, append-only audit events as JSON
// lines, grounded on paper/recorder.go's fill recorder and generalized
// from one fixed record type to any severity-tagged event: hard-limit
// breaches, fill-rate degradation, and anything else worth a durable trail
// distinct from the regular zerolog stream.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Severity classifies an audit event. Critical events are the ones
// downstream consumers (e.g. a recalibration job) may act on; Info events
// are a plain record of a decision point.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Event is one line of the audit trail.
type Event struct {
	Ts       time.Time      `json:"ts"`
	Severity Severity       `json:"severity"`
	Name     string         `json:"name"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Sink is the narrow contract components emit audit events through.
// internal/risk and internal/monitor both depend only on this, not on
// JSONLSink directly.
type Sink interface {
	Emit(severity Severity, name string, fields map[string]any)
}

// JSONLSink appends audit events as JSON lines to a file.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLSink creates/opens the target file and returns a Sink.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{file: file, enc: json.NewEncoder(file)}, nil
}

// Emit appends one audit event.
func (s *JSONLSink) Emit(severity Severity, name string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(Event{Ts: time.Now().UTC(), Severity: severity, Name: name, Fields: fields})
}

// Close flushes and closes the underlying file handle.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

var _ Sink = (*JSONLSink)(nil)

package sweep

import (
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// Severity grades an ErrorEvent
type Severity uint8

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is published by the Engine. The set of variants is closed:
// SampleEvent, StatusEvent and ErrorEvent.
type Event interface {
	Time() time.Time

	event()
}

// SampleEvent carries one parsed spectrum sample
type SampleEvent struct {
	CycleID string
	Band    sdr.Band
	Sample  *sdr.Sample
}

func (e SampleEvent) Time() time.Time { return e.Sample.Timestamp }
func (SampleEvent) event()            {}

// StatusEvent carries an engine state transition
type StatusEvent struct {
	Status sdr.Status
}

func (e StatusEvent) Time() time.Time { return e.Status.Timestamp }
func (StatusEvent) event()            {}

// ErrorEvent carries a failure the engine handled or gave up on
type ErrorEvent struct {
	CycleID   string
	Band      *sdr.Band
	Severity  Severity
	Err       error
	Timestamp time.Time
}

func (e ErrorEvent) Time() time.Time { return e.Timestamp }
func (ErrorEvent) event()            {}

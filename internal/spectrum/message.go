package spectrum

import (
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

const (
	MessageSample MessageType = "sample"
	MessageStatus MessageType = "status"
	MessageError  MessageType = "error"
)

// Error kinds reported to clients
const (
	KindTerminal       = "terminal"
	KindSpawn          = "spawn"
	KindProcessExit    = "process_exit"
	KindDiagnostic     = "diagnostic"
	KindNoData         = "no_data"
	KindMemoryPressure = "memory_pressure"
	KindStreamCorrupt  = "stream_corrupt"
	KindInvalidConfig  = "invalid_config"
	KindOther          = "error"
)

// MessageType tells clients how to interpret a Message
type MessageType string

// Message is the JSON document sent to feed clients for every engine event.
// Exactly one of Sample, Status and Error is set, matching Type.
type Message struct {
	Type      MessageType   `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	CycleID   string        `json:"cycleID,omitempty"`
	Band      *sdr.Band     `json:"band,omitempty"`
	Sample    *sdr.Sample   `json:"sample,omitempty"`
	Status    *sdr.Status   `json:"status,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload describes an error event
type ErrorPayload struct {
	Severity string `json:"severity"`
	Kind     string `json:"kind"`
	Message  string `json:"message"`
}

// FromEvent converts an engine event into a Message
func FromEvent(ev sweep.Event) (Message, error) {
	switch ev := ev.(type) {
	case sweep.SampleEvent:
		band := ev.Band
		return Message{
			Type:      MessageSample,
			Timestamp: ev.Sample.Timestamp,
			CycleID:   ev.CycleID,
			Band:      &band,
			Sample:    ev.Sample,
		}, nil

	case sweep.StatusEvent:
		status := ev.Status
		return Message{
			Type:      MessageStatus,
			Timestamp: status.Timestamp,
			CycleID:   status.CycleID,
			Status:    &status,
		}, nil

	case sweep.ErrorEvent:
		return Message{
			Type:      MessageError,
			Timestamp: ev.Timestamp,
			CycleID:   ev.CycleID,
			Band:      ev.Band,
			Error: &ErrorPayload{
				Severity: ev.Severity.String(),
				Kind:     ErrorKind(ev.Err),
				Message:  ev.Err.Error(),
			},
		}, nil

	default:
		return Message{}, fmt.Errorf("spectrum: unsupported event %T", ev)
	}
}

// ReplayMessage wraps a buffered sample. Replayed samples carry no cycle.
func ReplayMessage(s *sdr.Sample) Message {
	return Message{
		Type:      MessageSample,
		Timestamp: s.Timestamp,
		Sample:    s,
	}
}

// ErrorKind classifies an engine error for clients
func ErrorKind(err error) string {
	var (
		terminal   *sweep.TerminalFailure
		spawn      *sweep.SpawnError
		exit       *sweep.ProcessExitError
		diagnostic *sweep.DiagnosticError
		noData     *sweep.NoDataError
		memory     *sweep.MemoryPressureError
		config     *sweep.InvalidConfigError
	)

	switch {
	case errors.As(err, &terminal):
		return KindTerminal
	case errors.As(err, &spawn):
		return KindSpawn
	case errors.As(err, &exit):
		return KindProcessExit
	case errors.As(err, &diagnostic):
		return KindDiagnostic
	case errors.As(err, &noData):
		return KindNoData
	case errors.As(err, &memory):
		return KindMemoryPressure
	case errors.Is(err, sweep.ErrStreamCorrupt):
		return KindStreamCorrupt
	case errors.As(err, &config):
		return KindInvalidConfig
	default:
		return KindOther
	}
}

// EntryFromEvent turns status and error events into journal entries.
// Sample events are not journaled.
func EntryFromEvent(ev sweep.Event) (JournalEntry, bool) {
	switch ev := ev.(type) {
	case sweep.StatusEvent:
		s := ev.Status
		entry := JournalEntry{
			CycleID:   s.CycleID,
			Timestamp: s.Timestamp,
			Kind:      EntryStatus,
			State:     s.State.String(),
			Attempt:   s.Attempt,
			Detail:    s.Reason,
		}
		switch {
		case s.Band != nil:
			entry.Band = s.Band.String()
		case s.From != nil && s.To != nil:
			entry.Band = fmt.Sprintf("%s -> %s", s.From, s.To)
		}
		return entry, true

	case sweep.ErrorEvent:
		entry := JournalEntry{
			CycleID:   ev.CycleID,
			Timestamp: ev.Timestamp,
			Kind:      EntryError,
			State:     ErrorKind(ev.Err),
			Severity:  ev.Severity.String(),
			Detail:    ev.Err.Error(),
		}
		if ev.Band != nil {
			entry.Band = ev.Band.String()
		}
		return entry, true

	default:
		return JournalEntry{}, false
	}
}

package spectrum

import (
	"time"
)

const (
	EntryStatus EntryKind = "status"
	EntryError  EntryKind = "error"
)

// EntryKind tells status transitions and errors apart in the journal
type EntryKind string

// CycleRecord represents a single sweep cycle started on the engine.
// Each record captures when and how the cycle ran and why it ended.
type CycleRecord struct {
	ID         string     `json:"id"`                   // Cycle identifier, shared with status events
	StartTime  time.Time  `json:"startTime"`            // When the cycle began
	DeviceType string     `json:"deviceType"`           // Type of SDR device used (e.g., "HackRF")
	Config     *string    `json:"config,omitempty"`     // Cycle configuration in JSON format, if known
	StopTime   *time.Time `json:"stopTime,omitempty"`   // When the cycle stopped, nil while running
	StopReason *string    `json:"stopReason,omitempty"` // Reason given with the Stopped status, if any
	Failed     bool       `json:"failed"`               // Whether the cycle ended with a terminal failure
}

// Running reports whether the cycle has not been seen to stop
func (r CycleRecord) Running() bool {
	return r.StopTime == nil
}

// JournalEntry is a status transition or an error notification of a cycle
type JournalEntry struct {
	ID        int64     `json:"id"`
	CycleID   string    `json:"cycleID"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EntryKind `json:"kind"`
	State     string    `json:"state,omitempty"`    // Engine state, or error kind for error entries
	Band      string    `json:"band,omitempty"`     // Band, or "from -> to" while switching
	Attempt   int       `json:"attempt,omitempty"`  // Restart attempt for starting entries
	Severity  string    `json:"severity,omitempty"` // Severity for error entries
	Detail    string    `json:"detail,omitempty"`   // Status reason or error message
}

package sdr

import (
	"fmt"
	"time"
)

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateSwitching
	StateStopped
	StateFailed
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateStarting:  "starting",
	StateRunning:   "running",
	StateSwitching: "switching",
	StateStopped:   "stopped",
	StateFailed:    "failed",
}

// State is the externally visible state of the sweep engine
type State uint8

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("sdr.State: unknown state '%s'", text)
}

// Status is a tagged variant over the engine states. Which fields are
// meaningful depends on State:
//
//	Starting   Band, Attempt (0 on the first start, >0 on restarts)
//	Running    Band
//	Switching  From, To
//	Stopped    Reason (set when the stop was caused by a failure)
//	Failed     Band, Reason
type Status struct {
	State     State     `json:"state"`
	Band      *Band     `json:"band,omitempty"`
	From      *Band     `json:"from,omitempty"`
	To        *Band     `json:"to,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	CycleID   string    `json:"cycleID,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func Idle() Status {
	return Status{State: StateIdle, Timestamp: time.Now()}
}

func Starting(cycleID string, band Band, attempt int) Status {
	return Status{State: StateStarting, Band: &band, Attempt: attempt, CycleID: cycleID, Timestamp: time.Now()}
}

func Running(cycleID string, band Band) Status {
	return Status{State: StateRunning, Band: &band, CycleID: cycleID, Timestamp: time.Now()}
}

func Switching(cycleID string, from, to Band) Status {
	return Status{State: StateSwitching, From: &from, To: &to, CycleID: cycleID, Timestamp: time.Now()}
}

func Stopped(cycleID string, reason string) Status {
	return Status{State: StateStopped, Reason: reason, CycleID: cycleID, Timestamp: time.Now()}
}

func Failed(cycleID string, band *Band, reason string) Status {
	return Status{State: StateFailed, Band: band, Reason: reason, CycleID: cycleID, Timestamp: time.Now()}
}

// Active reports whether the status belongs to a live cycle
func (s Status) Active() bool {
	switch s.State {
	case StateStarting, StateRunning, StateSwitching:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s.State {
	case StateStarting, StateRunning:
		if s.Band != nil {
			return fmt.Sprintf("%s(%s)", s.State, s.Band)
		}
	case StateSwitching:
		if s.From != nil && s.To != nil {
			return fmt.Sprintf("%s(%s -> %s)", s.State, s.From, s.To)
		}
	case StateStopped, StateFailed:
		if s.Reason != "" {
			return fmt.Sprintf("%s(%s)", s.State, s.Reason)
		}
	}
	return s.State.String()
}

package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

var (
	// ErrAlreadyRunning is returned by StartCycle while a cycle is active
	ErrAlreadyRunning = errors.New("sweep: cycle already running")

	// ErrSessionActive is returned by Supervisor.Start while another session is alive
	ErrSessionActive = errors.New("sweep: session already active")

	// ErrEngineNotRunning is returned by control calls when the owner loop is not running
	ErrEngineNotRunning = errors.New("sweep: engine is not running")

	// ErrMaxRetries is the cause of a TerminalFailure after the retry budget is spent
	ErrMaxRetries = errors.New("max retries exceeded")

	// ErrStreamCorrupt is reported when too many consecutive lines fail to parse
	ErrStreamCorrupt = errors.New("too many consecutive parse errors")
)

// SpawnError means the sweep utility could not be launched for a band
type SpawnError struct {
	Band sdr.Band
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %s", e.Band, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ProcessExitError describes an exit the engine did not ask for
type ProcessExitError struct {
	Band   sdr.Band
	Code   int
	Signal string
	Err    error
}

func (e *ProcessExitError) Error() string {
	switch {
	case e.Signal != "":
		return fmt.Sprintf("sweep on %s killed by signal %s", e.Band, e.Signal)
	case e.Err != nil:
		return fmt.Sprintf("sweep on %s exited with code %d: %s", e.Band, e.Code, e.Err)
	default:
		return fmt.Sprintf("sweep on %s exited with code %d", e.Band, e.Code)
	}
}

func (e *ProcessExitError) Unwrap() error {
	return e.Err
}

// InvalidConfigError rejects a cycle configuration before any state change
type InvalidConfigError struct {
	Reason string
	Err    error
}

func (e *InvalidConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid cycle config: %s: %s", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid cycle config: %s", e.Reason)
}

func (e *InvalidConfigError) Unwrap() error {
	return e.Err
}

// TerminalFailure stops the cycle. It must be cleared by starting a new cycle.
type TerminalFailure struct {
	Band *sdr.Band
	Err  error
}

func (e *TerminalFailure) Error() string {
	if e.Band != nil {
		return fmt.Sprintf("terminal failure on %s: %s", e.Band, e.Err)
	}
	return fmt.Sprintf("terminal failure: %s", e.Err)
}

func (e *TerminalFailure) Unwrap() error {
	return e.Err
}

// DiagnosticError carries a line the sweep utility wrote to stderr
type DiagnosticError struct {
	Device string
	Line   string
}

func (e *DiagnosticError) Error() string {
	return fmt.Sprintf("%s: %s", e.Device, e.Line)
}

// NoDataError is raised when a dwell elapsed without a single valid sample
type NoDataError struct {
	Band        sdr.Band
	Dwell       time.Duration
	Consecutive int // empty dwells in a row, across bands
}

func (e *NoDataError) Error() string {
	if e.Consecutive > 1 {
		return fmt.Sprintf("no samples received on %s during %s dwell (%d in a row)", e.Band, e.Dwell, e.Consecutive)
	}
	return fmt.Sprintf("no samples received on %s during %s dwell", e.Band, e.Dwell)
}

// MemoryPressureError is raised by the health check when the sweep utility
// grows beyond the configured resident memory limit
type MemoryPressureError struct {
	RSS   uint64
	Limit uint64
}

func (e *MemoryPressureError) Error() string {
	return fmt.Sprintf("sweep utility resident memory %s exceeds limit %s", humanize.IBytes(e.RSS), humanize.IBytes(e.Limit))
}

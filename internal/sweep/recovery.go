package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

const (
	DefaultMaxRetries           = 3
	DefaultInitialBackoff       = 500 * time.Millisecond
	DefaultMaxBackoff           = 30 * time.Second
	DefaultHealthInterval       = 10 * time.Second
	DefaultParseErrorsThreshold = 100

	backoffMultiplier = 2
)

// RecoveryConfig bounds automatic recovery
type RecoveryConfig struct {
	// MaxRetries is the number of consecutive failures of one band tolerated;
	// the MaxRetries-th failure is terminal
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// HealthInterval is the period of the resident memory check
	HealthInterval time.Duration

	// MemoryLimit is the resident memory in bytes above which the sweep
	// utility is restarted. Zero disables the check.
	MemoryLimit uint64

	// ParseErrorsThreshold is the number of consecutive malformed lines after
	// which the stream is considered corrupt. Zero disables the check.
	ParseErrorsThreshold int
}

func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxRetries:           DefaultMaxRetries,
		InitialBackoff:       DefaultInitialBackoff,
		MaxBackoff:           DefaultMaxBackoff,
		HealthInterval:       DefaultHealthInterval,
		ParseErrorsThreshold: DefaultParseErrorsThreshold,
	}
}

func (c RecoveryConfig) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("sweep.RecoveryConfig: max retries must be at least 1: %d given", c.MaxRetries)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("sweep.RecoveryConfig: initial backoff must be positive: %s given", c.InitialBackoff)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("sweep.RecoveryConfig: max backoff %s is below initial backoff %s", c.MaxBackoff, c.InitialBackoff)
	}
	if c.HealthInterval <= 0 {
		return fmt.Errorf("sweep.RecoveryConfig: health interval must be positive: %s given", c.HealthInterval)
	}
	if c.ParseErrorsThreshold < 0 {
		return fmt.Errorf("sweep.RecoveryConfig: parse errors threshold cannot be negative: %d given", c.ParseErrorsThreshold)
	}
	return nil
}

const (
	// ActionNone means the event needs no recovery
	ActionNone Action = iota

	// ActionRestart restarts the same band after Decision.Delay
	ActionRestart

	// ActionAdvance moves on to the next band immediately
	ActionAdvance

	// ActionFail stops the cycle with a terminal failure
	ActionFail
)

type Action uint8

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRestart:
		return "restart"
	case ActionAdvance:
		return "advance"
	case ActionFail:
		return "fail"
	default:
		return fmt.Sprintf("action(%d)", a)
	}
}

// Decision is what Recovery wants the engine to do next
type Decision struct {
	Action  Action
	Delay   time.Duration
	Attempt int   // consecutive failures of the band so far
	Err     error // classified cause, *TerminalFailure for ActionFail
}

// Recovery classifies failures of the current cycle and keeps the
// consecutive failure counters and restart backoff. It is owned by the
// engine loop and is not safe for concurrent use.
type Recovery struct {
	config  RecoveryConfig
	backoff *backoff.ExponentialBackOff

	bands         int
	failures      int // consecutive failures of the current band
	cycleFailures int // consecutive failures since the last valid sample
	parseErrors   int // consecutive malformed lines
	emptyDwells   int // consecutive dwells without a valid sample
}

func NewRecovery(config RecoveryConfig) *Recovery {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     config.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          backoffMultiplier,
		MaxInterval:         config.MaxBackoff,
	}
	b.Reset()

	return &Recovery{config: config, backoff: b, bands: 1}
}

// Reset clears all counters for a new cycle over the given number of bands
func (r *Recovery) Reset(bands int) {
	r.bands = max(bands, 1)
	r.failures = 0
	r.cycleFailures = 0
	r.parseErrors = 0
	r.emptyDwells = 0
	r.backoff.Reset()
}

// BandChanged clears the band failure count and backoff. The cycle-wide
// count survives so a dead device cannot hop between bands forever.
func (r *Recovery) BandChanged() {
	r.failures = 0
	r.parseErrors = 0
	r.backoff.Reset()
}

// SampleReceived records a valid sample, proving the device healthy
func (r *Recovery) SampleReceived() {
	r.failures = 0
	r.cycleFailures = 0
	r.parseErrors = 0
	r.emptyDwells = 0
	r.backoff.Reset()
}

// NoData records a dwell on band that produced no valid sample. An empty
// dwell is a warning and never fails the band by itself.
func (r *Recovery) NoData(band sdr.Band, dwell time.Duration) *NoDataError {
	r.emptyDwells++
	return &NoDataError{Band: band, Dwell: dwell, Consecutive: r.emptyDwells}
}

// ParseFailed records a malformed line and reports whether the consecutive
// threshold was reached, in which case the streak starts over
func (r *Recovery) ParseFailed() bool {
	if r.config.ParseErrorsThreshold == 0 {
		return false
	}

	r.parseErrors++
	if r.parseErrors < r.config.ParseErrorsThreshold {
		return false
	}

	r.parseErrors = 0
	return true
}

// CheckMemory returns *MemoryPressureError when rss is above the limit
func (r *Recovery) CheckMemory(rss uint64) error {
	if r.config.MemoryLimit == 0 || rss <= r.config.MemoryLimit {
		return nil
	}
	return &MemoryPressureError{RSS: rss, Limit: r.config.MemoryLimit}
}

// Exited classifies the exit of a session running band
func (r *Recovery) Exited(exit Exit, band sdr.Band) Decision {
	switch {
	case exit.Requested:
		return Decision{Action: ActionNone}
	case exit.Code == 0 && exit.Signal == "" && exit.Err == nil:
		return Decision{Action: ActionAdvance}
	default:
		return r.Failure(band, &ProcessExitError{Band: band, Code: exit.Code, Signal: exit.Signal, Err: exit.Err})
	}
}

// Failure counts a crash of band and decides between a delayed restart and
// a terminal failure
func (r *Recovery) Failure(band sdr.Band, cause error) Decision {
	r.failures++
	r.cycleFailures++
	r.parseErrors = 0

	if r.failures >= r.config.MaxRetries || r.cycleFailures >= r.config.MaxRetries*r.bands {
		return Decision{
			Action:  ActionFail,
			Attempt: r.failures,
			Err:     &TerminalFailure{Band: &band, Err: fmt.Errorf("%w: %w", ErrMaxRetries, cause)},
		}
	}

	return Decision{
		Action:  ActionRestart,
		Delay:   r.backoff.NextBackOff(),
		Attempt: r.failures,
		Err:     cause,
	}
}

// Failures returns the consecutive failure count of the current band
func (r *Recovery) Failures() int {
	return r.failures
}

// IsTerminal reports whether err ended a cycle
func IsTerminal(err error) bool {
	var tf *TerminalFailure
	return errors.As(err, &tf)
}

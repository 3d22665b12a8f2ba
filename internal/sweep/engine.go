package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/spectrum-streamer/internal/pubsub"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

// DefaultBufferSize is the number of recent samples kept for replay
const DefaultBufferSize = 1024

const (
	commandStart commandKind = iota
	commandRestart
	commandStop
)

type commandKind uint8

type command struct {
	kind   commandKind
	config CycleConfig
	reply  chan error
}

// cycle is the state of the running cycle. Owned by the engine loop.
type cycle struct {
	id      string
	config  CycleConfig
	index   int
	session *Session
	samples int // valid samples since the band started or the dwell was rearmed
	dwell   *time.Timer
	retry   *time.Timer // pending restart after backoff
}

// CycleInfo identifies the most recently started cycle
type CycleInfo struct {
	ID        string      `json:"id"`
	Config    CycleConfig `json:"config"`
	StartedAt time.Time   `json:"startedAt"`
}

func (c *cycle) band() sdr.Band {
	return c.config.Bands[c.index]
}

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(e *Engine) {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics enables Prometheus metrics
func WithMetrics(m *Metrics) func(e *Engine) {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRecovery sets the fault recovery bounds
func WithRecovery(config RecoveryConfig) func(e *Engine) {
	return func(e *Engine) {
		e.recoveryConfig = config
	}
}

// WithBufferSize sets the number of samples kept for replay
func WithBufferSize(n int) func(e *Engine) {
	return func(e *Engine) {
		e.bufferSize = n
	}
}

// WithSubscriberQueue sets the per-subscriber event queue length
func WithSubscriberQueue(n int) func(e *Engine) {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// WithGracePeriod sets how long a stopping sweep utility gets before SIGKILL
func WithGracePeriod(d time.Duration) func(e *Engine) {
	return func(e *Engine) {
		e.grace = d
	}
}

// Engine cycles the sweep utility over a list of bands, parses its output and
// publishes samples, status changes and errors. All state is owned by the
// goroutine executing Run; control calls are submitted to it and awaited.
type Engine struct {
	supervisor *Supervisor
	recovery   *Recovery
	buffer     *sdr.SampleBuffer
	hub        *pubsub.Hub[Event]
	metrics    *Metrics
	logger     *slog.Logger

	recoveryConfig RecoveryConfig
	bufferSize     int
	queueSize      int
	grace          time.Duration

	lines    chan Line
	commands chan command
	status   atomic.Pointer[sdr.Status]
	last     atomic.Pointer[CycleInfo]
	started  atomic.Bool
	ready    chan struct{}
	done     chan struct{}

	cycle *cycle
}

// New creates a new Engine driving the device handler
func New(h Handler, options ...func(e *Engine)) (*Engine, error) {
	e := Engine{
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		recoveryConfig: DefaultRecoveryConfig(),
		bufferSize:     DefaultBufferSize,
		queueSize:      pubsub.DefaultQueueSize,
		grace:          DefaultStopGracePeriod,
		lines:          make(chan Line),
		commands:       make(chan command),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}

	for _, option := range options {
		option(&e)
	}

	if err := e.recoveryConfig.Validate(); err != nil {
		return nil, err
	}

	buffer, err := sdr.NewSampleBuffer(e.bufferSize)
	if err != nil {
		return nil, fmt.Errorf("error creating sample buffer: %w", err)
	}

	e.buffer = buffer
	e.hub = pubsub.NewHub[Event](e.queueSize)
	e.recovery = NewRecovery(e.recoveryConfig)
	e.supervisor = NewSupervisor(h, e.lines,
		WithSupervisorLogger(e.logger),
		WithStopGracePeriod(e.grace))

	idle := sdr.Idle()
	e.status.Store(&idle)
	e.metrics.observeState(idle.State)

	return &e, nil
}

// Run executes the engine loop until ctx is cancelled. A running cycle is
// stopped and all subscriptions are closed before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return errors.New("sweep: engine already started")
	}
	defer close(e.done)

	health := time.NewTicker(e.recoveryConfig.HealthInterval)
	defer health.Stop()

	e.logger.Info("sweep engine started")
	close(e.ready)

	for {
		var (
			exited <-chan struct{}
			dwell  <-chan time.Time
			retry  <-chan time.Time
		)
		if c := e.cycle; c != nil {
			if c.session != nil {
				exited = c.session.Done()
			}
			if c.dwell != nil {
				dwell = c.dwell.C
			}
			if c.retry != nil {
				retry = c.retry.C
			}
		}

		select {
		case <-ctx.Done():
			if e.cycle != nil {
				e.stopCycle("engine shutdown")
			}
			e.hub.Close()
			e.logger.Info("sweep engine stopped")
			return nil

		case cmd := <-e.commands:
			cmd.reply <- e.handleCommand(cmd)

		case line := <-e.lines:
			e.handleLine(line)

		case <-exited:
			e.handleExit()

		case <-dwell:
			e.handleDwell()

		case <-retry:
			e.handleRetry()

		case <-health.C:
			e.checkHealth()
		}
	}
}

// StartCycle validates and starts a new cycle. It fails with
// *InvalidConfigError or ErrAlreadyRunning without any state change, or with
// *SpawnError when the first band could not be launched.
func (e *Engine) StartCycle(ctx context.Context, config CycleConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return e.submit(ctx, command{kind: commandStart, config: config.Clone()})
}

// RestartCycle stops the running cycle, if any, and starts a new one as a
// single step
func (e *Engine) RestartCycle(ctx context.Context, config CycleConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	return e.submit(ctx, command{kind: commandRestart, config: config.Clone()})
}

// StopSweep stops the running cycle and cancels any pending restart. It is
// idempotent.
func (e *Engine) StopSweep(ctx context.Context) error {
	return e.submit(ctx, command{kind: commandStop})
}

// Ready is closed once the engine loop accepts commands
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Running reports whether the engine loop is executing
func (e *Engine) Running() bool {
	select {
	case <-e.ready:
	default:
		return false
	}

	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Status returns the current status
func (e *Engine) Status() sdr.Status {
	return *e.status.Load()
}

// LastCycle returns the most recently started cycle, which may have stopped
func (e *Engine) LastCycle() (CycleInfo, bool) {
	info := e.last.Load()
	if info == nil {
		return CycleInfo{}, false
	}
	return *info, true
}

// Device returns the name of the driven SDR device
func (e *Engine) Device() string {
	return e.supervisor.Device()
}

// Replay returns the buffered samples in arrival order
func (e *Engine) Replay() []*sdr.Sample {
	return e.buffer.Snapshot()
}

// Subscribe returns a subscription to all engine events
func (e *Engine) Subscribe() *pubsub.Subscription[Event] {
	return e.hub.Subscribe()
}

// Unsubscribe removes sub and closes its channel
func (e *Engine) Unsubscribe(sub *pubsub.Subscription[Event]) {
	e.hub.Unsubscribe(sub)
}

// Dropped returns the number of events dropped across current subscribers
func (e *Engine) Dropped() uint64 {
	return e.hub.Dropped()
}

func (e *Engine) submit(ctx context.Context, cmd command) error {
	if !e.started.Load() {
		return ErrEngineNotRunning
	}

	cmd.reply = make(chan error, 1)

	select {
	case e.commands <- cmd:
	case <-e.done:
		return ErrEngineNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) handleCommand(cmd command) error {
	switch cmd.kind {
	case commandStart:
		if e.cycle != nil {
			return ErrAlreadyRunning
		}
		return e.begin(cmd.config)

	case commandRestart:
		if e.cycle != nil {
			e.stopCycle("cycle restarted")
		}
		return e.begin(cmd.config)

	case commandStop:
		e.stopCycle("")
		return nil

	default:
		return fmt.Errorf("sweep: unknown command %d", cmd.kind)
	}
}

func (e *Engine) begin(config CycleConfig) error {
	c := &cycle{id: uuid.NewString(), config: config}

	e.cycle = c
	e.last.Store(&CycleInfo{ID: c.id, Config: config, StartedAt: time.Now()})
	e.recovery.Reset(len(config.Bands))

	e.logger.Info(fmt.Sprintf("starting cycle over %d band(s), dwell %s", len(config.Bands), config.Dwell),
		slog.String("cycle", c.id))

	e.setStatus(sdr.Starting(c.id, c.band(), 0))

	session, err := e.supervisor.Start(c.band(), c.index)
	if err != nil {
		e.logger.Error(err.Error(), slog.String("cycle", c.id))

		band := c.band()
		e.publishError(c, SeverityError, err)
		e.setStatus(sdr.Failed(c.id, &band, err.Error()))
		e.stopCycle(err.Error())
		return err
	}

	c.session = session
	c.dwell = time.NewTimer(config.Dwell)
	e.setStatus(sdr.Running(c.id, c.band()))

	return nil
}

// stopCycle tears the cycle down and publishes Stopped. Without a cycle it
// only moves a non-stopped engine to Stopped.
func (e *Engine) stopCycle(reason string) {
	c := e.cycle
	if c == nil {
		if e.Status().State != sdr.StateStopped {
			e.setStatus(sdr.Stopped("", reason))
		}
		return
	}

	stopTimer(&c.dwell)
	stopTimer(&c.retry)
	e.stopSession(c)
	e.cycle = nil

	e.setStatus(sdr.Stopped(c.id, reason))
}

func (e *Engine) stopSession(c *cycle) {
	session := c.session
	if session == nil {
		return
	}

	c.session = nil
	e.supervisor.Stop(session)

	select {
	case <-session.Done():
		e.metrics.observeExit(session.Exit())
	default:
	}
}

func (e *Engine) handleLine(line Line) {
	c := e.cycle
	if c == nil || c.session == nil || c.session.Gen != line.Gen {
		return // stale output of a stopped session
	}

	if line.Stderr {
		e.logger.Warn(fmt.Sprintf("%s >> %s", e.supervisor.Device(), line.Text))
		e.publishError(c, SeverityWarning, &DiagnosticError{Device: e.supervisor.Device(), Line: line.Text})
		return
	}

	sample, err := e.supervisor.Parse(line.Text)
	if err != nil {
		e.metrics.observeParseError()
		e.logger.Warn(fmt.Sprintf("error parsing samples: %s", err.Error()), slog.String("line", line.Text))

		if e.recovery.ParseFailed() {
			e.crash(c, fmt.Errorf("%w: %w", ErrStreamCorrupt, err))
		}
		return
	}

	c.samples++
	e.recovery.SampleReceived()
	e.metrics.observeSample(c.band(), sample)

	if _, err = e.buffer.Add(sample); err != nil {
		e.logger.Error(err.Error())
	}
	_ = e.hub.Publish(SampleEvent{CycleID: c.id, Band: c.band(), Sample: sample})
}

func (e *Engine) handleExit() {
	c := e.cycle
	session := c.session
	c.session = nil

	exit := session.Exit()
	e.metrics.observeExit(exit)

	decision := e.recovery.Exited(exit, session.Band)
	switch decision.Action {
	case ActionNone:
		return
	case ActionAdvance:
		e.logger.Info(fmt.Sprintf("%s finished on %s", e.supervisor.Device(), session.Band.Humanize()),
			slog.String("cycle", c.id))
	default:
		e.logger.Warn(decision.Err.Error(), slog.String("cycle", c.id), slog.Int("attempt", decision.Attempt))
		e.publishError(c, SeverityWarning, decision.Err)
	}

	e.recover(c, decision)
}

func (e *Engine) handleDwell() {
	c := e.cycle
	c.dwell = nil

	if c.samples == 0 {
		err := e.recovery.NoData(c.band(), c.config.Dwell)
		e.metrics.observeNoData()
		e.logger.Warn(err.Error(), slog.String("cycle", c.id))
		e.publishError(c, SeverityWarning, err)
	}

	if len(c.config.Bands) == 1 {
		c.samples = 0
		c.dwell = time.NewTimer(c.config.Dwell)
		return
	}

	e.switchBand(c)
}

func (e *Engine) handleRetry() {
	c := e.cycle
	c.retry = nil

	e.launch(c)
}

// checkHealth restarts a sweep utility that outgrew the memory limit
func (e *Engine) checkHealth() {
	e.metrics.observeDropped(e.hub.Dropped())

	c := e.cycle
	if c == nil || c.session == nil {
		return
	}

	rss, err := e.supervisor.RSS(c.session)
	if err != nil {
		e.logger.Debug(err.Error())
		return
	}
	e.metrics.observeRSS(rss)

	if err = e.recovery.CheckMemory(rss); err != nil {
		e.crash(c, err)
	}
}

// switchBand stops the current band and starts the next one, wrapping
// around. A pending restart of the current band is abandoned.
func (e *Engine) switchBand(c *cycle) {
	next := (c.index + 1) % len(c.config.Bands)
	from, to := c.band(), c.config.Bands[next]

	stopTimer(&c.retry)
	e.setStatus(sdr.Switching(c.id, from, to))
	e.metrics.observeSwitch()

	e.stopSession(c)

	c.index = next
	c.samples = 0
	e.recovery.BandChanged()

	stopTimer(&c.dwell)
	c.dwell = time.NewTimer(c.config.Dwell)

	e.setStatus(sdr.Starting(c.id, to, 0))
	e.launch(c)
}

// launch starts the current band. A spawn failure counts as a failure of
// the band.
func (e *Engine) launch(c *cycle) {
	session, err := e.supervisor.Start(c.band(), c.index)
	if err != nil {
		e.logger.Error(err.Error(), slog.String("cycle", c.id))
		e.publishError(c, SeverityWarning, err)
		e.recover(c, e.recovery.Failure(c.band(), err))
		return
	}

	c.session = session
	e.setStatus(sdr.Running(c.id, c.band()))
}

// crash stops a misbehaving session and handles it as a failure
func (e *Engine) crash(c *cycle, cause error) {
	e.logger.Warn(cause.Error(), slog.String("cycle", c.id))
	e.publishError(c, SeverityWarning, cause)

	e.stopSession(c)
	e.recover(c, e.recovery.Failure(c.band(), cause))
}

func (e *Engine) recover(c *cycle, decision Decision) {
	switch decision.Action {
	case ActionRestart:
		e.logger.Info(fmt.Sprintf("restarting %s in %s", c.band().Humanize(), decision.Delay),
			slog.String("cycle", c.id), slog.Int("attempt", decision.Attempt))

		e.metrics.observeRestart()
		e.setStatus(sdr.Starting(c.id, c.band(), decision.Attempt))

		stopTimer(&c.retry)
		c.retry = time.NewTimer(decision.Delay)

	case ActionAdvance:
		if len(c.config.Bands) == 1 {
			e.setStatus(sdr.Starting(c.id, c.band(), 0))
			e.launch(c)
			return
		}
		e.switchBand(c)

	case ActionFail:
		e.fail(c, decision.Err)
	}
}

// fail publishes the terminal failure, then Failed and Stopped
func (e *Engine) fail(c *cycle, err error) {
	e.logger.Error(err.Error(), slog.String("cycle", c.id))
	e.metrics.observeFailure()

	band := c.band()
	e.publishError(c, SeverityError, err)
	e.setStatus(sdr.Failed(c.id, &band, ErrMaxRetries.Error()))
	e.stopCycle(ErrMaxRetries.Error())
}

func (e *Engine) setStatus(status sdr.Status) {
	e.status.Store(&status)
	e.metrics.observeState(status.State)

	e.logger.Info(fmt.Sprintf("status: %s", status), slog.String("cycle", status.CycleID))
	_ = e.hub.Publish(StatusEvent{Status: status})
}

func (e *Engine) publishError(c *cycle, severity Severity, err error) {
	band := c.band()
	_ = e.hub.Publish(ErrorEvent{
		CycleID:   c.id,
		Band:      &band,
		Severity:  severity,
		Err:       err,
		Timestamp: time.Now(),
	})
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

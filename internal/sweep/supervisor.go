package sweep

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

const (
	// DefaultStopGracePeriod is how long Stop waits after SIGTERM before SIGKILL
	DefaultStopGracePeriod = 3 * time.Second

	maxLineSize = 1 << 20
)

// Handler builds the sweep utility command for a band and parses its output
type Handler interface {
	Cmd(band sdr.Band) (*exec.Cmd, error)
	Parse(line string) (*sdr.Sample, error)
	Device() string
}

// Line is one complete line of subprocess output, tagged with the generation
// of the session that produced it
type Line struct {
	Gen    uint64
	Text   string
	Stderr bool
}

// Exit describes how a session ended
type Exit struct {
	Code   int
	Signal string
	Err    error

	// Requested is set when the exit followed a call to Stop
	Requested bool
}

// Session is the handle of a single running sweep utility process
type Session struct {
	ID        uuid.UUID
	Gen       uint64
	Band      sdr.Band
	BandIndex int
	StartedAt time.Time
	PID       int

	cmd      *exec.Cmd
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool
	exit     Exit
}

// Done is closed once the process exited and its output was fully consumed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Exit returns the exit information. Valid only after Done is closed.
func (s *Session) Exit() Exit {
	<-s.done
	return s.exit
}

// WithSupervisorLogger sets the logger for the supervisor
func WithSupervisorLogger(logger *slog.Logger) func(s *Supervisor) {
	return func(s *Supervisor) {
		s.logger = logger.With(slog.String("device", s.handler.Device()))
	}
}

// WithStopGracePeriod sets how long Stop waits for a graceful exit
func WithStopGracePeriod(d time.Duration) func(s *Supervisor) {
	return func(s *Supervisor) {
		if d > 0 {
			s.grace = d
		}
	}
}

// Supervisor starts and stops the sweep utility. At most one session is
// alive at any time. Output lines are forwarded to the lines channel; the
// supervisor never parses or interprets them and never restarts a process.
type Supervisor struct {
	handler Handler
	lines   chan<- Line
	grace   time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	active *Session
	gen    uint64
}

// NewSupervisor creates a new Supervisor with a discard logger
func NewSupervisor(h Handler, lines chan<- Line, options ...func(s *Supervisor)) *Supervisor {
	s := Supervisor{
		handler: h,
		lines:   lines,
		grace:   DefaultStopGracePeriod,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Parse delegates to the device handler
func (s *Supervisor) Parse(line string) (*sdr.Sample, error) {
	return s.handler.Parse(line)
}

func (s *Supervisor) Device() string {
	return s.handler.Device()
}

// Active returns the live session, if any
func (s *Supervisor) Active() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Start launches the sweep utility for the band. It fails with *SpawnError,
// wrapping ErrSessionActive when another session is still alive.
func (s *Supervisor) Start(band sdr.Band, index int) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, &SpawnError{Band: band, Err: ErrSessionActive}
	}

	cmd, err := s.handler.Cmd(band)
	if err != nil {
		return nil, &SpawnError{Band: band, Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SpawnError{Band: band, Err: fmt.Errorf("error creating stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SpawnError{Band: band, Err: fmt.Errorf("error creating stderr pipe: %w", err)}
	}

	if err = cmd.Start(); err != nil {
		return nil, &SpawnError{Band: band, Err: fmt.Errorf("error starting command: %w", err)}
	}

	s.gen++
	session := &Session{
		ID:        uuid.New(),
		Gen:       s.gen,
		Band:      band,
		BandIndex: index,
		StartedAt: time.Now(),
		PID:       cmd.Process.Pid,
		cmd:       cmd,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.active = session

	s.logger.Info(fmt.Sprintf("started %s on %s", s.handler.Device(), band.Humanize()),
		slog.String("session", session.ID.String()),
		slog.Int("pid", session.PID),
		slog.String("args", strings.Join(cmd.Args[1:], " ")))

	go s.supervise(session, stdout, stderr)

	return session, nil
}

// Stop terminates the session: SIGTERM, then SIGKILL once the grace period
// elapsed. It returns after the process exited. Stopping a nil, finished or
// already stopped session is a no-op.
func (s *Supervisor) Stop(session *Session) {
	if session == nil {
		return
	}

	session.stopOnce.Do(func() {
		session.stopping.Store(true)
		close(session.quit)

		select {
		case <-session.done:
			return
		default:
		}

		if err := terminate(session.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn(fmt.Sprintf("error terminating process: %s", err.Error()), slog.Int("pid", session.PID))
		}

		timer := time.NewTimer(s.grace)
		defer timer.Stop()

		select {
		case <-session.done:
			return
		case <-timer.C:
		}

		s.logger.Warn(fmt.Sprintf("process did not exit within %s, killing", s.grace), slog.Int("pid", session.PID))

		if err := session.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Error(fmt.Sprintf("error killing process: %s", err.Error()), slog.Int("pid", session.PID))
		}

		timer.Reset(s.grace)
		select {
		case <-session.done:
		case <-timer.C:
			// Output pipes held open by a descendant; the session is abandoned
			s.logger.Error("process output did not close after kill", slog.Int("pid", session.PID))
			s.release(session)
		}
	})
}

// RSS returns the resident memory of the session's process
func (s *Supervisor) RSS(session *Session) (uint64, error) {
	if session == nil {
		return 0, errors.New("no session")
	}

	p, err := process.NewProcess(int32(session.PID))
	if err != nil {
		return 0, fmt.Errorf("error looking up process %d: %w", session.PID, err)
	}

	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("error reading memory of process %d: %w", session.PID, err)
	}

	return info.RSS, nil
}

// supervise forwards output until both pipes hit EOF, then reaps the process.
// Pipes must be drained before cmd.Wait.
func (s *Supervisor) supervise(session *Session, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.forward(session, stdout, false)
	}()
	go func() {
		defer wg.Done()
		s.forward(session, stderr, true)
	}()

	wg.Wait()

	err := session.cmd.Wait()
	session.exit = exitOf(session.cmd, err)
	session.exit.Requested = session.stopping.Load()

	s.logger.Info(fmt.Sprintf("%s exited", s.handler.Device()),
		slog.String("session", session.ID.String()),
		slog.Int("code", session.exit.Code),
		slog.String("signal", session.exit.Signal),
		slog.Bool("requested", session.exit.Requested))

	s.release(session)
	close(session.done)
}

func (s *Supervisor) release(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == session {
		s.active = nil
	}
}

// forward scans r line by line and hands every non-blank line to the owner.
// After Stop lines are read and discarded so the process never blocks on a
// full pipe.
func (s *Supervisor) forward(session *Session, r io.Reader, stderr bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(scanCompleteLines)

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		select {
		case s.lines <- Line{Gen: session.Gen, Text: text, Stderr: stderr}:
		case <-session.quit:
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		s.logger.Warn(fmt.Sprintf("error reading output: %s", err.Error()), slog.Bool("stderr", stderr))
		_, _ = io.Copy(io.Discard, r)
	}
}

// scanCompleteLines is bufio.ScanLines without the final unterminated line:
// a fragment left at EOF was cut off mid-write and is dropped.
func scanCompleteLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), nil, nil
	}

	return 0, nil, nil
}

func exitOf(cmd *exec.Cmd, err error) Exit {
	var exit Exit

	if state := cmd.ProcessState; state != nil {
		exit.Code = state.ExitCode()
		exit.Signal = exitSignal(state)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		exit.Err = err
	}

	return exit
}

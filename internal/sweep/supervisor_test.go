package sweep

import (
	"bufio"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// collect drains the lines channel until the test ends. Snapshots are served
// by the draining goroutine, so a line taken off the channel is always part
// of the next snapshot.
func collect(t *testing.T) (chan Line, func() []Line) {
	t.Helper()

	lines := make(chan Line)
	snapshots := make(chan chan []Line)
	done := make(chan struct{})

	go func() {
		var received []Line
		for {
			select {
			case l := <-lines:
				received = append(received, l)
			case reply := <-snapshots:
				reply <- append([]Line(nil), received...)
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(done) })

	return lines, func() []Line {
		reply := make(chan []Line, 1)
		snapshots <- reply
		return <-reply
	}
}

func waitDone(t *testing.T, s *Session) Exit {
	t.Helper()

	select {
	case <-s.Done():
		return s.Exit()
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
		return Exit{}
	}
}

func TestScanCompleteLines(t *testing.T) {
	input := "first\r\nsecond\n\nthird without newline"

	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanCompleteLines)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}

	expected := []string{"first", "second", ""}
	if strings.Join(tokens, "|") != strings.Join(expected, "|") {
		t.Errorf("expected %q, got %q", expected, tokens)
	}
}

func TestSupervisor_PartialLineDropped(t *testing.T) {
	lines, received := collect(t)
	s := NewSupervisor(newHelperHandler(modePartial), lines)

	session, err := s.Start(bandA, 0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	exit := waitDone(t, session)
	if exit.Code != 0 || exit.Requested {
		t.Errorf("expected a clean unrequested exit, got %+v", exit)
	}

	got := received()
	if len(got) != 1 {
		t.Fatalf("expected 1 complete line, got %d: %v", len(got), got)
	}
	if got[0].Gen != session.Gen || got[0].Stderr {
		t.Errorf("unexpected line tag %+v", got[0])
	}
	if _, err = s.Parse(got[0].Text); err != nil {
		t.Errorf("forwarded line does not parse: %v", err)
	}
	if s.Active() != nil {
		t.Error("expected no active session after exit")
	}
}

func TestSupervisor_LinesForwardedBeforeDone(t *testing.T) {
	lines, received := collect(t)
	s := NewSupervisor(newHelperHandler(modePartial), lines)

	for i := range 20 {
		session, err := s.Start(bandA, 0)
		if err != nil {
			t.Fatalf("run #%d: Start failed: %v", i, err)
		}
		waitDone(t, session)

		if got := received(); len(got) != i+1 {
			t.Fatalf("run #%d: expected %d lines, got %d", i, i+1, len(got))
		}
	}
}

func TestSupervisor_ExitCodeAndStderr(t *testing.T) {
	lines, received := collect(t)
	s := NewSupervisor(newHelperHandler(modeCrash), lines)

	session, err := s.Start(bandA, 0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	exit := waitDone(t, session)
	if exit.Code != 1 {
		t.Errorf("expected exit code 1, got %d", exit.Code)
	}

	got := received()
	if len(got) != 1 || !got[0].Stderr || !strings.Contains(got[0].Text, "HACKRF_ERROR_NOT_FOUND") {
		t.Errorf("expected one stderr line, got %v", got)
	}
}

func TestSupervisor_SingleSession(t *testing.T) {
	lines, _ := collect(t)
	s := NewSupervisor(newHelperHandler(modeStream), lines)

	session, err := s.Start(bandA, 0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(session)

	_, err = s.Start(bandB, 1)
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	var se *SpawnError
	if !errors.As(err, &se) || se.Band != bandB {
		t.Errorf("expected SpawnError for 915MHz, got %v", err)
	}

	s.Stop(session)
	exit := waitDone(t, session)
	if !exit.Requested {
		t.Error("expected exit to be marked as requested")
	}

	next, err := s.Start(bandB, 1)
	if err != nil {
		t.Fatalf("Start after Stop failed: %v", err)
	}
	if next.Gen <= session.Gen {
		t.Errorf("expected a newer generation, got %d after %d", next.Gen, session.Gen)
	}
	s.Stop(next)
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	lines, _ := collect(t)
	s := NewSupervisor(newHelperHandler(modeStream), lines, WithStopGracePeriod(200*time.Millisecond))

	s.Stop(nil)

	session, err := s.Start(bandA, 0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop(session)
		}()
	}
	wg.Wait()

	select {
	case <-session.Done():
	default:
		t.Fatal("expected Stop to return after the process exited")
	}

	s.Stop(session)
}

func TestSupervisor_RSS(t *testing.T) {
	lines, _ := collect(t)
	s := NewSupervisor(newHelperHandler(modeStream), lines)

	session, err := s.Start(bandA, 0)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(session)

	rss, err := s.RSS(session)
	if err != nil {
		t.Fatalf("RSS failed: %v", err)
	}
	if rss == 0 {
		t.Error("expected non-zero resident memory")
	}

	if _, err = s.RSS(nil); err == nil {
		t.Error("expected error without a session")
	}
}

func TestSupervisor_SpawnError(t *testing.T) {
	lines, _ := collect(t)
	s := NewSupervisor(failingHandler{}, lines)

	_, err := s.Start(bandA, 0)

	var se *SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if s.Active() != nil {
		t.Error("expected no active session after a failed spawn")
	}
}

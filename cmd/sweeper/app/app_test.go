package app

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr/hackrf"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

// missingDevice points at a sweep utility that does not exist
type missingDevice struct{}

func (missingDevice) Cmd(sdr.Band) (*exec.Cmd, error) {
	return exec.Command("/nonexistent/hackrf_sweep"), nil
}

func (missingDevice) Parse(line string) (*sdr.Sample, error) {
	return hackrf.ParseLine(line)
}

func (missingDevice) Device() string {
	return "missing"
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAutostart_WaitsForEngine(t *testing.T) {
	engine, err := sweep.New(missingDevice{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	config := sweep.CycleConfig{Bands: []sdr.Band{sdr.NewBand(2400, sdr.MHz)}, Dwell: time.Second}

	started := make(chan struct{})
	go func() {
		defer close(started)
		autostart(ctx, engine, config, discardLogger())
	}()

	select {
	case <-started:
		t.Fatal("expected autostart to wait for the engine")
	case <-time.After(50 * time.Millisecond):
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run(ctx)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("autostart did not return")
	}

	// The spawn fails, but the cycle was attempted and stopped
	info, ok := engine.LastCycle()
	if !ok || len(info.Config.Bands) != 1 {
		t.Errorf("expected the configured cycle to be started, got %+v", info)
	}
	if st := engine.Status(); st.State != sdr.StateStopped {
		t.Errorf("expected stopped after the failed spawn, got %s", st)
	}

	cancel()
	if err = <-errCh; err != nil {
		t.Errorf("Run failed: %v", err)
	}
}

func TestAutostart_Cancelled(t *testing.T) {
	engine, err := sweep.New(missingDevice{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		autostart(ctx, engine, sweep.CycleConfig{}, discardLogger())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected autostart to give up on cancellation")
	}
	if _, ok := engine.LastCycle(); ok {
		t.Error("expected no cycle without a running engine")
	}
}

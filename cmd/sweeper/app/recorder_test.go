package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/spectrum"
	"github.com/roman-kulish/spectrum-streamer/internal/storage"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

type staticSource struct {
	info sweep.CycleInfo
}

func (s staticSource) LastCycle() (sweep.CycleInfo, bool) {
	return s.info, s.info.ID != ""
}

func (s staticSource) Device() string {
	return "HackRF"
}

func newTestJournal(t *testing.T) *storage.SqliteStore {
	t.Helper()

	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "journal.db"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecorder_RecordsCycle(t *testing.T) {
	store := newTestJournal(t)

	band := sdr.NewBand(2400, sdr.MHz)
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	source := staticSource{info: sweep.CycleInfo{
		ID:        "c1",
		Config:    sweep.CycleConfig{Bands: []sdr.Band{band}, Dwell: time.Second},
		StartedAt: started,
	}}

	events := make(chan sweep.Event, 16)
	events <- sweep.StatusEvent{Status: sdr.Idle()}
	events <- sweep.StatusEvent{Status: sdr.Starting("c1", band, 0)}
	events <- sweep.StatusEvent{Status: sdr.Running("c1", band)}
	events <- sweep.SampleEvent{CycleID: "c1", Band: band, Sample: &sdr.Sample{Timestamp: time.Now()}}
	events <- sweep.ErrorEvent{
		CycleID:   "c1",
		Band:      &band,
		Severity:  sweep.SeverityError,
		Err:       &sweep.TerminalFailure{Band: &band, Err: sweep.ErrMaxRetries},
		Timestamp: time.Now(),
	}
	events <- sweep.StatusEvent{Status: sdr.Failed("c1", &band, "max retries exceeded")}
	events <- sweep.StatusEvent{Status: sdr.Stopped("c1", "max retries exceeded")}
	close(events)

	r := NewRecorder(store, source, WithMaxBatchSize(2))
	if err := r.Run(context.Background(), events); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ctx := context.Background()
	c, err := store.Cycle(ctx, "c1")
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if !c.StartTime.Equal(started) || c.DeviceType != "HackRF" {
		t.Errorf("unexpected cycle %+v", c)
	}
	if c.Config == nil || *c.Config != `{"bands":[{"frequency":2400,"unit":"MHz"}],"dwellMillis":1000}` {
		t.Errorf("unexpected config %v", c.Config)
	}
	if c.Running() || !c.Failed || c.StopReason == nil || *c.StopReason != "max retries exceeded" {
		t.Errorf("expected a failed stopped cycle, got %+v", c)
	}

	entries, err := store.Entries(ctx, "c1")
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}

	var got []string
	for _, e := range entries {
		if e.Kind == spectrum.EntryError {
			got = append(got, "error:"+e.State)
			continue
		}
		got = append(got, e.State)
	}

	expected := []string{"starting", "running", "error:terminal", "failed", "stopped"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("entry #%d: expected %s, got %s", i, expected[i], got[i])
		}
	}
}

func TestRecorder_UnknownCycleWithoutConfig(t *testing.T) {
	store := newTestJournal(t)

	band := sdr.NewBand(915, sdr.MHz)
	running := sdr.Running("c2", band)

	events := make(chan sweep.Event, 4)
	events <- sweep.StatusEvent{Status: running}
	close(events)

	r := NewRecorder(store, staticSource{})
	if err := r.Run(context.Background(), events); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	c, err := store.Cycle(context.Background(), "c2")
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if c.Config != nil || !c.Running() || !c.StartTime.Equal(running.Timestamp) {
		t.Errorf("unexpected cycle %+v", c)
	}
}

func TestRecorder_DrainsAfterCancel(t *testing.T) {
	store := newTestJournal(t)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan sweep.Event)

	errCh := make(chan error, 1)
	go func() {
		errCh <- NewRecorder(store, staticSource{}).Run(ctx, events)
	}()

	band := sdr.NewBand(915, sdr.MHz)
	cancel()
	events <- sweep.StatusEvent{Status: sdr.Starting("c3", band, 0)}
	events <- sweep.StatusEvent{Status: sdr.Stopped("c3", "engine shutdown")}
	close(events)

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not return")
	}

	c, err := store.Cycle(context.Background(), "c3")
	if err != nil {
		t.Fatalf("Cycle failed: %v", err)
	}
	if c.Running() || c.Failed {
		t.Errorf("expected a stopped cycle, got %+v", c)
	}

	if _, err = store.Cycle(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

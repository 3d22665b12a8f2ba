package spectrum

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

var band2400 = sdr.NewBand(2400, sdr.MHz)

func TestErrorKind(t *testing.T) {
	testCases := []struct {
		err  error
		kind string
	}{
		{&sweep.TerminalFailure{Band: &band2400, Err: fmt.Errorf("%w: %w", sweep.ErrMaxRetries, &sweep.ProcessExitError{Code: 1})}, KindTerminal},
		{&sweep.SpawnError{Band: band2400, Err: errors.New("exec: not found")}, KindSpawn},
		{&sweep.ProcessExitError{Band: band2400, Code: 1}, KindProcessExit},
		{&sweep.DiagnosticError{Device: "HackRF", Line: "hackrf_open() failed"}, KindDiagnostic},
		{&sweep.NoDataError{Band: band2400, Dwell: time.Second}, KindNoData},
		{&sweep.MemoryPressureError{RSS: 2 << 30, Limit: 1 << 30}, KindMemoryPressure},
		{sweep.ErrStreamCorrupt, KindStreamCorrupt},
		{&sweep.InvalidConfigError{Reason: "no bands"}, KindInvalidConfig},
		{errors.New("boom"), KindOther},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.kind {
				t.Errorf("expected %s, got %s", tc.kind, got)
			}
		})
	}
}

func TestFromEvent_Sample(t *testing.T) {
	sample := &sdr.Sample{
		Timestamp:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		StartFrequency: 2_397_500_000,
		EndFrequency:   2_402_500_000,
		BinWidth:       1_000_000,
		BinCount:       2,
		Powers:         []float64{-70.1, -68.3},
	}

	msg, err := FromEvent(sweep.SampleEvent{CycleID: "c1", Band: band2400, Sample: sample})
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err = json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded["type"] != "sample" || decoded["cycleID"] != "c1" {
		t.Errorf("unexpected envelope %s", data)
	}
	if _, ok := decoded["status"]; ok {
		t.Errorf("expected no status in a sample message: %s", data)
	}
	body, ok := decoded["sample"].(map[string]any)
	if !ok || body["binCount"] != float64(2) {
		t.Errorf("unexpected sample body %s", data)
	}
}

func TestFromEvent_Status(t *testing.T) {
	status := sdr.Switching("c1", band2400, sdr.NewBand(915, sdr.MHz))

	msg, err := FromEvent(sweep.StatusEvent{Status: status})
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}

	data, _ := json.Marshal(msg)
	var decoded struct {
		Type   string `json:"type"`
		Status struct {
			State string   `json:"state"`
			From  sdr.Band `json:"from"`
			To    sdr.Band `json:"to"`
		} `json:"status"`
	}
	if err = json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Type != "status" || decoded.Status.State != "switching" {
		t.Errorf("unexpected message %s", data)
	}
	if decoded.Status.From != band2400 || decoded.Status.To.String() != "915MHz" {
		t.Errorf("unexpected bands %s", data)
	}
}

func TestFromEvent_Error(t *testing.T) {
	ev := sweep.ErrorEvent{
		CycleID:   "c1",
		Band:      &band2400,
		Severity:  sweep.SeverityWarning,
		Err:       &sweep.NoDataError{Band: band2400, Dwell: time.Second},
		Timestamp: time.Now(),
	}

	msg, err := FromEvent(ev)
	if err != nil {
		t.Fatalf("FromEvent failed: %v", err)
	}
	if msg.Type != MessageError || msg.Error == nil {
		t.Fatalf("expected an error message, got %+v", msg)
	}
	if msg.Error.Severity != "warning" || msg.Error.Kind != KindNoData {
		t.Errorf("unexpected payload %+v", msg.Error)
	}
	if msg.Error.Message != "no samples received on 2400MHz during 1s dwell" {
		t.Errorf("unexpected message %q", msg.Error.Message)
	}
}

func TestEntryFromEvent(t *testing.T) {
	entry, ok := EntryFromEvent(sweep.StatusEvent{Status: sdr.Starting("c1", band2400, 2)})
	if !ok {
		t.Fatal("expected a status entry")
	}
	if entry.Kind != EntryStatus || entry.State != "starting" || entry.Band != "2400MHz" || entry.Attempt != 2 {
		t.Errorf("unexpected entry %+v", entry)
	}

	entry, _ = EntryFromEvent(sweep.StatusEvent{Status: sdr.Switching("c1", band2400, sdr.NewBand(915, sdr.MHz))})
	if entry.Band != "2400MHz -> 915MHz" {
		t.Errorf("unexpected switching band %q", entry.Band)
	}

	entry, ok = EntryFromEvent(sweep.ErrorEvent{
		CycleID:  "c1",
		Severity: sweep.SeverityError,
		Err:      &sweep.SpawnError{Band: band2400, Err: errors.New("not found")},
	})
	if !ok || entry.Kind != EntryError || entry.State != KindSpawn || entry.Severity != "error" {
		t.Errorf("unexpected error entry %+v", entry)
	}
	if entry.Band != "" {
		t.Errorf("expected no band, got %q", entry.Band)
	}

	if _, ok = EntryFromEvent(sweep.SampleEvent{Sample: &sdr.Sample{}}); ok {
		t.Error("expected samples not to be journaled")
	}
}

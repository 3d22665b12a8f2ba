package sdr

import (
	"encoding/json"
	"testing"
)

func TestStatus_String(t *testing.T) {
	a := NewBand(2400, MHz)
	b := NewBand(915, MHz)

	testCases := []struct {
		status   Status
		expected string
	}{
		{Idle(), "idle"},
		{Starting("c", a, 1), "starting(2400MHz)"},
		{Running("c", a), "running(2400MHz)"},
		{Switching("c", a, b), "switching(2400MHz -> 915MHz)"},
		{Stopped("c", ""), "stopped"},
		{Failed("c", &a, "max retries exceeded"), "failed(max retries exceeded)"},
	}

	for _, tc := range testCases {
		if got := tc.status.String(); got != tc.expected {
			t.Errorf("expected %s, got %s", tc.expected, got)
		}
	}
}

func TestStatus_Active(t *testing.T) {
	a := NewBand(2400, MHz)

	if Idle().Active() || Stopped("c", "").Active() || Failed("c", &a, "x").Active() {
		t.Error("expected idle, stopped and failed to be inactive")
	}
	if !Starting("c", a, 0).Active() || !Running("c", a).Active() {
		t.Error("expected starting and running to be active")
	}
}

func TestStatus_JSON(t *testing.T) {
	in := Switching("c1", NewBand(2400, MHz), NewBand(5.8, GHz))

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out Status
	if err = json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out.State != StateSwitching || out.CycleID != "c1" || *out.From != *in.From || *out.To != *in.To {
		t.Errorf("unexpected status %+v from %s", out, data)
	}

	var s State
	if err = s.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("expected an unknown state to be rejected")
	}
}

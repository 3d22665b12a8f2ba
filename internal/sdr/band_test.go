package sdr

import (
	"encoding/json"
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestBand_Hz(t *testing.T) {
	testCases := []struct {
		band Band
		want float64
	}{
		{NewBand(2400, MHz), 2_400_000_000},
		{NewBand(5.8, GHz), 5_800_000_000},
		{NewBand(433920, KHz), 433_920_000},
		{NewBand(1_000_000, Hz), 1_000_000},
	}

	for _, tc := range testCases {
		t.Run(tc.band.String(), func(t *testing.T) {
			if got := tc.band.Hz(); math.Abs(got-tc.want) > 1e-3 {
				t.Errorf("expected %f Hz, got %f", tc.want, got)
			}
		})
	}
}

func TestBand_Validate(t *testing.T) {
	testCases := []struct {
		name string
		band Band
	}{
		{"zero frequency", NewBand(0, MHz)},
		{"negative frequency", NewBand(-1, MHz)},
		{"unknown unit", NewBand(2400, Unit("THz"))},
		{"empty unit", NewBand(2400, "")},
		{"NaN", NewBand(math.NaN(), MHz)},
		{"Inf", NewBand(math.Inf(1), MHz)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.band.Validate(); err == nil {
				t.Errorf("expected validation error for %#v", tc.band)
			}
		})
	}

	if err := NewBand(2400, MHz).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseBand(t *testing.T) {
	b, err := ParseBand("5.8 GHz")
	if err != nil {
		t.Fatalf("ParseBand failed: %v", err)
	}
	if b.Frequency != 5.8 || b.Unit != GHz {
		t.Errorf("unexpected band %#v", b)
	}

	if _, err = ParseBand("MHz"); err == nil {
		t.Error("expected error for missing frequency")
	}
	if _, err = ParseBand("2400parsecs"); err == nil {
		t.Error("expected error for unknown unit")
	}
}

func TestBand_Decoding(t *testing.T) {
	var fromJSON []Band
	if err := json.Unmarshal([]byte(`[{"frequency":2400,"unit":"mhz"},{"frequency":5800,"unit":"MHz"}]`), &fromJSON); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(fromJSON) != 2 || fromJSON[0].Unit != MHz || fromJSON[1].Frequency != 5800 {
		t.Errorf("unexpected bands %#v", fromJSON)
	}

	var fromYAML []Band
	doc := "- frequency: 433.92\n  unit: MHz\n- frequency: 2.4\n  unit: ghz\n"
	if err := yaml.Unmarshal([]byte(doc), &fromYAML); err != nil {
		t.Fatalf("yaml decode failed: %v", err)
	}
	if len(fromYAML) != 2 || fromYAML[1].Unit != GHz {
		t.Errorf("unexpected bands %#v", fromYAML)
	}

	if err := json.Unmarshal([]byte(`{"frequency":1,"unit":"lightyears"}`), new(Band)); err == nil {
		t.Error("expected error for unknown unit")
	}
}

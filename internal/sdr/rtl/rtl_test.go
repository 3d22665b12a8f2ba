package rtl

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

func TestConfig_Args(t *testing.T) {
	c := Config{
		Bandwidth: 20_000_000,
		BinWidth:  125_000,
		Interval:  TimeDuration(time.Second),
		Gain:      30,
		Crop:      0.2,
	}

	args, err := c.Args(sdr.NewBand(98, sdr.MHz))
	if err != nil {
		t.Fatalf("Args failed: %v", err)
	}

	expected := []string{
		"-f", "88000000:108000000:125000",
		"-i", "1s",
		"-d", "0",
		"-g", "30",
		"-c", "0.20",
		"-",
	}
	if !slices.Equal(args, expected) {
		t.Errorf("expected %v, got %v", expected, args)
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name   string
		config Config
	}{
		{"bin width too wide", Config{BinWidth: 3_000_000}},
		{"sub-second interval", Config{Interval: TimeDuration(500 * time.Millisecond)}},
		{"unknown window", Config{WindowFunction: "triangle"}},
		{"unknown smoothing", Config{Smoothing: "median"}},
		{"crop above one", Config{Crop: 1.5}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.config.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTimeDuration_YAML(t *testing.T) {
	var c Config
	if err := yaml.Unmarshal([]byte("interval: 15m\nbinWidth: 10000\n"), &c); err != nil {
		t.Fatalf("yaml decode failed: %v", err)
	}
	if time.Duration(c.Interval) != 15*time.Minute {
		t.Errorf("expected 15m, got %s", time.Duration(c.Interval))
	}
	if c.Interval.String() != "15m" {
		t.Errorf("expected rtl_power notation 15m, got %s", c.Interval.String())
	}
}

func TestParseLine(t *testing.T) {
	line := "2024-05-01, 12:00:01, 88000000, 88500000, 125000.00, 12, -30.5, -31.0, -29.8, -35.2"

	s, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if s.BinCount != 4 || s.Powers[2] != -29.8 {
		t.Errorf("unexpected sample %+v", s)
	}
	if !s.Timestamp.Equal(time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %s", s.Timestamp)
	}
}

// croppedLine renders a line the way rtl_power does with -c crop over an
// FFT of n bins of 1 kHz: the range covers int(n*(1-crop)) bins while the
// bins between the cropped edges are printed inclusive.
func croppedLine(n int, crop float64, extra int) string {
	i1 := int(float64(n) * crop * 0.5)
	i2 := (n - 1) - int(float64(n)*crop*0.5)
	binCount := int(float64(n) * (1 - crop))

	low := 88_000_000
	high := low + binCount*1000

	var b strings.Builder
	fmt.Fprintf(&b, "2024-05-01, 12:00:01, %d, %d, 1000.00, 16", low, high)
	for i := i1; i <= i2+extra; i++ {
		b.WriteString(", -42.5")
	}
	return b.String()
}

func TestParseLine_Cropped(t *testing.T) {
	testCases := []struct {
		name     string
		n        int
		crop     float64
		expected int
	}{
		{"no crop", 256, 0, 256},
		{"20 percent", 256, 0.2, 206},
		{"50 percent", 512, 0.5, 256},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := ParseLine(croppedLine(tc.n, tc.crop, 0))
			if err != nil {
				t.Fatalf("ParseLine failed: %v", err)
			}
			if s.BinCount != tc.expected || len(s.Powers) != tc.expected {
				t.Errorf("expected %d readings, got %d", tc.expected, s.BinCount)
			}
			if s.StartFrequency != 88_000_000 {
				t.Errorf("expected the printed range to be kept, got %f", s.StartFrequency)
			}
		})
	}

	_, err := ParseLine(croppedLine(256, 0.2, 5))
	var pe *sdr.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("expected a parse error for extra readings, got %v", err)
	}
}

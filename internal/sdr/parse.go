package sdr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// MinPower and MaxPower bound the power readings accepted from the sweep
	// utility. Anything outside is a corrupted reading, not a signal.
	MinPower = -200.0
	MaxPower = 100.0

	// minFields is date, time, hz_low, hz_high, hz_bin_width, num_samples and at least one reading
	minFields = 7
)

var (
	errNotEnoughFields = errors.New("not enough fields")
	errBinCount        = errors.New("number of readings does not match frequency range")
	errNotFinite       = errors.New("value is not finite")
	errOutOfRange      = errors.New("value is out of range")
)

// ParseSweepLine parses one line of `hackrf_sweep` / `rtl_power` CSV output:
//
//	date, time, hz_low, hz_high, hz_bin_width, num_samples, dB, dB, ...
//
// The timestamp is parsed with timeLayout in UTC. The number of readings must
// match the frequency range divided by the bin width, give or take binSlack
// readings. Every failure is reported as *ParseError.
func ParseSweepLine(line, timeLayout string, binSlack int) (*Sample, error) {
	line = strings.TrimSpace(line)

	fields := strings.Split(line, ",")
	if len(fields) < minFields {
		return nil, NewParseError(line, "", fmt.Errorf("%w: %d < %d", errNotEnoughFields, len(fields), minFields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var err error
	var s Sample

	s.Timestamp, err = time.Parse(timeLayout, fields[0]+" "+fields[1])
	if err != nil {
		return nil, NewParseError(line, "timestamp", err)
	}

	if s.StartFrequency, err = parseFinite(fields[2]); err != nil {
		return nil, NewParseError(line, "start frequency", err)
	}
	if s.EndFrequency, err = parseFinite(fields[3]); err != nil {
		return nil, NewParseError(line, "end frequency", err)
	}
	if s.EndFrequency <= s.StartFrequency {
		return nil, NewParseError(line, "end frequency", fmt.Errorf("%w: %.0f <= %.0f", errOutOfRange, s.EndFrequency, s.StartFrequency))
	}

	if s.BinWidth, err = parseFinite(fields[4]); err != nil {
		return nil, NewParseError(line, "bin width", err)
	}
	if s.BinWidth <= 0 {
		return nil, NewParseError(line, "bin width", fmt.Errorf("%w: %f", errOutOfRange, s.BinWidth))
	}

	if s.NumSamples, err = strconv.Atoi(fields[5]); err != nil {
		return nil, NewParseError(line, "number of samples", err)
	}
	if s.NumSamples < 0 {
		return nil, NewParseError(line, "number of samples", fmt.Errorf("%w: %d", errOutOfRange, s.NumSamples))
	}

	readings := fields[6:]
	expected := int(math.Round((s.EndFrequency - s.StartFrequency) / s.BinWidth))
	if diff := len(readings) - expected; diff < -binSlack || diff > binSlack {
		return nil, NewParseError(line, "", fmt.Errorf("%w: expected %d, got %d", errBinCount, expected, len(readings)))
	}

	s.BinCount = len(readings)
	s.Powers = make([]float64, len(readings))
	for i, field := range readings {
		power, err := parseFinite(field)
		if err != nil {
			return nil, NewParseError(line, fmt.Sprintf("power reading #%d", i), err)
		}
		if power < MinPower || power > MaxPower {
			return nil, NewParseError(line, fmt.Sprintf("power reading #%d", i), fmt.Errorf("%w: %.2f dB", errOutOfRange, power))
		}
		s.Powers[i] = power
	}

	return &s, nil
}

func parseFinite(field string) (float64, error) {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

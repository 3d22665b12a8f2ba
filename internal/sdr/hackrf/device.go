package hackrf

import (
	"fmt"
	"os/exec"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr/driver"
)

const (
	Runtime = "hackrf_sweep"
	Device  = "HackRF"

	// TimeLayout is the timestamp format of the first two output columns
	TimeLayout = "2006-01-02 15:04:05.000000"
)

// Handler builds `hackrf_sweep` invocations and parses their output
type Handler struct {
	binPath      string
	serialNumber string
	config       Config
}

// New creates a new HackRF handler. An empty binPath looks `hackrf_sweep` up
// with driver.FindRuntime.
func New(binPath, serialNumber string, config *Config) (*Handler, error) {
	if binPath == "" {
		var err error
		if binPath, err = driver.FindRuntime(Runtime); err != nil {
			return nil, fmt.Errorf("error finding runtime: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Handler{binPath: binPath, serialNumber: serialNumber, config: *config}, nil
}

// Cmd returns an exec.Cmd sweeping the band
func (h *Handler) Cmd(band sdr.Band) (*exec.Cmd, error) {
	args, err := h.config.Args(band, h.serialNumber)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}

	return exec.Command(h.binPath, args...), nil
}

// Parse parses a line of HackRF output
func (h *Handler) Parse(line string) (*sdr.Sample, error) {
	return ParseLine(line)
}

// Device returns the device type
func (h *Handler) Device() string {
	return Device
}

// ParseLine parses one line of `hackrf_sweep` output, e.g.
//
//	2024-05-01, 12:00:00.123456, 2400000000, 2405000000, 1000000.00, 20, -70.1, -68.3, -71.0, -69.9, -72.4
func ParseLine(line string) (*sdr.Sample, error) {
	s, err := sdr.ParseSweepLine(line, TimeLayout, 0)
	if err != nil {
		return nil, err
	}

	s.SampleRate = SampleRate
	return s, nil
}

package rtl

import (
	"fmt"
	"os/exec"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr/driver"
)

const (
	Runtime = "rtl_power"
	Device  = "RTL-SDR"

	// TimeLayout is the timestamp format of the first two output columns
	TimeLayout = "2006-01-02 15:04:05"

	// BinSlack is how many readings a cropped scan may print beyond the
	// range it reports. rtl_power derives the range from len*(1-crop) bins
	// but prints every bin between the cropped edges inclusive.
	BinSlack = 2
)

// Handler builds `rtl_power` invocations and parses their output
type Handler struct {
	binPath string
	config  Config
}

// New creates a new RTL-SDR handler. An empty binPath looks `rtl_power` up
// with driver.FindRuntime.
func New(binPath string, config *Config) (*Handler, error) {
	if binPath == "" {
		var err error
		if binPath, err = driver.FindRuntime(Runtime); err != nil {
			return nil, fmt.Errorf("error finding runtime: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Handler{binPath: binPath, config: *config}, nil
}

// Cmd returns an exec.Cmd sweeping the band
func (h *Handler) Cmd(band sdr.Band) (*exec.Cmd, error) {
	args, err := h.config.Args(band)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}

	return exec.Command(h.binPath, args...), nil
}

// Parse parses a line of RTL-SDR output
func (h *Handler) Parse(line string) (*sdr.Sample, error) {
	return ParseLine(line)
}

func (h *Handler) Device() string {
	return Device
}

// ParseLine parses one line of `rtl_power` output. The reported frequency
// range is kept as printed when cropping adds readings.
func ParseLine(line string) (*sdr.Sample, error) {
	s, err := sdr.ParseSweepLine(line, TimeLayout, BinSlack)
	if err != nil {
		return nil, err
	}

	s.SampleRate = SampleRate
	return s, nil
}

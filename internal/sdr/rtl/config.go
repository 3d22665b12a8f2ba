package rtl

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

const (
	BinWidthMin = 1
	BinWidthMax = 2_800_000

	// DefaultBandwidth is the span swept around a band center when none is configured
	DefaultBandwidth = 2_000_000

	// DefaultBinWidth is used when the configuration leaves the bin width empty
	DefaultBinWidth = 10_000

	// SampleRate is the default `rtl_power` tuner sample rate
	SampleRate = 2_400_000

	WindowFunctionRectangle WindowFunction = "rectangle"
	WindowFunctionHamming   WindowFunction = "hamming"
	WindowFunctionBlackman  WindowFunction = "blackman"
	WindowFunctionHann      WindowFunction = "hann-poisson"

	SmoothingAvg SmoothingMethod = "avg"
	SmoothingIIR SmoothingMethod = "iir"
)

var (
	validWindowFunctions = map[WindowFunction]struct{}{
		WindowFunctionRectangle: {},
		WindowFunctionHamming:   {},
		WindowFunctionBlackman:  {},
		WindowFunctionHann:      {},
	}

	validSmoothingMethods = map[SmoothingMethod]struct{}{
		SmoothingAvg: {},
		SmoothingIIR: {},
	}
)

type WindowFunction string

type SmoothingMethod string

// TimeDuration is a time.Duration decoded from strings such as "10s" or "5m"
type TimeDuration time.Duration

func (d *TimeDuration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("rtl.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d *TimeDuration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("rtl.TimeDuration: failed to parse: %s", err)
	}

	*d = TimeDuration(duration)
	return nil
}

func (d TimeDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// String renders the duration with the unit suffixes `rtl_power` understands
func (d TimeDuration) String() string {
	duration := time.Duration(d)
	if duration%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(duration/time.Hour))
	} else if duration%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(duration/time.Minute))
	} else {
		return fmt.Sprintf("%ds", int(duration/time.Second))
	}
}

// Usage examples from man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_power.1.en.html

/*
FM Band Scan around 98 MHz
    rtlConfig := rtl.Config{
        Bandwidth: 20_000_000, // 20 MHz
        BinWidth:  125_000,    // 125 kHz
        Interval:  rtl.TimeDuration(time.Second),
    }
    // Executes: rtl_power -f 88000000:108000000:125000 -i 1s -d 0 -
*/

// Config holds the `rtl_power` options applied to every band of a cycle.
// The tuned range is derived from the band.
type Config struct {
	Bandwidth int64 `yaml:"bandwidth" json:"bandwidth"` // Span in Hz around the band center (default 2 MHz)
	BinWidth  int64 `yaml:"binWidth" json:"binWidth"`   // -f bin_size Bin size in Hz (valid range 1Hz - 2.8MHz)

	Interval TimeDuration `yaml:"interval" json:"interval"` // -i integration_interval (default: 10 seconds)

	DeviceIndex int `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index (default: 0)
	Gain        int `yaml:"gain" json:"gain"`               // -g tuner_gain (default: automatic)
	PPMError    int `yaml:"ppmError" json:"ppmError"`       // -p ppm_error (default: 0)

	Smoothing      SmoothingMethod `yaml:"smoothing" json:"smoothing"`           // -s [avg|iir] Smoothing (default: avg)
	WindowFunction WindowFunction  `yaml:"windowFunction" json:"windowFunction"` // -w window (default: rectangle)
	Crop           float32         `yaml:"crop" json:"crop"`                     // -c crop_percent (default: 0%, recommended: 20%-50%)

	BiasTee bool `yaml:"biasTee" json:"biasTee"` // -T enable bias-tee (default: off)
}

func (c *Config) Validate() error {
	if c.Bandwidth < 0 {
		return fmt.Errorf("rtl.Config: bandwidth cannot be negative: %d given", c.Bandwidth)
	}

	if c.BinWidth != 0 && (c.BinWidth < BinWidthMin || c.BinWidth > BinWidthMax) {
		return fmt.Errorf("rtl.Config: invalid bin width: %d, must be between %d and %d Hz", c.BinWidth, BinWidthMin, BinWidthMax)
	}

	if d := time.Duration(c.Interval); d < 0 || (d > 0 && d < time.Second) {
		return fmt.Errorf("rtl.Config: interval must be at least 1 second: %s given", d)
	}

	if c.WindowFunction != "" {
		if _, ok := validWindowFunctions[c.WindowFunction]; !ok {
			return fmt.Errorf("rtl.Config: invalid window function: %s", c.WindowFunction)
		}
	}

	if c.Smoothing != "" {
		if _, ok := validSmoothingMethods[c.Smoothing]; !ok {
			return fmt.Errorf("rtl.Config: invalid smoothing method: %s", c.Smoothing)
		}
	}

	if c.Crop < 0 || c.Crop > 1 {
		return fmt.Errorf("rtl.Config: crop percent must be between 0 and 1: %0.2f given", c.Crop)
	}

	return nil
}

// Args returns the command line arguments for `rtl_power` tuned to the band.
// See `man rtl_power` for more information:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_power.1.en.html
func (c *Config) Args(band sdr.Band) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := band.Validate(); err != nil {
		return nil, err
	}

	bw := c.Bandwidth
	if bw == 0 {
		bw = DefaultBandwidth
	}
	binWidth := c.BinWidth
	if binWidth == 0 {
		binWidth = DefaultBinWidth
	}

	center := int64(math.Round(band.Hz()))
	low := max(center-bw/2, 0)
	high := center + bw/2

	args := []string{
		"-f", fmt.Sprintf("%d:%d:%d", low, high, binWidth),
	}

	if c.Interval > 0 {
		args = append(args, "-i", c.Interval.String())
	}

	args = append(args, "-d", strconv.Itoa(c.DeviceIndex)) // 0 is the default device index

	if c.Gain > 0 {
		args = append(args, "-g", strconv.Itoa(c.Gain))
	}

	if c.PPMError != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPMError))
	}

	if c.Smoothing != "" {
		args = append(args, "-s", string(c.Smoothing))
	}

	if c.WindowFunction != "" {
		args = append(args, "-w", string(c.WindowFunction))
	}

	if c.Crop > 0 {
		args = append(args, "-c", strconv.FormatFloat(float64(c.Crop), 'f', 2, 32))
	}

	if c.BiasTee {
		args = append(args, "-T")
	}

	args = append(args, "-") // Always dump to stdout

	return args, nil
}

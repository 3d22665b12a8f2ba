package hackrf

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

const (
	MinNumSamples = 8192
	MaxLNAGain    = 40
	MaxVGAGain    = 62
	LNAGainStep   = 8
	VGAGainStep   = 2

	MinBinWidth = 2445
	MaxBinWidth = 5_000_000

	// MinFrequencyMHz and MaxFrequencyMHz are the tuning limits accepted by `hackrf_sweep -f`
	MinFrequencyMHz = 0
	MaxFrequencyMHz = 7250

	// DefaultBandwidth is the span swept around a band center when none is configured
	DefaultBandwidth = 20_000_000

	// SampleRate is the fixed rate `hackrf_sweep` runs the receiver at
	SampleRate = 20_000_000
)

// Usage examples from man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_sweep.1.en.html

/*
	hackrfConfig := hackrf.Config{
        Bandwidth: 20_000_000, // 20 MHz around the band center
        BinWidth:  100_000,    // 100 kHz
        LNAGain:   ptr(16),
        VGAGain:   ptr(20),
    }
    args, _ := hackrfConfig.Args(sdr.NewBand(2400, sdr.MHz), "")
    // Executes: hackrf_sweep -f 2390:2410 -w 100000 -l 16 -g 20
*/

// Config holds the gain and resolution parameters applied to every band of a
// cycle. The tuned range itself is derived from the band.
type Config struct {
	// Bandwidth is the span in Hz swept around the band center (default 20 MHz).
	// The range passed to -f is widened to whole MHz.
	Bandwidth int64 `yaml:"bandwidth" json:"bandwidth"`

	LNAGain    *int  `yaml:"lnaGain" json:"lnaGain"`       // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain    *int  `yaml:"vgaGain" json:"vgaGain"`       // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps
	BinWidth   int64 `yaml:"binWidth" json:"binWidth"`     // -w bin_width FFT bin width (frequency resolution) in Hz
	NumSamples int64 `yaml:"numSamples" json:"numSamples"` // -n num_samples Number of samples per frequency, 8192-4294967296

	EnableAmp    bool `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable

	// NumSweeps makes the utility exit on its own after N sweeps; the engine
	// then moves on to the next band
	NumSweeps int `yaml:"numSweeps" json:"numSweeps"` // -N num_sweeps Number of sweeps to perform

	// Always dump text to stdout: binary output (-B, -I) and output file (-r) are not supported
}

func (c *Config) Validate() error {
	if c.Bandwidth < 0 {
		return fmt.Errorf("hackrf.Config: bandwidth cannot be negative: %d given", c.Bandwidth)
	}

	// LNA gain validation (0-40dB in 8dB steps)
	if c.LNAGain != nil {
		if *c.LNAGain < 0 || *c.LNAGain > MaxLNAGain {
			return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", *c.LNAGain)
		}
		if *c.LNAGain%LNAGainStep != 0 {
			return errors.New("hackrf.Config: LNA gain must be a multiple of 8 dB")
		}
	}

	// VGA gain validation (0-62dB in 2dB steps)
	if c.VGAGain != nil {
		if *c.VGAGain < 0 || *c.VGAGain > MaxVGAGain {
			return fmt.Errorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", *c.VGAGain)
		}
		if *c.VGAGain%VGAGainStep != 0 {
			return errors.New("hackrf.Config: VGA gain must be a multiple of 2 dB")
		}
	}

	if c.BinWidth != 0 && (c.BinWidth < MinBinWidth || c.BinWidth > MaxBinWidth) {
		return fmt.Errorf("hackrf.Config: bin width must be between %d and %d Hz: %d given", MinBinWidth, MaxBinWidth, c.BinWidth)
	}

	if c.NumSamples > 0 && c.NumSamples < MinNumSamples {
		return fmt.Errorf("hackrf.Config: number of samples must be at least 8192: %d given", c.NumSamples)
	}

	if c.NumSweeps < 0 {
		return fmt.Errorf("hackrf.Config: number of sweeps cannot be negative: %d given", c.NumSweeps)
	}

	return nil
}

// Range returns the whole-MHz frequency range swept for the band
func (c *Config) Range(band sdr.Band) (lowMHz, highMHz int64, err error) {
	if err = band.Validate(); err != nil {
		return 0, 0, err
	}

	bw := c.Bandwidth
	if bw == 0 {
		bw = DefaultBandwidth
	}

	center := math.Round(band.Hz())
	lowMHz = int64(math.Floor((center - float64(bw)/2) / 1e6))
	highMHz = int64(math.Ceil((center + float64(bw)/2) / 1e6))

	lowMHz = max(lowMHz, MinFrequencyMHz)
	if highMHz > MaxFrequencyMHz {
		highMHz = MaxFrequencyMHz
	}
	if highMHz <= lowMHz {
		return 0, 0, fmt.Errorf("hackrf.Config: band %s is outside the tunable range %d-%d MHz", band, MinFrequencyMHz, MaxFrequencyMHz)
	}

	return lowMHz, highMHz, nil
}

// Args builds the command line arguments for `hackrf_sweep` tuned to the band.
// See `man hackrf_sweep` for more information:
// https://manpages.debian.org/bookworm/hackrf/hackrf_sweep.1.en.html
func (c *Config) Args(band sdr.Band, serialNumber string) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	low, high, err := c.Range(band)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-f", fmt.Sprintf("%d:%d", low, high),
	}

	if serialNumber != "" {
		args = append(args, "-d", serialNumber)
	}

	if c.BinWidth > 0 {
		args = append(args, "-w", strconv.FormatInt(c.BinWidth, 10))
	}

	if c.LNAGain != nil {
		args = append(args, "-l", strconv.Itoa(*c.LNAGain))
	}

	if c.VGAGain != nil {
		args = append(args, "-g", strconv.Itoa(*c.VGAGain))
	}

	if c.NumSamples >= MinNumSamples {
		args = append(args, "-n", strconv.FormatInt(c.NumSamples, 10))
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	if c.NumSweeps > 0 {
		args = append(args, "-N", strconv.Itoa(c.NumSweeps))
	}

	return args, nil
}

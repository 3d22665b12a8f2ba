package sweep

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/roman-kulish/spectrum-streamer/internal/sdr"
)

// CycleConfig is an ordered list of bands visited round-robin, each for Dwell.
// Bands may repeat.
type CycleConfig struct {
	Bands []sdr.Band    `yaml:"bands"`
	Dwell time.Duration `yaml:"dwell"`
}

type cycleConfigJSON struct {
	Bands       []sdr.Band `json:"bands"`
	DwellMillis int64      `json:"dwellMillis"`
}

func (c CycleConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(cycleConfigJSON{Bands: c.Bands, DwellMillis: c.Dwell.Milliseconds()})
}

func (c *CycleConfig) UnmarshalJSON(data []byte) error {
	var v cycleConfigJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	c.Bands = v.Bands
	c.Dwell = time.Duration(v.DwellMillis) * time.Millisecond
	return nil
}

// Validate returns *InvalidConfigError when the cycle cannot be run
func (c CycleConfig) Validate() error {
	if len(c.Bands) == 0 {
		return &InvalidConfigError{Reason: "no bands"}
	}

	if c.Dwell <= 0 {
		return &InvalidConfigError{Reason: fmt.Sprintf("dwell must be positive, %s given", c.Dwell)}
	}

	for i, band := range c.Bands {
		if err := band.Validate(); err != nil {
			return &InvalidConfigError{Reason: fmt.Sprintf("band #%d", i), Err: err}
		}
	}

	return nil
}

// Clone returns a deep copy, so the caller cannot alter a running cycle
func (c CycleConfig) Clone() CycleConfig {
	return CycleConfig{Bands: slices.Clone(c.Bands), Dwell: c.Dwell}
}

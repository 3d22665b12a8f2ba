package sdr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	Hz  Unit = "Hz"
	KHz Unit = "kHz"
	MHz Unit = "MHz"
	GHz Unit = "GHz"
)

var unitMultipliers = map[Unit]float64{
	Hz:  1,
	KHz: 1e3,
	MHz: 1e6,
	GHz: 1e9,
}

// Unit is a frequency unit accepted in band definitions
type Unit string

// ParseUnit converts a case-insensitive unit name ("mhz", "MHz", "GHZ") into a Unit
func ParseUnit(s string) (Unit, error) {
	for u := range unitMultipliers {
		if strings.EqualFold(string(u), strings.TrimSpace(s)) {
			return u, nil
		}
	}
	return "", fmt.Errorf("sdr.Unit: unknown frequency unit '%s'", s)
}

func (u Unit) String() string {
	return string(u)
}

// Multiplier returns the number of Hz in one unit, or 0 for an unknown unit
func (u Unit) Multiplier() float64 {
	return unitMultipliers[u]
}

func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}

	*u = parsed
	return nil
}

func (u *Unit) UnmarshalYAML(value *yaml.Node) error {
	return u.UnmarshalText([]byte(value.Value))
}

// Band is a single frequency the receiver tunes to for one dwell interval.
// Frequency is interpreted as the band center in Unit.
type Band struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Unit      Unit    `yaml:"unit" json:"unit"`
}

// NewBand is a shorthand for Band{Frequency: f, Unit: u}
func NewBand(f float64, u Unit) Band {
	return Band{Frequency: f, Unit: u}
}

// ParseBand parses compact band notation such as "2400MHz" or "5.8 GHz"
func ParseBand(s string) (Band, error) {
	s = strings.TrimSpace(s)

	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' && r != 'e'
	})
	if i <= 0 {
		return Band{}, fmt.Errorf("sdr.Band: invalid band notation '%s'", s)
	}

	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return Band{}, fmt.Errorf("sdr.Band: invalid frequency in '%s': %w", s, err)
	}

	u, err := ParseUnit(s[i:])
	if err != nil {
		return Band{}, err
	}

	b := Band{Frequency: f, Unit: u}
	if err = b.Validate(); err != nil {
		return Band{}, err
	}
	return b, nil
}

// Validate checks that the band has a known unit and a positive, finite frequency
func (b Band) Validate() error {
	if b.Unit.Multiplier() == 0 {
		return fmt.Errorf("sdr.Band: unknown frequency unit '%s'", b.Unit)
	}
	if math.IsNaN(b.Frequency) || math.IsInf(b.Frequency, 0) || b.Frequency <= 0 {
		return fmt.Errorf("sdr.Band: frequency must be a positive number: %v given", b.Frequency)
	}
	return nil
}

// Hz returns the band frequency in Hz
func (b Band) Hz() float64 {
	return b.Frequency * b.Unit.Multiplier()
}

// String renders the band the way it was configured, e.g. "2400MHz"
func (b Band) String() string {
	return strconv.FormatFloat(b.Frequency, 'f', -1, 64) + string(b.Unit)
}

// Humanize renders the band in the most readable SI unit, e.g. "2.4 GHz"
func (b Band) Humanize() string {
	return humanize.SIWithDigits(b.Hz(), 3, "Hz")
}

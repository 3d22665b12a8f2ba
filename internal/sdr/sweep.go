package sdr

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// Sample is a single line of sweep output: one frequency segment with
// BinCount power readings. Samples are never mutated after they are parsed.
type Sample struct {
	Timestamp      time.Time `json:"timestamp"`      // Timestamp reported by the sweep utility
	StartFrequency float64   `json:"startFrequency"` // Segment start frequency in Hz
	EndFrequency   float64   `json:"endFrequency"`   // Segment end frequency in Hz
	BinWidth       float64   `json:"binWidth"`       // Hz step/bin width
	BinCount       int       `json:"binCount"`       // Number of power readings in the segment
	Powers         []float64 `json:"powers"`         // Power levels in dB, one per bin, in frequency order
	NumSamples     int       `json:"numSamples"`     // Number of samples used for this measurement
	SampleRate     float64   `json:"sampleRate"`     // Receiver sample rate in samples per second
}

// CenterFrequency returns the center frequency of the segment.
func (s *Sample) CenterFrequency() float64 {
	return s.StartFrequency + (s.EndFrequency-s.StartFrequency)/2
}

// BinFrequency returns the center frequency of the i-th bin.
// For example, if the segment starts at 1000 MHz with a bin width of 200 kHz,
// bin 0 is centered on 1000.1 MHz.
func (s *Sample) BinFrequency(i int) float64 {
	return s.StartFrequency + float64(i)*s.BinWidth + s.BinWidth/2
}

// Peak returns the highest power reading and its bin index, or -1 for an empty sample.
func (s *Sample) Peak() (float64, int) {
	if len(s.Powers) == 0 {
		return 0, -1
	}
	i := floats.MaxIdx(s.Powers)
	return s.Powers[i], i
}

// MeanPower returns the average power across all bins.
func (s *Sample) MeanPower() float64 {
	if len(s.Powers) == 0 {
		return 0
	}
	return floats.Sum(s.Powers) / float64(len(s.Powers))
}

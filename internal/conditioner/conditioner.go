// Package conditioner turns raw detector strain into an analysis-ready signal:
// zero-phase bandpass filtering, whitening against the signal's own noise
// spectrum, and removal of the edges corrupted by whitening.
package conditioner

import (
	"fmt"
	"math"

	"github.com/roman-kulish/gw-lensing/internal/dsp"
	"github.com/roman-kulish/gw-lensing/internal/strain"
)

const (
	// MinSamples is the absolute minimum number of raw samples accepted
	MinSamples = 100

	defaultLowCutoff     = 30.0  // Hz
	defaultHighCutoff    = 400.0 // Hz
	defaultFilterOrder   = 4     // per band edge
	defaultWhitenWindow  = 4.0   // seconds
	defaultWhitenOverlap = 2.0   // seconds
	defaultCropDuration  = 4.0   // seconds

	processedSuffix = "processed"
)

// Params configures the conditioning steps.
type Params struct {
	LowCutoff     float64            // Bandpass low cutoff in Hz
	HighCutoff    float64            // Bandpass high cutoff in Hz
	FilterOrder   int                // Butterworth order of each band edge, even
	WhitenWindow  float64            // PSD segment length in seconds
	WhitenOverlap float64            // PSD segment overlap in seconds
	Window        dsp.WindowFunction // Taper applied to PSD segments
	CropDuration  float64            // Seconds removed from each end after whitening
}

// DefaultParams returns the conditioning used for LIGO open data: a 30-400 Hz
// bandpass, 4s Hann-windowed PSD segments with 2s overlap, and 4s cropped from
// each end.
func DefaultParams() Params {
	return Params{
		LowCutoff:     defaultLowCutoff,
		HighCutoff:    defaultHighCutoff,
		FilterOrder:   defaultFilterOrder,
		WhitenWindow:  defaultWhitenWindow,
		WhitenOverlap: defaultWhitenOverlap,
		Window:        dsp.WindowHann,
		CropDuration:  defaultCropDuration,
	}
}

// Validate checks the parameters against the sample rate of the signal they
// will be applied to.
func (p Params) Validate(sampleRate float64) error {
	nyquist := sampleRate / 2
	switch {
	case !(p.LowCutoff > 0):
		return p.filterError(sampleRate, "low cutoff must be positive")
	case !(p.LowCutoff < p.HighCutoff):
		return p.filterError(sampleRate, "low cutoff must be below high cutoff")
	case !(p.HighCutoff < nyquist):
		return p.filterError(sampleRate, fmt.Sprintf("high cutoff must be below the Nyquist frequency %g Hz", nyquist))
	case p.FilterOrder < 2 || p.FilterOrder%2 != 0:
		return p.filterError(sampleRate, "filter order must be a positive even number")
	}

	switch {
	case !(p.WhitenWindow > 0) || math.IsInf(p.WhitenWindow, 0):
		return &ParamsError{Field: "whitenWindow", Value: p.WhitenWindow, Reason: "must be positive"}
	case !(p.WhitenOverlap >= 0) || p.WhitenOverlap >= p.WhitenWindow:
		return &ParamsError{Field: "whitenOverlap", Value: p.WhitenOverlap, Reason: "must be within [0, whitenWindow)"}
	case !(p.CropDuration >= 0) || math.IsInf(p.CropDuration, 0):
		return &ParamsError{Field: "cropDuration", Value: p.CropDuration, Reason: "must not be negative"}
	}

	if err := p.Window.Validate(); err != nil {
		return &ParamsError{Field: "window", Value: p.Window, Reason: "unknown window function"}
	}
	return nil
}

func (p Params) filterError(sampleRate float64, reason string) *FilterDesignError {
	return &FilterDesignError{
		Low:        p.LowCutoff,
		High:       p.HighCutoff,
		SampleRate: sampleRate,
		Order:      p.FilterOrder,
		Reason:     reason,
	}
}

// segment returns the whitening segment length and overlap in samples.
func (p Params) segment(sampleRate float64) (length, overlap int) {
	length = int(math.Round(p.WhitenWindow * sampleRate))
	overlap = int(math.Round(p.WhitenOverlap * sampleRate))
	return
}

// MinSampleCount returns the number of raw samples required to whiten a
// signal with the given parameters and sample rate. A signal too short for the
// edge padding of the filter is rejected earlier with a FilterDesignError.
func (p Params) MinSampleCount(sampleRate float64) int {
	length, _ := p.segment(sampleRate)
	return max(MinSamples, length)
}

// Result is the output of Condition.
type Result struct {
	Signal   *strain.Series // Conditioned signal
	Cropped  bool           // Whether the edges were removed
	Warnings []error        // Non-fatal conditions, e.g. *CropSkippedWarning
}

// Condition bandpasses, whitens and crops raw. The input series is not
// modified. For identical inputs the output is bit-identical.
func Condition(raw *strain.Series, p Params) (*Result, error) {
	if err := raw.Validate(); err != nil {
		return nil, fmt.Errorf("raw strain: %w", err)
	}

	fs := raw.SampleRate()
	if err := p.Validate(fs); err != nil {
		return nil, err
	}

	sos, err := dsp.ButterworthBandpass(p.FilterOrder, p.LowCutoff, p.HighCutoff, fs)
	if err != nil {
		return nil, p.filterError(fs, err.Error())
	}

	// fails with dsp.ErrSignalTooShort when raw is not longer than the padding
	filtered, err := sos.FiltFilt(raw.Samples)
	if err != nil {
		return nil, p.filterError(fs, err.Error())
	}

	if need := p.MinSampleCount(fs); raw.Len() < need {
		return nil, &InsufficientDataError{Have: raw.Len(), Need: need}
	}

	length, overlap := p.segment(fs)
	psd, err := dsp.Welch(filtered, fs, length, overlap, p.Window)
	if err != nil {
		return nil, fmt.Errorf("estimating noise spectrum: %w", err)
	}

	whitened, err := dsp.Whiten(filtered, fs, psd)
	if err != nil {
		return nil, fmt.Errorf("whitening: %w", err)
	}

	out := raw.WithSamples(whitened, processedName(raw.Name))
	result := Result{Signal: out}

	crop := int(math.Round(p.CropDuration * fs))
	switch {
	case crop == 0:
		// nothing to remove

	case out.Duration() > 2*p.CropDuration && 2*crop < out.Len():
		if result.Signal, err = out.CropSamples(crop, crop); err != nil {
			return nil, fmt.Errorf("cropping: %w", err)
		}
		result.Cropped = true

	default:
		result.Warnings = append(result.Warnings, &CropSkippedWarning{Duration: out.Duration(), Crop: p.CropDuration})
	}

	return &result, nil
}

func processedName(name string) string {
	if name == "" {
		return processedSuffix
	}
	return name + " " + processedSuffix
}

package dsp

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrSignalTooShort is returned when a signal cannot be padded for zero-phase filtering.
var ErrSignalTooShort = errors.New("signal too short for filter")

// Biquad is a normalised second-order IIR section (a0 == 1).
type Biquad struct {
	B0, B1, B2 float64 // Numerator coefficients
	A1, A2     float64 // Denominator coefficients
}

// dcGain returns the section gain at zero frequency.
func (q Biquad) dcGain() float64 {
	den := 1 + q.A1 + q.A2
	if den == 0 {
		return 0
	}
	return (q.B0 + q.B1 + q.B2) / den
}

// SOS is a cascade of second-order sections.
type SOS []Biquad

// ButterworthLowpass designs an even order Butterworth low-pass filter as a
// cascade of order/2 biquads. The bilinear transform is prewarped so the -3 dB
// point lands exactly on cutoff.
func ButterworthLowpass(order int, cutoff, sampleRate float64) (SOS, error) {
	if err := validateDesign(order, cutoff, sampleRate); err != nil {
		return nil, err
	}
	return butterworth(order, cutoff, sampleRate, lowpassSection), nil
}

// ButterworthHighpass designs an even order Butterworth high-pass filter.
func ButterworthHighpass(order int, cutoff, sampleRate float64) (SOS, error) {
	if err := validateDesign(order, cutoff, sampleRate); err != nil {
		return nil, err
	}
	return butterworth(order, cutoff, sampleRate, highpassSection), nil
}

// ButterworthBandpass designs a band-pass filter as a high-pass at low followed
// by a low-pass at high, each of the given even order.
func ButterworthBandpass(order int, low, high, sampleRate float64) (SOS, error) {
	if !(low < high) {
		return nil, fmt.Errorf("low cutoff must be below high cutoff: %g >= %g", low, high)
	}

	hp, err := ButterworthHighpass(order, low, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("high-pass edge: %w", err)
	}
	lp, err := ButterworthLowpass(order, high, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("low-pass edge: %w", err)
	}
	return append(hp, lp...), nil
}

func validateDesign(order int, cutoff, sampleRate float64) error {
	if order < 2 || order%2 != 0 {
		return fmt.Errorf("filter order must be a positive even number: %d", order)
	}
	if !(sampleRate > 0) {
		return fmt.Errorf("sample rate must be positive: %g", sampleRate)
	}
	if !(cutoff > 0) || cutoff >= sampleRate/2 {
		return fmt.Errorf("cutoff must be within (0, %g) Hz: %g", sampleRate/2, cutoff)
	}
	return nil
}

func butterworth(order int, cutoff, sampleRate float64, section func(w0, q float64) Biquad) SOS {
	w0 := 2 * math.Pi * cutoff / sampleRate

	sos := make(SOS, order/2)
	for k := range sos {
		// pole pair k of the analog prototype
		theta := math.Pi * float64(2*k+1) / float64(2*order)
		sos[k] = section(w0, 1/(2*math.Cos(theta)))
	}
	return sos
}

func lowpassSection(w0, q float64) Biquad {
	cos, alpha := math.Cos(w0), math.Sin(w0)/(2*q)
	a0 := 1 + alpha
	return Biquad{
		B0: (1 - cos) / 2 / a0,
		B1: (1 - cos) / a0,
		B2: (1 - cos) / 2 / a0,
		A1: -2 * cos / a0,
		A2: (1 - alpha) / a0,
	}
}

func highpassSection(w0, q float64) Biquad {
	cos, alpha := math.Cos(w0), math.Sin(w0)/(2*q)
	a0 := 1 + alpha
	return Biquad{
		B0: (1 + cos) / 2 / a0,
		B1: -(1 + cos) / a0,
		B2: (1 + cos) / 2 / a0,
		A1: -2 * cos / a0,
		A2: (1 - alpha) / a0,
	}
}

// PadLength returns the number of samples reflected at each end by FiltFilt.
func (s SOS) PadLength() int {
	return 3 * (2*len(s) + 1)
}

// Response returns the magnitude response of the cascade at frequency f.
func (s SOS) Response(f, sampleRate float64) float64 {
	w := 2 * math.Pi * f / sampleRate
	z1 := complex(math.Cos(w), -math.Sin(w)) // z^-1
	z2 := z1 * z1

	h := complex(1, 0)
	for _, q := range s {
		num := complex(q.B0, 0) + complex(q.B1, 0)*z1 + complex(q.B2, 0)*z2
		den := 1 + complex(q.A1, 0)*z1 + complex(q.A2, 0)*z2
		h *= num / den
	}
	return math.Hypot(real(h), imag(h))
}

// initialState returns the per-section transposed direct-form II state that
// corresponds to the steady-state response to a unit step.
func (s SOS) initialState() [][2]float64 {
	zi := make([][2]float64, len(s))
	scale := 1.0
	for i, q := range s {
		g := q.dcGain()
		zi[i] = [2]float64{scale * (g - q.B0), scale * (q.B2 - q.A2*g)}
		scale *= g
	}
	return zi
}

// filter applies the cascade causally in place, starting from the given state
// scaled by x0. A nil state starts from rest.
func (s SOS) filter(x []float64, zi [][2]float64, x0 float64) {
	for i, q := range s {
		var z1, z2 float64
		if zi != nil {
			z1, z2 = zi[i][0]*x0, zi[i][1]*x0
		}
		for n, v := range x {
			y := q.B0*v + z1
			z1 = q.B1*v - q.A1*y + z2
			z2 = q.B2*v - q.A2*y
			x[n] = y
		}
	}
}

// Filter applies the cascade causally and returns the filtered copy of x.
func (s SOS) Filter(x []float64) []float64 {
	y := slices.Clone(x)
	s.filter(y, nil, 0)
	return y
}

// FiltFilt applies the cascade forward and backward so the result has zero
// phase shift. Both ends are extended by odd reflection and each pass starts
// from the steady-state response to the edge value.
func (s SOS) FiltFilt(x []float64) ([]float64, error) {
	n := len(x)
	pad := s.PadLength()
	if n <= pad {
		return nil, fmt.Errorf("%w: %d samples, need more than %d", ErrSignalTooShort, n, pad)
	}

	ext := make([]float64, 0, n+2*pad)
	for i := pad; i > 0; i-- {
		ext = append(ext, 2*x[0]-x[i])
	}
	ext = append(ext, x...)
	for i := n - 2; i >= n-1-pad; i-- {
		ext = append(ext, 2*x[n-1]-x[i])
	}

	zi := s.initialState()

	s.filter(ext, zi, ext[0])
	slices.Reverse(ext)
	s.filter(ext, zi, ext[0])
	slices.Reverse(ext)

	return slices.Clone(ext[pad : pad+n]), nil
}

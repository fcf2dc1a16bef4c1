package dsp

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// ErrEmptySpectrum is returned when a whitening spectrum has no bins.
var ErrEmptySpectrum = errors.New("empty spectrum")

// Spectrum is a one-sided power spectral density estimate.
type Spectrum struct {
	Frequencies []float64 // Bin frequencies in Hz, ascending from 0
	Density     []float64 // Power spectral density in unit²/Hz
	Segments    int       // Number of averaged segments
}

// ASD returns the amplitude spectral density, the square root of the PSD.
func (s *Spectrum) ASD() []float64 {
	asd := make([]float64, len(s.Density))
	for i, v := range s.Density {
		asd[i] = math.Sqrt(v)
	}
	return asd
}

// At returns the PSD linearly interpolated at frequency f.
func (s *Spectrum) At(f float64) float64 {
	return Interp(f, s.Frequencies, s.Density)
}

// Welch estimates the one-sided power spectral density of x by averaging the
// periodograms of overlapping, mean-removed, tapered segments of segmentLen
// samples. Consecutive segments share overlap samples.
func Welch(x []float64, sampleRate float64, segmentLen, overlap int, w WindowFunction) (*Spectrum, error) {
	switch {
	case !(sampleRate > 0):
		return nil, fmt.Errorf("welch: sample rate must be positive: %g", sampleRate)
	case segmentLen < 2:
		return nil, fmt.Errorf("welch: segment length must be at least 2: %d", segmentLen)
	case overlap < 0 || overlap >= segmentLen:
		return nil, fmt.Errorf("welch: overlap must be within [0, %d): %d", segmentLen, overlap)
	case len(x) < segmentLen:
		return nil, fmt.Errorf("welch: %w: %d samples, segment is %d", ErrSignalTooShort, len(x), segmentLen)
	}

	taper, err := w.Coefficients(segmentLen)
	if err != nil {
		return nil, fmt.Errorf("welch: %w", err)
	}
	scale := 1 / (sampleRate * floats.Dot(taper, taper))

	fft := fourier.NewFFT(segmentLen)
	bins := segmentLen/2 + 1
	density := make([]float64, bins)
	segment := make([]float64, segmentLen)
	coeffs := make([]complex128, bins)

	step := segmentLen - overlap
	var segments int
	for start := 0; start+segmentLen <= len(x); start += step {
		copy(segment, x[start:start+segmentLen])

		mean := floats.Sum(segment) / float64(segmentLen)
		for i := range segment {
			segment[i] = (segment[i] - mean) * taper[i]
		}

		coeffs = fft.Coefficients(coeffs, segment)
		for k, c := range coeffs {
			density[k] += real(c)*real(c) + imag(c)*imag(c)
		}
		segments++
	}

	for k := range density {
		density[k] *= scale / float64(segments)
		// fold negative frequencies, except DC and an even-length Nyquist bin
		if k > 0 && !(segmentLen%2 == 0 && k == bins-1) {
			density[k] *= 2
		}
	}

	return &Spectrum{
		Frequencies: frequencies(segmentLen, sampleRate),
		Density:     density,
		Segments:    segments,
	}, nil
}

// Whiten divides the spectrum of x by the amplitude spectral density psd,
// interpolated onto the frequency grid of x. The result is normalised so that
// stationary white noise described by psd comes out with unit variance. Bins
// where the PSD is not a positive finite number are zeroed, as are the DC and
// Nyquist bins.
//
// Before the transform the mean is removed and half a PSD segment at each end
// is tapered with a Hann ramp, so those edges do not carry meaningful data.
func Whiten(x []float64, sampleRate float64, psd *Spectrum) ([]float64, error) {
	if psd == nil || len(psd.Frequencies) == 0 {
		return nil, ErrEmptySpectrum
	}
	if len(x) < 2 {
		return nil, fmt.Errorf("whiten: %w: %d samples", ErrSignalTooShort, len(x))
	}

	n := len(x)
	in := taperEdges(x, min(len(psd.Frequencies)-1, n/2))

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, in)
	freqs := frequencies(n, sampleRate)

	for k := range coeffs {
		if k == 0 || (n%2 == 0 && k == len(coeffs)-1) {
			coeffs[k] = 0
			continue
		}

		// a one-sided density S of white noise with variance v is 2v/fs
		v := psd.At(freqs[k]) * sampleRate / 2
		if !(v > 0) || math.IsInf(v, 0) {
			coeffs[k] = 0
			continue
		}
		coeffs[k] /= complex(math.Sqrt(v), 0)
	}

	out := fft.Sequence(nil, coeffs)
	floats.Scale(1/float64(n), out)
	return out, nil
}

// taperEdges returns a mean-removed copy of x with the first and last width
// samples multiplied by a rising and falling Hann ramp.
func taperEdges(x []float64, width int) []float64 {
	out := slices.Clone(x)
	floats.AddConst(-floats.Sum(x)/float64(len(x)), out)

	for i := 0; i < width; i++ {
		w := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(width)))
		out[i] *= w
		out[len(out)-1-i] *= w
	}
	return out
}

// Interp returns the piecewise linear interpolation of (xs, ys) at x. Values
// outside of xs are clamped to the first and last ys, like numpy.interp.
// xs must be sorted in ascending order.
func Interp(x float64, xs, ys []float64) float64 {
	n := len(xs)
	switch {
	case n == 0:
		return math.NaN()
	case x <= xs[0]:
		return ys[0]
	case x >= xs[n-1]:
		return ys[n-1]
	}

	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		return ys[i]
	}
	x0, x1 := xs[i-1], xs[i]
	return ys[i-1] + (ys[i]-ys[i-1])*(x-x0)/(x1-x0)
}

func frequencies(n int, sampleRate float64) []float64 {
	freqs := make([]float64, n/2+1)
	for k := range freqs {
		freqs[k] = float64(k) * sampleRate / float64(n)
	}
	return freqs
}

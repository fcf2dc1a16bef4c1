// Package dsp provides the numeric building blocks used to condition strain
// data: taper windows, Butterworth filter design, zero-phase second-order
// section filtering, Welch power spectral density estimation and spectral
// whitening.
//
// The FFT and window implementations come from gonum. Everything in this
// package operates on plain []float64 and never modifies its inputs.
package dsp

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/dsp/window"
)

const (
	// WindowHann is the default window function
	WindowHann           WindowFunction = "hann"
	WindowHamming        WindowFunction = "hamming"
	WindowBlackman       WindowFunction = "blackman"
	WindowBlackmanHarris WindowFunction = "blackman-harris"
	WindowNuttall        WindowFunction = "nuttall"
	WindowFlatTop        WindowFunction = "flat-top"
	WindowRectangle      WindowFunction = "rectangle"
)

var windowFunctions = map[WindowFunction]func([]float64) []float64{
	WindowHann:           window.Hann,
	WindowHamming:        window.Hamming,
	WindowBlackman:       window.Blackman,
	WindowBlackmanHarris: window.BlackmanHarris,
	WindowNuttall:        window.Nuttall,
	WindowFlatTop:        window.FlatTop,
	WindowRectangle:      window.Rectangular,
}

// WindowFunction names a taper applied to each segment before a transform.
type WindowFunction string

func (w WindowFunction) String() string {
	return string(w)
}

// Validate returns an error if the window function is unknown.
func (w WindowFunction) Validate() error {
	if _, ok := windowFunctions[w]; !ok {
		return fmt.Errorf("invalid window function: %s", w)
	}
	return nil
}

// Coefficients returns the n window coefficients.
func (w WindowFunction) Coefficients(n int) ([]float64, error) {
	fn, ok := windowFunctions[w]
	if !ok {
		return nil, fmt.Errorf("invalid window function: %s", w)
	}

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	return fn(ones), nil
}

// WindowFunctions returns the names of all supported window functions, sorted.
func WindowFunctions() []WindowFunction {
	names := make([]WindowFunction, 0, len(windowFunctions))
	for name := range windowFunctions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

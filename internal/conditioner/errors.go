package conditioner

import "fmt"

// InsufficientDataError is returned when the raw strain is shorter than the
// minimum sample count required for filtering and whitening.
type InsufficientDataError struct {
	Have int // Number of samples provided
	Need int // Minimum number of samples required
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %d samples given, at least %d required", e.Have, e.Need)
}

// FilterDesignError is returned when the requested passband is incompatible
// with the sample rate, or the signal is too short for the filter order.
type FilterDesignError struct {
	Low        float64 // Low cutoff in Hz
	High       float64 // High cutoff in Hz
	SampleRate float64 // Sample rate in Hz
	Order      int     // Filter order per band edge
	Reason     string
}

func (e *FilterDesignError) Error() string {
	return fmt.Sprintf("filter design: band [%g, %g] Hz, order %d at %g Hz: %s", e.Low, e.High, e.Order, e.SampleRate, e.Reason)
}

// ParamsError is returned for whitening and cropping parameters outside their
// valid range.
type ParamsError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("conditioning parameter %s=%v: %s", e.Field, e.Value, e.Reason)
}

// CropSkippedWarning is a non-fatal condition reported when the signal is too
// short to remove the crop duration from both ends.
type CropSkippedWarning struct {
	Duration float64 // Signal duration in seconds
	Crop     float64 // Requested crop duration per end in seconds
}

func (w *CropSkippedWarning) Error() string {
	return fmt.Sprintf("not enough data for edge cropping: %gs of data, %gs requested from each end", w.Duration, w.Crop)
}

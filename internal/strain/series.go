package strain

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// DefaultUnit is the physical unit of detector strain, which is dimensionless.
const DefaultUnit = "strain"

var (
	// ErrEmpty is returned when a series carries no samples
	ErrEmpty = errors.New("strain series has no samples")

	// ErrInvalidSampleInterval is returned when the sample interval is not a positive finite number
	ErrInvalidSampleInterval = errors.New("strain series sample interval must be positive")
)

// WithName sets the series name.
func WithName(name string) func(*Series) {
	return func(s *Series) {
		s.Name = name
	}
}

// WithChannel sets the detector channel label, e.g. "H1:GWOSC-4KHZ_R1_STRAIN".
func WithChannel(channel string) func(*Series) {
	return func(s *Series) {
		s.Channel = channel
	}
}

// WithUnit overrides the default unit.
func WithUnit(unit string) func(*Series) {
	return func(s *Series) {
		s.Unit = unit
	}
}

// Series represents an evenly sampled strain time series. A Series is treated as
// immutable once produced: transforms return a new Series and never modify the
// samples of their input.
type Series struct {
	T0      float64   // GPS time of the first sample in seconds
	Dt      float64   // Sample interval in seconds
	Samples []float64 // Strain amplitude samples
	Unit    string    // Physical unit
	Name    string    // Human-readable name, used for labelling
	Channel string    // Detector channel, used for provenance
}

// New creates a new Series from a copy of samples.
func New(samples []float64, t0, dt float64, options ...func(*Series)) (*Series, error) {
	s := Series{
		T0:      t0,
		Dt:      dt,
		Samples: slices.Clone(samples),
		Unit:    DefaultUnit,
	}

	for _, option := range options {
		option(&s)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the uniform sampling invariants.
func (s *Series) Validate() error {
	if s == nil || len(s.Samples) == 0 {
		return ErrEmpty
	}
	if !(s.Dt > 0) || math.IsInf(s.Dt, 0) {
		return fmt.Errorf("%w: %g", ErrInvalidSampleInterval, s.Dt)
	}
	return nil
}

// Len returns the number of samples.
func (s *Series) Len() int {
	return len(s.Samples)
}

// SampleRate returns the sample rate in Hz.
func (s *Series) SampleRate() float64 {
	return 1 / s.Dt
}

// Nyquist returns the Nyquist frequency in Hz.
func (s *Series) Nyquist() float64 {
	return s.SampleRate() / 2
}

// Duration returns the total span covered by the samples, len * dt.
func (s *Series) Duration() float64 {
	return float64(len(s.Samples)) * s.Dt
}

// End returns the GPS time just past the last sample.
func (s *Series) End() float64 {
	return s.T0 + s.Duration()
}

// TimeAt returns the GPS time of the i-th sample.
func (s *Series) TimeAt(i int) float64 {
	return s.T0 + float64(i)*s.Dt
}

// Times returns the GPS time of every sample.
func (s *Series) Times() []float64 {
	times := make([]float64, len(s.Samples))
	for i := range times {
		times[i] = s.TimeAt(i)
	}
	return times
}

// Peak returns the largest absolute sample value.
func (s *Series) Peak() float64 {
	var peak float64
	for _, v := range s.Samples {
		peak = max(peak, math.Abs(v))
	}
	return peak
}

// IsFinite reports whether every sample is a finite number.
func (s *Series) IsFinite() bool {
	for _, v := range s.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the series.
func (s *Series) Clone() *Series {
	c := *s
	c.Samples = slices.Clone(s.Samples)
	return &c
}

// WithSamples returns a new series sharing the time base and metadata of s
// but carrying the given samples and name. The samples slice is not copied,
// callers hand over ownership.
func (s *Series) WithSamples(samples []float64, name string) *Series {
	c := *s
	c.Samples = samples
	c.Name = name
	return &c
}

// CropSamples returns a new series without head samples at the start and tail
// samples at the end.
func (s *Series) CropSamples(head, tail int) (*Series, error) {
	if head < 0 || tail < 0 {
		return nil, fmt.Errorf("crop: negative sample count: head=%d, tail=%d", head, tail)
	}
	if head+tail >= len(s.Samples) {
		return nil, fmt.Errorf("crop: removing %d samples from a series of %d", head+tail, len(s.Samples))
	}

	c := *s
	c.Samples = slices.Clone(s.Samples[head : len(s.Samples)-tail])
	c.T0 = s.TimeAt(head)
	return &c, nil
}

// Crop returns a new series restricted to the GPS interval [start, end).
// The interval is clamped to the span of the series.
func (s *Series) Crop(start, end float64) (*Series, error) {
	if end <= start {
		return nil, fmt.Errorf("crop: invalid interval: start=%f, end=%f", start, end)
	}
	if start >= s.End() || end <= s.T0 {
		return nil, fmt.Errorf("crop: interval [%f, %f) outside of series span [%f, %f)", start, end, s.T0, s.End())
	}

	head := max(0, int(math.Round((start-s.T0)/s.Dt)))
	stop := min(len(s.Samples), int(math.Round((end-s.T0)/s.Dt)))

	return s.CropSamples(head, len(s.Samples)-stop)
}

// String returns a short description of the series.
func (s *Series) String() string {
	return fmt.Sprintf("%s: %d samples @ %g Hz, GPS [%.3f, %.3f)", s.label(), len(s.Samples), s.SampleRate(), s.T0, s.End())
}

func (s *Series) label() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Channel != "":
		return s.Channel
	default:
		return "series"
	}
}

// Package lensing applies a simplified strong-lensing transform to a
// conditioned strain signal. The lens produces two images: a magnified primary
// and a weaker secondary that arrives after a time delay set by the Einstein
// radius.
//
// The delay uses a fixed linear scaling of about ten days per arcsecond, which
// stands in for the angular diameter distances of a lens at z=0.5 and a source
// at z=2. It is a modelling assumption, not a general relativistic calculation.
package lensing

import (
	"fmt"
	"math"

	"github.com/roman-kulish/gw-lensing/internal/lens"
	"github.com/roman-kulish/gw-lensing/internal/strain"
)

// DelayPerArcsecond is the time delay in seconds per arcsecond of Einstein radius.
const DelayPerArcsecond = 10 * 86400.0

// InvalidLensParameterError is returned when the lens parameters are rejected
// before any numeric work is done.
type InvalidLensParameterError = lens.InvalidParameterError

const (
	// ShiftCircular rotates the secondary image, samples delayed past the end
	// of the buffer wrap around to its start. This is the default.
	ShiftCircular ShiftPolicy = "circular"

	// ShiftTruncate drops samples delayed past the end of the buffer and
	// leaves the head of the secondary image silent.
	ShiftTruncate ShiftPolicy = "truncate"
)

// ShiftPolicy selects how the delayed secondary image is fitted into the
// fixed-length output.
type ShiftPolicy string

func (p ShiftPolicy) String() string {
	return string(p)
}

// ParseShiftPolicy parses a policy name. The empty string selects ShiftCircular.
func ParseShiftPolicy(s string) (ShiftPolicy, error) {
	switch p := ShiftPolicy(s); p {
	case "":
		return ShiftCircular, nil
	case ShiftCircular, ShiftTruncate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown shift policy %q, expected %q or %q", s, ShiftCircular, ShiftTruncate)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ShiftPolicy) UnmarshalText(text []byte) error {
	policy, err := ParseShiftPolicy(string(text))
	if err != nil {
		return err
	}
	*p = policy
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p ShiftPolicy) MarshalText() ([]byte, error) {
	return []byte(p), nil
}

type settings struct {
	policy ShiftPolicy
}

// Option configures Apply.
type Option func(*settings)

// WithShiftPolicy selects the secondary image shift policy.
func WithShiftPolicy(policy ShiftPolicy) Option {
	return func(s *settings) {
		s.policy = policy
	}
}

// TimeDelay returns the delay in seconds between the primary and the
// secondary image for the Einstein radius in arcseconds.
func TimeDelay(einsteinRadius float64) float64 {
	return einsteinRadius * DelayPerArcsecond
}

// Magnification returns the total magnification 1 + (θE/2)², never below 1.
func Magnification(einsteinRadius float64) float64 {
	return 1 + (einsteinRadius/2)*(einsteinRadius/2)
}

// ImageScales returns the amplitude scales of the primary, sqrt(μ), and the
// secondary, sqrt(μ-1), image.
func ImageScales(magnification float64) (primary, secondary float64) {
	return math.Sqrt(magnification), math.Sqrt(max(0, magnification-1))
}

// Lensed is a lensed strain signal along with the quantities used to build it.
type Lensed struct {
	*strain.Series

	DelaySeconds   float64     // Secondary image delay
	ShiftSamples   int         // Samples the secondary image was shifted by, in [0, Len()]
	Magnification  float64     // Total magnification
	PrimaryScale   float64     // Amplitude scale of the primary image
	SecondaryScale float64     // Amplitude scale of the secondary image
	Policy         ShiftPolicy // How the secondary image was shifted
}

// Apply returns the superposition of the primary and the delayed secondary
// image of s under the lens p. The output has the time base, unit and length
// of s; neither s nor p is modified.
func Apply(s *strain.Series, p lens.Params, options ...Option) (*Lensed, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("conditioned strain: %w", err)
	}

	cfg := settings{policy: ShiftCircular}
	for _, option := range options {
		option(&cfg)
	}
	policy, err := ParseShiftPolicy(string(cfg.policy))
	if err != nil {
		return nil, err
	}
	cfg.policy = policy

	delay := TimeDelay(p.EinsteinRadius)
	mu := Magnification(p.EinsteinRadius)
	lag := delay * s.SampleRate()
	if math.IsInf(lag, 0) || math.IsNaN(lag) || math.IsInf(mu, 0) {
		return nil, &InvalidLensParameterError{
			Field:  "einsteinRadius",
			Value:  p.EinsteinRadius,
			Reason: "delay or magnification is not representable",
		}
	}

	primary, secondary := ImageScales(mu)
	shift := effectiveShift(lag, s.Len(), cfg.policy)

	delayed := Shift(s.Samples, shift, cfg.policy)
	out := make([]float64, s.Len())
	for i, v := range s.Samples {
		out[i] = primary*v + secondary*delayed[i]
	}

	return &Lensed{
		Series:         s.WithSamples(out, lensedName(s.Name)),
		DelaySeconds:   delay,
		ShiftSamples:   shift,
		Magnification:  mu,
		PrimaryScale:   primary,
		SecondaryScale: secondary,
		Policy:         cfg.policy,
	}, nil
}

// effectiveShift rounds a non-negative lag in samples to the shift applied to
// a series of size samples: reduced modulo size for ShiftCircular and capped
// at size for ShiftTruncate. Both are done in float64 so lags beyond the int
// range convert safely.
func effectiveShift(lag float64, size int, policy ShiftPolicy) int {
	n := float64(size)
	if policy == ShiftTruncate {
		return int(min(math.Round(lag), n))
	}
	return int(math.Mod(math.Round(lag), n))
}

// Shift returns a copy of x delayed by n samples. With ShiftCircular the tail
// wraps to the head, with ShiftTruncate it is dropped and the head is zero.
// A negative n advances the samples instead.
func Shift(x []float64, n int, policy ShiftPolicy) []float64 {
	size := len(x)
	out := make([]float64, size)
	if size == 0 {
		return out
	}

	if policy == ShiftTruncate {
		if n >= size || n <= -size {
			return out
		}
		if n >= 0 {
			copy(out[n:], x[:size-n])
		} else {
			copy(out, x[-n:])
		}
		return out
	}

	k := n % size
	if k < 0 {
		k += size
	}
	copy(out[k:], x[:size-k])
	copy(out[:k], x[size-k:])
	return out
}

func lensedName(name string) string {
	if name == "" {
		return "lensed"
	}
	return "lensed " + name
}

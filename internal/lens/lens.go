// Package lens describes the lensing galaxy: a singular isothermal ellipsoid
// parameterised by its Einstein radius, centre, ellipticity and orientation.
package lens

import (
	"fmt"
	"math"
)

const (
	// Redshift is the lens redshift assumed by the model.
	Redshift = 0.5

	// SourceRedshift is the gravitational-wave source redshift assumed by the model.
	SourceRedshift = 2.0

	defaultEinsteinRadius = 1.6  // arcsec
	defaultEllipticity    = 0.2
	defaultAngle          = 45.0 // degrees
)

// InvalidParameterError is returned when a lens parameter is outside its
// valid range.
type InvalidParameterError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid lens parameter %s=%g: %s", e.Field, e.Value, e.Reason)
}

// Params holds the lens parameters.
type Params struct {
	EinsteinRadius float64    `yaml:"einsteinRadius" toml:"einsteinRadius" json:"einsteinRadius"` // Angular Einstein radius (arcsec)
	Center         [2]float64 `yaml:"center" toml:"center" json:"center"`                         // Lens centre (x, y) in arcsec
	Ellipticity    float64    `yaml:"ellipticity" toml:"ellipticity" json:"ellipticity"`          // 0 is circular, must stay below 1
	Angle          float64    `yaml:"angle" toml:"angle" json:"angle"`                            // Position angle (degrees), taken mod 360
}

// DefaultParams returns a moderately elliptical galaxy-scale lens.
func DefaultParams() Params {
	return Params{
		EinsteinRadius: defaultEinsteinRadius,
		Ellipticity:    defaultEllipticity,
		Angle:          defaultAngle,
	}
}

// Validate checks the parameters. Any finite angle is accepted.
func (p Params) Validate() error {
	switch {
	case !(p.EinsteinRadius > 0) || math.IsInf(p.EinsteinRadius, 0):
		return &InvalidParameterError{Field: "einsteinRadius", Value: p.EinsteinRadius, Reason: "must be a positive number"}
	case !(p.Ellipticity >= 0 && p.Ellipticity < 1):
		return &InvalidParameterError{Field: "ellipticity", Value: p.Ellipticity, Reason: "must be within [0, 1)"}
	case !isFinite(p.Angle):
		return &InvalidParameterError{Field: "angle", Value: p.Angle, Reason: "must be finite"}
	}

	for i, c := range p.Center {
		if !isFinite(c) {
			return &InvalidParameterError{Field: fmt.Sprintf("center[%d]", i), Value: c, Reason: "must be finite"}
		}
	}
	return nil
}

// NormalizedAngle returns the position angle in [0, 360).
func (p Params) NormalizedAngle() float64 {
	a := math.Mod(p.Angle, 360)
	if a < 0 {
		a += 360
	}
	return a
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Model is the lens built from validated parameters.
type Model struct {
	Params

	// EllipticityComponents are (e cos 2φ, e sin 2φ) for position angle φ.
	EllipticityComponents [2]float64

	// AxisRatio is the minor to major axis ratio (1-e)/(1+e).
	AxisRatio float64

	Redshift       float64
	SourceRedshift float64
}

// NewModel validates p and derives the isothermal mass profile description.
// The returned model holds its own copy of the parameters.
func NewModel(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.Angle = p.NormalizedAngle()
	phi := 2 * p.Angle * math.Pi / 180

	return &Model{
		Params:                p,
		EllipticityComponents: [2]float64{p.Ellipticity * math.Cos(phi), p.Ellipticity * math.Sin(phi)},
		AxisRatio:             (1 - p.Ellipticity) / (1 + p.Ellipticity),
		Redshift:              Redshift,
		SourceRedshift:        SourceRedshift,
	}, nil
}

// String returns a one-line summary of the model.
func (m *Model) String() string {
	return fmt.Sprintf("isothermal lens: θE=%g\" centre=(%g, %g) e=%g φ=%g° q=%.3f z=%g",
		m.EinsteinRadius, m.Center[0], m.Center[1], m.Ellipticity, m.Angle, m.AxisRatio, m.Redshift)
}

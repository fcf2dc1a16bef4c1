package plot

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a predefined colour scheme the trace palette is drawn from:
//   - ClassicTheme: blue to red
//   - GrayscaleTheme: black to light grey
//   - JungleTheme: dark green to yellow
//   - ThermalTheme: black to red to yellow
//   - MarineTheme: deep blue to cyan
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	JungleTheme    ColorTheme = "jungle"
	ThermalTheme   ColorTheme = "thermal"
	MarineTheme    ColorTheme = "marine"

	// DefaultTheme is used when no theme is configured
	DefaultTheme = ClassicTheme

	// palette positions are kept away from the theme ends, which fade into
	// the background
	paletteLow  = 0.2
	paletteHigh = 0.85
)

var themes = map[ColorTheme]func(float64) colorful.Color{
	ClassicTheme: func(v float64) colorful.Color {
		return colorful.Hsv(240-v*240, 0.9+v*0.1, 0.35+math.Pow(v, 0.7)*0.6)
	},
	GrayscaleTheme: func(v float64) colorful.Color {
		g := math.Pow(v, 0.7) * 0.8
		return colorful.Color{R: g, G: g, B: g}
	},
	JungleTheme: func(v float64) colorful.Color {
		return colorful.Hsv(120-v*60, 1, 0.3+math.Pow(v, 0.6)*0.6)
	},
	ThermalTheme: func(v float64) colorful.Color {
		switch {
		case v < 0.5:
			return colorful.Color{R: 0.2 + v*1.6}
		default:
			return colorful.Color{R: 1, G: (v - 0.5) * 1.6}
		}
	},
	MarineTheme: func(v float64) colorful.Color {
		return colorful.Hsv(240-v*60, 1-v*0.6, 0.35+math.Pow(v, 0.6)*0.55)
	},
}

// Validate checks the theme is known.
func (t ColorTheme) Validate() error {
	if _, ok := themes[t]; !ok {
		return fmt.Errorf("unknown color theme %q", t)
	}
	return nil
}

// Palette returns n distinct colours spread evenly across the theme.
func (t ColorTheme) Palette(n int) []color.Color {
	theme, ok := themes[t]
	if !ok {
		theme = themes[DefaultTheme]
	}

	palette := make([]color.Color, n)
	for i := range palette {
		v := paletteLow
		if n > 1 {
			v += (paletteHigh - paletteLow) * float64(i) / float64(n-1)
		}
		palette[i] = theme(v).Clamped()
	}
	return palette
}

// blend mixes c into the background by t in Lab space, used for grid lines.
func blend(background, c color.Color, t float64) color.Color {
	bg, _ := colorful.MakeColor(background)
	fg, _ := colorful.MakeColor(c)
	return bg.BlendLab(fg, t).Clamped()
}

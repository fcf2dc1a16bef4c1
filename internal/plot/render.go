// Package plot renders comparison figures of strain signals: a time domain
// panel with the signals overlaid and a log-log amplitude spectral density
// panel below it.
package plot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/roman-kulish/gw-lensing/internal/dsp"
	"github.com/roman-kulish/gw-lensing/internal/strain"
)

const (
	defaultWidth          = 1400
	defaultHeight         = 1000
	defaultFontSize       = 16.0
	defaultLineWidth      = 1.5
	defaultFrequencyMin   = 10.0   // Hz
	defaultFrequencyMax   = 1000.0 // Hz
	defaultSegmentSeconds = 4.0

	// Default border sizes in pixels
	defaultTopBorder    = 80
	defaultLeftBorder   = 110
	defaultBottomBorder = 110
	defaultRightBorder  = 40
	defaultPanelGap     = 110

	minPanelSize = 50
)

var (
	// ErrNoTraces is returned when a figure has nothing to draw.
	ErrNoTraces = errors.New("figure has no traces")

	backgroundColor color.Color = color.White
	foregroundColor color.Color = color.Black

	// ASD limits used when no spectrum could be estimated
	fallbackASD = [2]float64{1e-24, 1e-19}
)

// BorderConfig defines the white space around the panels.
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for value scales
	Bottom int // Space for the frequency scale and notes
	Right  int // Right padding
	Gap    int // Space between panels for the time scale
}

// RenderConfig holds the figure layout and style.
type RenderConfig struct {
	Width     int        // Image width in pixels
	Height    int        // Image height in pixels
	FontSize  float64    // Font size in points
	LineWidth float64    // Trace width in pixels
	Theme     ColorTheme // Palette the trace colours are taken from

	FrequencyMin   float64 // Lower limit of the ASD panel in Hz
	FrequencyMax   float64 // Upper limit of the ASD panel in Hz
	SegmentSeconds float64 // Welch segment length of the ASD estimate

	BorderConfig BorderConfig
}

// Trace is a labelled series to draw.
type Trace struct {
	Label  string
	Series *strain.Series
}

// Figure is the content of a comparison plot.
type Figure struct {
	Title  string
	Traces []Trace
	Notes  []string // Lines printed below the panels
}

// Renderer draws figures.
type Renderer struct {
	config RenderConfig
}

// NewRenderer creates a new renderer, zero config values select the defaults.
func NewRenderer(config RenderConfig) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = defaultFontSize
	}
	if config.LineWidth == 0 {
		config.LineWidth = defaultLineWidth
	}
	if config.Theme == "" {
		config.Theme = DefaultTheme
	}
	if config.FrequencyMin == 0 {
		config.FrequencyMin = defaultFrequencyMin
	}
	if config.FrequencyMax == 0 {
		config.FrequencyMax = defaultFrequencyMax
	}
	if config.SegmentSeconds == 0 {
		config.SegmentSeconds = defaultSegmentSeconds
	}
	if config.BorderConfig == (BorderConfig{}) {
		config.BorderConfig = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
			Gap:    defaultPanelGap,
		}
	}

	if err := config.Theme.Validate(); err != nil {
		return nil, err
	}
	if !(config.FrequencyMin > 0 && config.FrequencyMin < config.FrequencyMax) {
		return nil, fmt.Errorf("invalid frequency range [%g, %g] Hz", config.FrequencyMin, config.FrequencyMax)
	}
	if config.SegmentSeconds < 0 {
		return nil, fmt.Errorf("segment length must be positive: %g", config.SegmentSeconds)
	}

	b := config.BorderConfig
	if config.Width-b.Left-b.Right < minPanelSize || (config.Height-b.Top-b.Bottom-b.Gap)/2 < minPanelSize {
		return nil, fmt.Errorf("image of %dx%d pixels is too small for the borders", config.Width, config.Height)
	}

	return &Renderer{config: config}, nil
}

// Render draws the figure.
func (r *Renderer) Render(fig Figure) (*image.RGBA, error) {
	if len(fig.Traces) == 0 {
		return nil, ErrNoTraces
	}
	for _, t := range fig.Traces {
		if err := t.Series.Validate(); err != nil {
			return nil, fmt.Errorf("trace %q: %w", t.Label, err)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	fillRect(img, img.Bounds(), backgroundColor)

	reference := fig.Traces[0].Series.T0
	top, bottom := r.panelAreas()
	timePanel := r.timePanel(top, fig.Traces, reference)
	asdPanel, spectra := r.asdPanel(bottom, fig.Traces)

	ann, err := newAnnotator(img, r.config.FontSize, foregroundColor)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	grid := blend(backgroundColor, foregroundColor, 0.12)
	palette := r.config.Theme.Palette(len(fig.Traces))

	if err = ann.drawTitle(img, fig.Title, r.config.BorderConfig.Top/2+ann.textHeight()/2); err != nil {
		return nil, fmt.Errorf("drawing title: %w", err)
	}

	timeLabel := fmt.Sprintf("Time [s] from GPS %.1f", reference)
	if err = ann.drawAxes(img, timePanel, timeLabel, "Strain", formatValue, formatValue, grid); err != nil {
		return nil, fmt.Errorf("drawing time axes: %w", err)
	}
	if err = ann.drawAxes(img, asdPanel, "Frequency [Hz]", "ASD [strain/√Hz]", formatHz, formatValue, grid); err != nil {
		return nil, fmt.Errorf("drawing ASD axes: %w", err)
	}

	width := float32(r.config.LineWidth)
	entries := make([]legendEntry, len(fig.Traces))
	for i, t := range fig.Traces {
		strokePolyline(img, timePanel.area, envelope(timePanel, t.Series, reference), width, palette[i])
		if spectra[i] != nil {
			strokePolyline(img, asdPanel.area, spectrumLine(asdPanel, spectra[i]), width, palette[i])
		}
		entries[i] = legendEntry{label: t.Label, color: palette[i]}
	}

	for _, p := range []panel{timePanel, asdPanel} {
		if err = ann.drawLegend(img, p, entries, backgroundColor); err != nil {
			return nil, err
		}
	}

	notesY := asdPanel.area.Max.Y + tickMarkLength + 4*ann.textHeight()
	if err = ann.drawNotes(fig.Notes, r.config.BorderConfig.Left, notesY); err != nil {
		return nil, err
	}

	return img, nil
}

func (r *Renderer) panelAreas() (top, bottom image.Rectangle) {
	b := r.config.BorderConfig
	height := (r.config.Height - b.Top - b.Bottom - b.Gap) / 2

	top = image.Rect(b.Left, b.Top, r.config.Width-b.Right, b.Top+height)
	bottom = image.Rect(b.Left, top.Max.Y+b.Gap, r.config.Width-b.Right, top.Max.Y+b.Gap+height)
	return top, bottom
}

// timePanel spans the union of the trace time ranges, in seconds from
// reference, and a symmetric value range around zero.
func (r *Renderer) timePanel(area image.Rectangle, traces []Trace, reference float64) panel {
	start, end := math.Inf(1), math.Inf(-1)
	var peak float64
	for _, t := range traces {
		start = min(start, t.Series.T0)
		end = max(end, t.Series.End())
		if v := t.Series.Peak(); !math.IsInf(v, 0) && !math.IsNaN(v) {
			peak = max(peak, v)
		}
	}
	if peak == 0 {
		peak = 1
	}

	return panel{
		area: area,
		x:    axis{min: start - reference, max: end - reference},
		y:    axis{min: -1.1 * peak, max: 1.1 * peak},
	}
}

// asdPanel estimates the spectrum of every trace and fits the value range to
// whole decades. A nil spectrum is returned for traces too short to estimate.
func (r *Renderer) asdPanel(area image.Rectangle, traces []Trace) (panel, []*dsp.Spectrum) {
	spectra := make([]*dsp.Spectrum, len(traces))
	lo, hi := math.Inf(1), math.Inf(-1)

	for i, t := range traces {
		fs := t.Series.SampleRate()
		segment := min(t.Series.Len(), int(math.Round(r.config.SegmentSeconds*fs)))
		psd, err := dsp.Welch(t.Series.Samples, fs, segment, segment/2, dsp.WindowHann)
		if err != nil {
			continue
		}
		spectra[i] = psd

		for k, v := range psd.ASD() {
			f := psd.Frequencies[k]
			if f < r.config.FrequencyMin || f > r.config.FrequencyMax || !(v > 0) || math.IsInf(v, 0) {
				continue
			}
			lo, hi = min(lo, v), max(hi, v)
		}
	}

	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		lo, hi = fallbackASD[0], fallbackASD[1]
	}
	lo, hi = decades(lo, hi)
	if lo == hi {
		hi *= 10
	}

	return panel{
		area: area,
		x:    axis{min: r.config.FrequencyMin, max: r.config.FrequencyMax, log: true},
		y:    axis{min: lo, max: hi, log: true},
	}, spectra
}

// envelope returns a polyline tracing the minimum and maximum sample of every
// pixel column, so long series render without aliasing. The panel time axis is
// in seconds from reference.
func envelope(p panel, s *strain.Series, reference float64) []vec {
	columns := p.area.Dx()
	lo := make([]float64, columns)
	hi := make([]float64, columns)
	seen := make([]bool, columns)

	span := p.x.max - p.x.min
	for i, v := range s.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		col := int((s.TimeAt(i) - reference - p.x.min) / span * float64(columns))
		if col < 0 || col >= columns {
			continue
		}
		if !seen[col] {
			lo[col], hi[col], seen[col] = v, v, true
			continue
		}
		lo[col], hi[col] = min(lo[col], v), max(hi[col], v)
	}

	pts := make([]vec, 0, 2*columns)
	for col := 0; col < columns; col++ {
		if !seen[col] {
			continue
		}
		x := float32(p.area.Min.X + col)
		_, y0 := p.point(p.x.min, lo[col])
		_, y1 := p.point(p.x.min, hi[col])
		pts = append(pts, vec{x, y0}, vec{x, y1})
	}
	return pts
}

func spectrumLine(p panel, psd *dsp.Spectrum) []vec {
	asd := psd.ASD()
	pts := make([]vec, 0, len(asd))
	for k, v := range asd {
		f := psd.Frequencies[k]
		if !p.x.contains(f) || !(v > 0) || math.IsInf(v, 0) {
			continue
		}
		// values outside the range are pinned to the frame
		v = min(max(v, p.y.min), p.y.max)
		x, y := p.point(f, v)
		pts = append(pts, vec{x, y})
	}
	return pts
}

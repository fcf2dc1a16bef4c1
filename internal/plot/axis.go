package plot

import (
	"fmt"
	"image"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

const maxTicks = 8

// axis maps data values onto one dimension of a panel.
type axis struct {
	min, max float64
	log      bool
}

// norm returns the position of v along the axis in [0, 1] for values inside
// the range.
func (a axis) norm(v float64) float64 {
	if a.log {
		return (math.Log10(v) - math.Log10(a.min)) / (math.Log10(a.max) - math.Log10(a.min))
	}
	return (v - a.min) / (a.max - a.min)
}

func (a axis) contains(v float64) bool {
	if math.IsNaN(v) || (a.log && v <= 0) {
		return false
	}
	return v >= a.min && v <= a.max
}

// ticks returns the tick positions inside the range.
func (a axis) ticks() []float64 {
	if a.log {
		return decadeTicks(a.min, a.max)
	}
	return linearTicks(a.min, a.max, maxTicks)
}

// panel is a plotting area with its axes. Y grows upwards.
type panel struct {
	area image.Rectangle
	x, y axis
}

func (p panel) point(x, y float64) (float32, float32) {
	px := float64(p.area.Min.X) + p.x.norm(x)*float64(p.area.Dx())
	py := float64(p.area.Max.Y) - p.y.norm(y)*float64(p.area.Dy())
	return float32(px), float32(py)
}

// niceStep returns the smallest 1, 2 or 5 times a power of ten that splits
// span into at most target steps.
func niceStep(span float64, target int) float64 {
	rough := span / float64(target)
	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= rough {
			return step
		}
	}
	return 10 * magnitude
}

func linearTicks(lo, hi float64, target int) []float64 {
	if !(hi > lo) {
		return nil
	}

	step := niceStep(hi-lo, target)
	var ticks []float64
	for v := math.Ceil(lo/step) * step; v <= hi+step*1e-9; v += step {
		// avoid printing -0 and 1e-17 for zero
		if math.Abs(v) < step*1e-9 {
			v = 0
		}
		ticks = append(ticks, v)
	}
	return ticks
}

func decadeTicks(lo, hi float64) []float64 {
	var ticks []float64
	for e := math.Ceil(math.Log10(lo) - 1e-9); e <= math.Floor(math.Log10(hi)+1e-9); e++ {
		ticks = append(ticks, math.Pow(10, e))
	}
	return ticks
}

// decades widens [lo, hi] to whole powers of ten.
func decades(lo, hi float64) (float64, float64) {
	return math.Pow(10, math.Floor(math.Log10(lo))), math.Pow(10, math.Ceil(math.Log10(hi)))
}

// formatHz renders frequency tick labels, e.g. "10 Hz" or "1 kHz".
func formatHz(hz float64) string {
	v, prefix := humanize.ComputeSI(hz)
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + prefix + "Hz"
}

// formatValue renders a data tick label, switching to exponent notation for
// strain scale values.
func formatValue(v float64) string {
	a := math.Abs(v)
	if v == 0 || (a >= 1e-3 && a < 1e5) {
		return strconv.FormatFloat(v, 'g', 4, 64)
	}
	return fmt.Sprintf("%.0e", v)
}

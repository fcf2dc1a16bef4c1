package plot

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

type vec struct{ x, y float32 }

// strokePolyline draws connected line segments of the given width with
// anti-aliasing, clipped to clip.
func strokePolyline(dst *image.RGBA, clip image.Rectangle, pts []vec, width float32, c color.Color) {
	if len(pts) < 2 {
		return
	}

	b := dst.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	half := width / 2

	for i := 1; i < len(pts); i++ {
		p0, p1 := pts[i-1], pts[i]
		dx, dy := p1.x-p0.x, p1.y-p0.y
		length := float32(math.Hypot(float64(dx), float64(dy)))
		if length == 0 {
			dx, length = 1, 1
		}

		// every quad is wound the same way, overlaps saturate instead of cancelling
		nx, ny := -dy/length*half, dx/length*half
		r.MoveTo(p0.x+nx-float32(b.Min.X), p0.y+ny-float32(b.Min.Y))
		r.LineTo(p1.x+nx-float32(b.Min.X), p1.y+ny-float32(b.Min.Y))
		r.LineTo(p1.x-nx-float32(b.Min.X), p1.y-ny-float32(b.Min.Y))
		r.LineTo(p0.x-nx-float32(b.Min.X), p0.y-ny-float32(b.Min.Y))
		r.ClosePath()
	}

	layer := image.NewRGBA(b)
	r.Draw(layer, b, image.NewUniform(c), b.Min)
	draw.Draw(dst, clip, layer, clip.Min, draw.Over)
}

func fillRect(dst *image.RGBA, rect image.Rectangle, c color.Color) {
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

func hline(dst *image.RGBA, x0, x1, y int, c color.Color) {
	fillRect(dst, image.Rect(x0, y, x1+1, y+1), c)
}

func vline(dst *image.RGBA, x, y0, y1 int, c color.Color) {
	fillRect(dst, image.Rect(x, y0, x+1, y1+1), c)
}

func frame(dst *image.RGBA, rect image.Rectangle, c color.Color) {
	hline(dst, rect.Min.X, rect.Max.X, rect.Min.Y, c)
	hline(dst, rect.Min.X, rect.Max.X, rect.Max.Y, c)
	vline(dst, rect.Min.X, rect.Min.Y, rect.Max.Y, c)
	vline(dst, rect.Max.X, rect.Min.Y, rect.Max.Y, c)
}

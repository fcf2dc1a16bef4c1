package plot

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 72.0
	tickMarkLength = 6
	legendSwatch   = 28
	lineSpacing    = 1.3
)

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	fontSize float64
	color    color.Color
}

func newAnnotator(dst *image.RGBA, fontSize float64, c color.Color) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(fontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.NewUniform(c))
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)

	return &annotator{
		context:  ctx,
		fontSize: fontSize,
		color:    c,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) textWidth(s string) int {
	return font.MeasureString(a.fontFace, s).Round()
}

func (a *annotator) textHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// drawString draws s with its baseline starting at (x, y).
func (a *annotator) drawString(s string, x, y int) error {
	if _, err := a.context.DrawString(s, freetype.Pt(x, y)); err != nil {
		return fmt.Errorf("drawing %q: %w", s, err)
	}
	return nil
}

// drawCentered draws s horizontally centred on x.
func (a *annotator) drawCentered(s string, x, y int) error {
	return a.drawString(s, x-a.textWidth(s)/2, y)
}

func (a *annotator) drawTitle(img *image.RGBA, title string, top int) error {
	return a.drawCentered(title, img.Bounds().Dx()/2, top)
}

// drawAxes draws the panel frame, grid lines, ticks and tick labels.
func (a *annotator) drawAxes(img *image.RGBA, p panel, xLabel, yLabel string, xFormat, yFormat func(float64) string, grid color.Color) error {
	area := p.area
	fontHeight := a.textHeight()

	for _, v := range p.x.ticks() {
		x32, _ := p.point(v, p.y.min)
		x := int(x32)

		vline(img, x, area.Min.Y+1, area.Max.Y-1, grid)
		vline(img, x, area.Max.Y, area.Max.Y+tickMarkLength, a.color)
		if err := a.drawCentered(xFormat(v), x, area.Max.Y+tickMarkLength+fontHeight); err != nil {
			return fmt.Errorf("drawing x scale: %w", err)
		}
	}

	for _, v := range p.y.ticks() {
		_, y32 := p.point(p.x.min, v)
		y := int(y32)

		hline(img, area.Min.X+1, area.Max.X-1, y, grid)
		hline(img, area.Min.X-tickMarkLength, area.Min.X, y, a.color)

		label := yFormat(v)
		x := area.Min.X - tickMarkLength - 4 - a.textWidth(label)
		if err := a.drawString(label, x, y+fontHeight/3); err != nil {
			return fmt.Errorf("drawing y scale: %w", err)
		}
	}

	frame(img, area, a.color)

	if err := a.drawCentered(xLabel, (area.Min.X+area.Max.X)/2, area.Max.Y+tickMarkLength+2*fontHeight+fontHeight/2); err != nil {
		return fmt.Errorf("drawing x label: %w", err)
	}
	if err := a.drawString(yLabel, area.Min.X, area.Min.Y-fontHeight/2); err != nil {
		return fmt.Errorf("drawing y label: %w", err)
	}
	return nil
}

type legendEntry struct {
	label string
	color color.Color
}

// drawLegend lists the entries in the top right corner of the panel.
func (a *annotator) drawLegend(img *image.RGBA, p panel, entries []legendEntry, background color.Color) error {
	if len(entries) == 0 {
		return nil
	}

	fontHeight := a.textHeight()
	step := int(float64(fontHeight) * lineSpacing)

	var width int
	for _, e := range entries {
		width = max(width, a.textWidth(e.label))
	}

	box := image.Rect(
		p.area.Max.X-width-legendSwatch-24,
		p.area.Min.Y+8,
		p.area.Max.X-8,
		p.area.Min.Y+8+len(entries)*step+8,
	)
	fillRect(img, box, background)
	frame(img, box, blend(background, a.color, 0.3))

	for i, e := range entries {
		y := box.Min.Y + 4 + i*step + step/2
		x := box.Min.X + 6
		strokePolyline(img, box, []vec{{float32(x), float32(y)}, {float32(x + legendSwatch), float32(y)}}, 3, e.color)
		if err := a.drawString(e.label, x+legendSwatch+6, y+fontHeight/3); err != nil {
			return fmt.Errorf("drawing legend: %w", err)
		}
	}
	return nil
}

// drawNotes writes lines of text starting at the given baseline.
func (a *annotator) drawNotes(notes []string, x, y int) error {
	step := a.context.PointToFixed(a.fontSize * lineSpacing)
	pt := freetype.Pt(x, y)
	for _, n := range notes {
		if _, err := a.context.DrawString(n, pt); err != nil {
			return fmt.Errorf("drawing info: %w", err)
		}
		pt.Y += step
	}
	return nil
}

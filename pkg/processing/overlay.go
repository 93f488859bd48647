package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/types"
)

var (
	gridColor      = color.NRGBA{255, 204, 0, 255}
	referenceColor = color.NRGBA{0, 255, 0, 255}
	centerColor    = color.NRGBA{0, 170, 255, 255}
)

// CreateGridOverlay draws a grid of grid.GridCM squares over a copy of img,
// starting at the frame center. If the altitude is right, objects of known
// size on the ground line up with the squares. reference, when non-nil, is
// outlined as well.
func (p *Processor) CreateGridOverlay(img image.Image, grid geometry.Grid, reference *types.Box) (image.Image, error) {
	if grid.BoxSizePx < 2 {
		return nil, fmt.Errorf("grid step of %.2fpx is too small to draw", grid.BoxSizePx)
	}

	out := imaging.Clone(img)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()
	step := grid.BoxSizePx
	cx, cy := float64(w)/2, float64(h)/2

	for x := cx; x < float64(w); x += step {
		drawVLine(out, int(x+0.5), 0, h, gridColor)
	}
	for x := cx - step; x >= 0; x -= step {
		drawVLine(out, int(x+0.5), 0, h, gridColor)
	}
	for y := cy; y < float64(h); y += step {
		drawHLine(out, int(y+0.5), 0, w, gridColor)
	}
	for y := cy - step; y >= 0; y -= step {
		drawHLine(out, int(y+0.5), 0, w, gridColor)
	}

	if reference != nil && !reference.Empty() {
		stroke := int(math.Max(2, 0.004*float64(min(w, h))))
		drawBox(out, *reference, w, h, referenceColor, stroke)
	}

	ix, iy := w/2, h/2
	drawHLine(out, iy, ix-6, ix+6, centerColor)
	drawVLine(out, ix, iy-6, iy+6, centerColor)

	return out, nil
}

func drawBox(img *image.NRGBA, box types.Box, w, h int, c color.NRGBA, stroke int) {
	x0, y0, x1, y1 := boxToPixels(box, w, h)
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < 0 || y >= b.Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, 0)
	x1 = min(x1, b.Dx())
	if x0 >= x1 {
		return
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < 0 || x >= b.Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, 0)
	y1 = min(y1, b.Dy())
	if y0 >= y1 {
		return
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

// Package selection turns a located reference object into the pixel size
// the altitude calculation needs.
package selection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/processing"
	"github.com/menta2k/video-altitude/pkg/types"
)

// ErrNoReference is returned when nothing usable was selected.
var ErrNoReference = errors.New("no reference object selected")

// Locator finds the reference object in a frame. hint describes what to
// look for, for example "a 15 cm black and white marker".
type Locator interface {
	Locate(ctx context.Context, img image.Image, hint string) (*types.AnalysisResult, error)
}

// Measure converts a located reference into pixel units for a w x h frame.
// The pixel size is the longer side of the box.
func Measure(result *types.AnalysisResult, w, h int) (types.Selection, error) {
	if result == nil || result.Fallback || result.Reference.Box.Empty() {
		return types.Selection{}, ErrNoReference
	}
	if w <= 0 || h <= 0 {
		return types.Selection{}, &geometry.FieldError{
			Kind:   geometry.ErrInvalidMeasurement,
			Field:  "image_width_px",
			Value:  float64(w),
			Reason: "frame size must be > 0",
		}
	}

	ref := result.Reference
	wpx, hpx := processing.MeasureBox(ref.Box, w, h)
	size := math.Max(wpx, hpx)
	if size <= 0 {
		return types.Selection{}, fmt.Errorf("%w: box lies outside the frame", ErrNoReference)
	}

	return types.Selection{
		Label:       ref.Label,
		Confidence:  ref.Confidence,
		Box:         ref.Box,
		WidthPx:     wpx,
		HeightPx:    hpx,
		PixelSizePx: size,
		FrameWidth:  w,
		FrameHeight: h,
	}, nil
}

// FromMask returns the bounding box of the set pixels of a binary mask, as
// produced by a click-to-segment tool. A pixel is set when its luminance is
// above half scale and it is not transparent.
func FromMask(mask image.Image) (*types.AnalysisResult, error) {
	b := mask.Bounds()
	x0, y0, x1, y1 := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	set := 0

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := mask.At(x, y).RGBA()
			if a == 0 || (r+g+bl)/3 < 0x8000 {
				continue
			}
			set++
			x0, y0 = min(x0, x), min(y0, y)
			x1, y1 = max(x1, x), max(y1, y)
		}
	}
	if set == 0 {
		return nil, fmt.Errorf("%w: mask is empty", ErrNoReference)
	}

	fw, fh := float64(b.Dx()), float64(b.Dy())
	box := types.Box{
		X: float64(x0-b.Min.X) / fw,
		Y: float64(y0-b.Min.Y) / fh,
		W: float64(x1-x0+1) / fw,
		H: float64(y1-y0+1) / fh,
	}
	return &types.AnalysisResult{
		Reference: types.Detection{
			Label:      "mask",
			Confidence: float64(set) / float64((x1-x0+1)*(y1-y0+1)),
			Box:        box,
		},
		Description: fmt.Sprintf("mask with %d pixels", set),
	}, nil
}

// FromPoints measures a reference from points clicked on its outline. The
// pixel size is the largest distance between any two points.
func FromPoints(points []image.Point) (float64, error) {
	if len(points) < 2 {
		return 0, fmt.Errorf("%w: need at least 2 points, got %d", ErrNoReference, len(points))
	}
	var longest float64
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			d := points[j].Sub(points[i])
			longest = math.Max(longest, math.Hypot(float64(d.X), float64(d.Y)))
		}
	}
	if longest == 0 {
		return 0, fmt.Errorf("%w: all points coincide", ErrNoReference)
	}
	return longest, nil
}

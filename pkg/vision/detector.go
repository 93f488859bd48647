// Package vision proposes a reference object without a vision model. It looks
// for a compact patch whose edge density stands out from its surroundings,
// which is what a printed marker on grass or tarmac looks like from above.
package vision

import (
	"cmp"
	"context"
	"fmt"
	"image"
	"math"
	"slices"

	"github.com/disintegration/imaging"

	"github.com/menta2k/video-altitude/pkg/types"
)

// SubjectDetector finds high-contrast compact regions in a frame
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for region detection
type DetectionConfig struct {
	// Frames are downscaled so their longest side is at most MaxDimension.
	MaxDimension int
	// Window sides as fractions of the shorter frame side.
	WindowRatios []float64
	// Regions whose edge density exceeds their surroundings by less than
	// this are ignored.
	MinContrast float64
	// Pixels weaker than EdgeKeep times the local peak are dropped when the
	// winning window is tightened to the object.
	EdgeKeep   float64
	MaxRegions int
}

// New creates a SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{
		config: DetectionConfig{
			MaxDimension: 512,
			WindowRatios: []float64{1.0 / 20, 1.0 / 12, 1.0 / 8, 1.0 / 6},
			MinContrast:  0.02,
			EdgeKeep:     0.3,
			MaxRegions:   10,
		},
	}
}

// NewWithConfig creates a SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	return &SubjectDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

func (r Region) rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// DetectSubjects returns candidate regions in frame pixels, best first.
func (d *SubjectDetector) DetectSubjects(img image.Image) ([]Region, error) {
	_, regions, scale, err := d.analyze(img)
	if err != nil {
		return nil, err
	}

	out := make([]Region, len(regions))
	for i, r := range regions {
		out[i] = Region{
			X:      int(float64(r.X)*scale + 0.5),
			Y:      int(float64(r.Y)*scale + 0.5),
			Width:  int(float64(r.Width)*scale + 0.5),
			Height: int(float64(r.Height)*scale + 0.5),
			Score:  r.Score,
		}
	}
	return out, nil
}

// Locate implements selection.Locator. The hint is ignored; the best
// candidate is tightened to its strong edges and returned. When nothing
// stands out the result is a fallback.
func (d *SubjectDetector) Locate(ctx context.Context, img image.Image, hint string) (*types.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, regions, _, err := d.analyze(img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return &types.AnalysisResult{
			Reference:   types.Detection{Label: "none"},
			Description: "no compact high-contrast region found",
			Fallback:    true,
		}, nil
	}

	best := regions[0]
	inside := m.mean(best.rect())
	tight := m.tighten(best.rect().Inset(-best.Width/2), d.config.EdgeKeep)

	fw, fh := float64(m.w), float64(m.h)
	return &types.AnalysisResult{
		Reference: types.Detection{
			Label:      "salient region",
			Confidence: best.Score / inside,
			Box: types.Box{
				X: float64(tight.Min.X) / fw,
				Y: float64(tight.Min.Y) / fh,
				W: float64(tight.Dx()) / fw,
				H: float64(tight.Dy()) / fh,
			},
		},
		Description: fmt.Sprintf("edge contrast %.3f against surroundings", best.Score),
	}, nil
}

// analyze scores every window on a downscaled copy of img. Regions are in
// the downscaled frame; scale maps them back.
func (d *SubjectDetector) analyze(img image.Image) (*edgeMap, []Region, float64, error) {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil, nil, 0, fmt.Errorf("frame too small: %dx%d", b.Dx(), b.Dy())
	}

	scale := 1.0
	if d.config.MaxDimension > 0 && max(b.Dx(), b.Dy()) > d.config.MaxDimension {
		img = imaging.Fit(img, d.config.MaxDimension, d.config.MaxDimension, imaging.Box)
		scale = float64(b.Dx()) / float64(img.Bounds().Dx())
	}

	m := newEdgeMap(img)
	short := min(m.w, m.h)

	var regions []Region
	for _, ratio := range d.config.WindowRatios {
		size := int(float64(short) * ratio)
		if size < 8 {
			continue
		}
		step := max(1, size/4)
		for y := 0; y+size <= m.h; y += step {
			for x := 0; x+size <= m.w; x += step {
				r := Region{X: x, Y: y, Width: size, Height: size}
				inner := r.rect()
				outer := inner.Inset(-size / 2)
				score := m.mean(inner) - m.ring(inner, outer)
				if score > d.config.MinContrast {
					r.Score = score
					regions = append(regions, r)
				}
			}
		}
	}

	slices.SortStableFunc(regions, func(a, b Region) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return m, suppress(regions, d.config.MaxRegions), scale, nil
}

// suppress keeps the best region of every overlapping group
func suppress(regions []Region, limit int) []Region {
	var kept []Region
	for _, r := range regions {
		overlaps := slices.ContainsFunc(kept, func(k Region) bool {
			return k.rect().Overlaps(r.rect())
		})
		if overlaps {
			continue
		}
		kept = append(kept, r)
		if limit > 0 && len(kept) == limit {
			break
		}
	}
	return kept
}

// edgeMap holds per-pixel gradient strength and its summed-area table.
type edgeMap struct {
	w, h int
	v    []float64
	sum  []float64
}

func newEdgeMap(img image.Image) *edgeMap {
	gray := imaging.Grayscale(img)
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	lum := func(x, y int) float64 {
		return float64(gray.Pix[y*gray.Stride+x*4]) / 255
	}

	m := &edgeMap{w: w, h: h, v: make([]float64, w*h), sum: make([]float64, (w+1)*(h+1))}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			m.v[y*w+x] = math.Abs(lum(x+1, y)-lum(x-1, y)) + math.Abs(lum(x, y+1)-lum(x, y-1))
		}
	}

	stride := w + 1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.sum[(y+1)*stride+x+1] = m.v[y*w+x] + m.sum[y*stride+x+1] + m.sum[(y+1)*stride+x] - m.sum[y*stride+x]
		}
	}
	return m
}

func (m *edgeMap) bounds() image.Rectangle {
	return image.Rect(0, 0, m.w, m.h)
}

func (m *edgeMap) total(r image.Rectangle) float64 {
	r = r.Intersect(m.bounds())
	if r.Empty() {
		return 0
	}
	s := m.w + 1
	return m.sum[r.Max.Y*s+r.Max.X] - m.sum[r.Min.Y*s+r.Max.X] - m.sum[r.Max.Y*s+r.Min.X] + m.sum[r.Min.Y*s+r.Min.X]
}

func (m *edgeMap) mean(r image.Rectangle) float64 {
	r = r.Intersect(m.bounds())
	if r.Empty() {
		return 0
	}
	return m.total(r) / float64(r.Dx()*r.Dy())
}

// ring is the mean over outer minus inner
func (m *edgeMap) ring(inner, outer image.Rectangle) float64 {
	inner = inner.Intersect(m.bounds())
	outer = outer.Intersect(m.bounds())
	area := outer.Dx()*outer.Dy() - inner.Dx()*inner.Dy()
	if area <= 0 {
		return 0
	}
	return (m.total(outer) - m.total(inner)) / float64(area)
}

// tighten shrinks r to the pixels whose edge strength is at least keep times
// the strongest one inside r.
func (m *edgeMap) tighten(r image.Rectangle, keep float64) image.Rectangle {
	r = r.Intersect(m.bounds())
	var peak float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			peak = math.Max(peak, m.v[y*m.w+x])
		}
	}
	if peak == 0 {
		return r
	}

	threshold := keep * peak
	tight := image.Rectangle{}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.v[y*m.w+x] > threshold {
				tight = tight.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return tight
}

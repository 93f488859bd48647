package validation

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/menta2k/video-altitude/pkg/geometry"
)

// DefaultGrid is the extra set of pixel offsets swept when a wider picture
// than ±pixelError is wanted.
var DefaultGrid = []float64{-5, -2, -1, 1, 2, 5}

// SensitivityOptions tunes AnalyzeSensitivity.
type SensitivityOptions struct {
	// Method defaults to geometry.Traditional.
	Method geometry.Method
	// Grid lists extra pixel offsets swept besides ±pixelError.
	Grid []float64
}

// Step is the altitude obtained after shifting the pixel size by OffsetPx.
type Step struct {
	OffsetPx     float64 `json:"offset_px"`
	PixelSizePx  float64 `json:"pixel_size_px"`
	GSDCmPerPx   float64 `json:"gsd_cm_per_px"`
	AltitudeCM   float64 `json:"altitude_cm"`
	DeltaCM      float64 `json:"delta_cm"`
	DeltaPercent float64 `json:"delta_percent"`
}

// SensitivityReport is the result of a deterministic pixel-error sweep.
type SensitivityReport struct {
	Baseline     geometry.AltitudeResult `json:"baseline"`
	PixelErrorPx float64                 `json:"pixel_error_px"`
	Steps        []Step                  `json:"steps"`
	// Skipped holds offsets that would make the pixel size non-positive.
	Skipped []float64 `json:"skipped,omitempty"`
}

// AnalyzeSensitivity recomputes the altitude of m for pixel sizes shifted by
// ±pixelErrorPx and by every offset in opts.Grid. Steps are ordered by offset.
func AnalyzeSensitivity(m geometry.Measurement, p geometry.CameraProfile, pixelErrorPx float64, opts SensitivityOptions) (*SensitivityReport, error) {
	if math.IsNaN(pixelErrorPx) || math.IsInf(pixelErrorPx, 0) || pixelErrorPx <= 0 {
		return nil, &geometry.FieldError{
			Kind: geometry.ErrInvalidMeasurement, Field: "pixel_error_px", Value: pixelErrorPx, Reason: "must be > 0",
		}
	}
	method := opts.Method
	if method == 0 {
		method = geometry.Traditional
	}

	baseline, err := geometry.Estimate(m, p, method)
	if err != nil {
		return nil, err
	}

	report := &SensitivityReport{Baseline: baseline, PixelErrorPx: pixelErrorPx}
	for _, offset := range offsets(pixelErrorPx, opts.Grid) {
		shifted := m
		shifted.PixelSizePx = m.PixelSizePx + offset
		if shifted.PixelSizePx <= 0 {
			report.Skipped = append(report.Skipped, offset)
			continue
		}
		res, err := geometry.Estimate(shifted, p, method)
		if err != nil {
			return nil, err
		}
		delta := res.AltitudeCM - baseline.AltitudeCM
		report.Steps = append(report.Steps, Step{
			OffsetPx:     offset,
			PixelSizePx:  shifted.PixelSizePx,
			GSDCmPerPx:   res.GSDCmPerPx,
			AltitudeCM:   res.AltitudeCM,
			DeltaCM:      delta,
			DeltaPercent: delta / baseline.AltitudeCM * 100,
		})
	}
	return report, nil
}

// Step returns the step computed for offset, if any.
func (r *SensitivityReport) Step(offset float64) (Step, bool) {
	for _, s := range r.Steps {
		if s.OffsetPx == offset {
			return s, true
		}
	}
	return Step{}, false
}

// MaxDeltaPercent returns the largest absolute relative change in the sweep.
func (r *SensitivityReport) MaxDeltaPercent() float64 {
	if len(r.Steps) == 0 {
		return 0
	}
	abs := make([]float64, len(r.Steps))
	for i, s := range r.Steps {
		abs[i] = math.Abs(s.DeltaPercent)
	}
	return floats.Max(abs)
}

func offsets(pixelError float64, grid []float64) []float64 {
	out := []float64{-pixelError, pixelError}
	for _, g := range grid {
		if g != 0 && !math.IsNaN(g) {
			out = append(out, g)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

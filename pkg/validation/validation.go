// Package validation cross-checks several reference measurements of the same
// flight and sweeps pixel errors to show how they propagate into altitude.
package validation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/video-altitude/pkg/geometry"
)

// DefaultOutlierSigma is the leave-one-out z-score above which an entry is flagged.
const DefaultOutlierSigma = 2.0

// minSamples is the smallest set that can be cross-checked.
const minSamples = 2

// Sample is one reference object measured against a camera profile.
type Sample struct {
	Name        string                 `json:"name"`
	Position    string                 `json:"position,omitempty"`
	Measurement geometry.Measurement   `json:"measurement"`
	Profile     geometry.CameraProfile `json:"profile"`
}

// Options tunes ValidateMultiple.
type Options struct {
	// OutlierSigma defaults to DefaultOutlierSigma when zero.
	OutlierSigma float64
}

// Entry is the per-sample part of a Report.
type Entry struct {
	Name             string  `json:"name"`
	Position         string  `json:"position,omitempty"`
	Camera           string  `json:"camera"`
	GSDCmPerPx       float64 `json:"gsd_cm_per_px"`
	AltitudeCM       float64 `json:"altitude_cm"`
	DeviationCM      float64 `json:"deviation_cm"`
	DeviationPercent float64 `json:"deviation_percent"`
	// Sigma is the distance from the mean of the other entries in units of
	// their standard deviation. Nil when that is undefined.
	Sigma   *float64 `json:"sigma,omitempty"`
	Outlier bool     `json:"outlier"`
}

// Report aggregates altitudes computed with the traditional method.
type Report struct {
	Count            int     `json:"count"`
	GSDMean          float64 `json:"gsd_mean"`
	GSDStdDev        float64 `json:"gsd_std"`
	GSDCV            float64 `json:"gsd_cv_percent"`
	AltitudeMeanCM   float64 `json:"altitude_mean_cm"`
	AltitudeStdDevCM float64 `json:"altitude_std_cm"`
	AltitudeCV       float64 `json:"altitude_cv_percent"`
	OutlierSigma     float64 `json:"outlier_sigma"`
	Entries          []Entry `json:"entries"`
}

// ValidateMultiple computes one altitude per sample and reports their spread.
// Outliers are flagged for the caller's attention and still count towards
// the aggregates. Any invalid sample aborts the whole call.
func ValidateMultiple(samples []Sample, opts Options) (*Report, error) {
	if len(samples) < minSamples {
		return nil, fmt.Errorf("%w: need at least %d reference objects, got %d",
			geometry.ErrInvalidMeasurement, minSamples, len(samples))
	}
	threshold := opts.OutlierSigma
	if threshold == 0 {
		threshold = DefaultOutlierSigma
	}
	if threshold < 0 || math.IsNaN(threshold) {
		return nil, fmt.Errorf("outlier sigma must be positive, got %g", threshold)
	}

	gsds := make([]float64, len(samples))
	alts := make([]float64, len(samples))
	for i, s := range samples {
		res, err := geometry.Estimate(s.Measurement, s.Profile, geometry.Traditional)
		if err != nil {
			return nil, fmt.Errorf("reference object %d (%s): %w", i+1, s.Name, err)
		}
		gsds[i] = res.GSDCmPerPx
		alts[i] = res.AltitudeCM
	}

	gsdMean, gsdStd := stat.PopMeanStdDev(gsds, nil)
	altMean, altStd := stat.PopMeanStdDev(alts, nil)

	report := &Report{
		Count:            len(samples),
		GSDMean:          gsdMean,
		GSDStdDev:        gsdStd,
		GSDCV:            gsdStd / gsdMean * 100,
		AltitudeMeanCM:   altMean,
		AltitudeStdDevCM: altStd,
		AltitudeCV:       altStd / altMean * 100,
		OutlierSigma:     threshold,
		Entries:          make([]Entry, len(samples)),
	}

	for i, s := range samples {
		e := Entry{
			Name:             s.Name,
			Position:         s.Position,
			Camera:           s.Profile.Name,
			GSDCmPerPx:       gsds[i],
			AltitudeCM:       alts[i],
			DeviationCM:      alts[i] - altMean,
			DeviationPercent: (alts[i] - altMean) / altMean * 100,
		}
		if len(samples) > minSamples {
			e.Sigma, e.Outlier = leaveOneOut(alts, i, threshold)
		}
		report.Entries[i] = e
	}

	return report, nil
}

// leaveOneOut scores alts[i] against the mean and spread of the others.
func leaveOneOut(alts []float64, i int, threshold float64) (*float64, bool) {
	others := make([]float64, 0, len(alts)-1)
	others = append(others, alts[:i]...)
	others = append(others, alts[i+1:]...)

	mean, std := stat.PopMeanStdDev(others, nil)
	dist := math.Abs(alts[i] - mean)
	if std == 0 {
		// identical peers: any difference at all stands out
		return nil, dist > 0
	}
	z := dist / std
	return &z, z > threshold
}

// Outliers returns the flagged entries.
func (r *Report) Outliers() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Outlier {
			out = append(out, e)
		}
	}
	return out
}

// Precision rates the agreement between reference objects by GSD spread.
func (r *Report) Precision() string {
	switch {
	case r.GSDCV < 5:
		return "excellent"
	case r.GSDCV < 10:
		return "good"
	default:
		return "moderate"
	}
}

// ReferenceObject is a rectangular marker measured along both axes. Its
// size is the average of the two.
type ReferenceObject struct {
	Name          string  `json:"name"`
	Position      string  `json:"position,omitempty"`
	RealLengthCM  float64 `json:"real_length_cm"`
	RealWidthCM   float64 `json:"real_width_cm"`
	PixelLengthPx float64 `json:"pixel_length_px"`
	PixelWidthPx  float64 `json:"pixel_width_px"`
}

// RealAverageCM averages the physical sides.
func (o ReferenceObject) RealAverageCM() float64 {
	return (o.RealLengthCM + o.RealWidthCM) / 2
}

// PixelAverage averages the measured sides.
func (o ReferenceObject) PixelAverage() float64 {
	return (o.PixelLengthPx + o.PixelWidthPx) / 2
}

// Sample converts the object into a Sample for ValidateMultiple.
func (o ReferenceObject) Sample(p geometry.CameraProfile, imageWidthPx int) Sample {
	return Sample{
		Name:     o.Name,
		Position: o.Position,
		Measurement: geometry.Measurement{
			RealSizeCM:   o.RealAverageCM(),
			PixelSizePx:  o.PixelAverage(),
			ImageWidthPx: imageWidthPx,
		},
		Profile: p,
	}
}

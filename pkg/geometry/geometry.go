// Package geometry holds the pinhole-camera formulas that relate a reference
// object's pixel size to ground sample distance and altitude.
//
// All functions are pure. Altitudes are in centimeters.
package geometry

import (
	"fmt"
	"math"
)

// full-frame 35mm sensor width
const fullFrameWidthMM = 36.0

// methodAgreementPercent is the largest FOV/traditional spread reported as agreeing.
const methodAgreementPercent = 5.0

// ComputeGSD returns realSizeCM / pixelSizePx in cm/px.
func ComputeGSD(realSizeCM, pixelSizePx float64) (GSDResult, error) {
	if err := positive("real_size_cm", realSizeCM, ErrInvalidMeasurement); err != nil {
		return GSDResult{}, err
	}
	if err := positive("pixel_size_px", pixelSizePx, ErrInvalidMeasurement); err != nil {
		return GSDResult{}, err
	}
	return GSDResult{GSDCmPerPx: realSizeCM / pixelSizePx}, nil
}

// AltitudeTraditional returns (gsd * focal * width) / sensor.
func AltitudeTraditional(gsdCmPerPx, focalLengthMM, sensorWidthMM float64, imageWidthPx int) (float64, error) {
	if err := positive("sensor_width_mm", sensorWidthMM, ErrInvalidCameraProfile); err != nil {
		return 0, err
	}
	if err := positive("focal_length_mm", focalLengthMM, ErrInvalidCameraProfile); err != nil {
		return 0, err
	}
	if err := positive("gsd_cm_per_px", gsdCmPerPx, ErrInvalidMeasurement); err != nil {
		return 0, err
	}
	if imageWidthPx <= 0 {
		return 0, invalidMeasurement("image_width_px", float64(imageWidthPx), "must be > 0")
	}
	return (gsdCmPerPx * focalLengthMM * float64(imageWidthPx)) / sensorWidthMM, nil
}

// AltitudeFOV returns (gsd * width) / (2 * tan(fov/2)).
// fovDeg must be present and strictly between 0 and 180 degrees.
func AltitudeFOV(gsdCmPerPx float64, fovDeg *float64, imageWidthPx int) (float64, error) {
	if fovDeg == nil {
		return 0, invalidProfile("field_of_view_deg", 0, "is required for the fov method")
	}
	fov := *fovDeg
	if math.IsNaN(fov) || fov <= 0 || fov >= 180 {
		return 0, invalidProfile("field_of_view_deg", fov, "must be in (0, 180)")
	}
	if err := positive("gsd_cm_per_px", gsdCmPerPx, ErrInvalidMeasurement); err != nil {
		return 0, err
	}
	if imageWidthPx <= 0 {
		return 0, invalidMeasurement("image_width_px", float64(imageWidthPx), "must be > 0")
	}
	half := fov * math.Pi / 180 / 2
	return (gsdCmPerPx * float64(imageWidthPx)) / (2 * math.Tan(half)), nil
}

// GSDFromAltitude inverts AltitudeTraditional.
func GSDFromAltitude(altitudeCM, focalLengthMM, sensorWidthMM float64, imageWidthPx int) (float64, error) {
	if err := positive("altitude_cm", altitudeCM, ErrInvalidMeasurement); err != nil {
		return 0, err
	}
	if err := positive("focal_length_mm", focalLengthMM, ErrInvalidCameraProfile); err != nil {
		return 0, err
	}
	if err := positive("sensor_width_mm", sensorWidthMM, ErrInvalidCameraProfile); err != nil {
		return 0, err
	}
	if imageWidthPx <= 0 {
		return 0, invalidMeasurement("image_width_px", float64(imageWidthPx), "must be > 0")
	}
	return altitudeCM * sensorWidthMM / (focalLengthMM * float64(imageWidthPx)), nil
}

// Estimate computes the GSD of m and converts it with the requested method.
// The method is never inferred from the profile.
func Estimate(m Measurement, p CameraProfile, method Method) (AltitudeResult, error) {
	if err := m.Validate(); err != nil {
		return AltitudeResult{}, err
	}
	gsd, err := ComputeGSD(m.RealSizeCM, m.PixelSizePx)
	if err != nil {
		return AltitudeResult{}, err
	}

	var altitude float64
	switch method {
	case Traditional:
		altitude, err = AltitudeTraditional(gsd.GSDCmPerPx, p.FocalLengthMM, p.SensorWidthMM, m.ImageWidthPx)
	case FOV:
		altitude, err = AltitudeFOV(gsd.GSDCmPerPx, p.FieldOfViewDeg, m.ImageWidthPx)
	default:
		return AltitudeResult{}, fmt.Errorf("unsupported altitude method %v", method)
	}
	if err != nil {
		return AltitudeResult{}, err
	}

	return AltitudeResult{
		AltitudeCM: altitude,
		Method:     method,
		GSDCmPerPx: gsd.GSDCmPerPx,
	}, nil
}

// Comparison holds both altitude methods side by side.
type Comparison struct {
	Traditional       AltitudeResult `json:"traditional"`
	FOV               AltitudeResult `json:"fov"`
	DifferencePercent float64        `json:"difference_percent"`
	Agree             bool           `json:"agree"`
}

// CompareMethods runs both formulas for a profile that defines both
// parameterizations. It reports the spread and does not choose between them.
func CompareMethods(m Measurement, p CameraProfile) (Comparison, error) {
	trad, err := Estimate(m, p, Traditional)
	if err != nil {
		return Comparison{}, err
	}
	fov, err := Estimate(m, p, FOV)
	if err != nil {
		return Comparison{}, err
	}
	diff := math.Abs(fov.AltitudeCM-trad.AltitudeCM) / trad.AltitudeCM * 100
	return Comparison{
		Traditional:       trad,
		FOV:               fov,
		DifferencePercent: diff,
		Agree:             diff < methodAgreementPercent,
	}, nil
}

// Grid describes a debug grid of GridCM squares drawn over a frame.
type Grid struct {
	GridCM     float64 `json:"debug_grid_cm"`
	BoxSizePx  float64 `json:"box_size_px"`
	GSDCmPerPx float64 `json:"gsd_cm_per_px"`
}

// DebugGrid returns how many pixels one gridCM square spans at the given GSD.
func DebugGrid(gsdCmPerPx, gridCM float64) (Grid, error) {
	if err := positive("gsd_cm_per_px", gsdCmPerPx, ErrInvalidMeasurement); err != nil {
		return Grid{}, err
	}
	if err := positive("debug_grid_cm", gridCM, ErrInvalidMeasurement); err != nil {
		return Grid{}, err
	}
	return Grid{GridCM: gridCM, BoxSizePx: gridCM / gsdCmPerPx, GSDCmPerPx: gsdCmPerPx}, nil
}

// FocalLength35mm returns the 35mm-equivalent focal length. ok is false when
// the sensor width or focal length is unknown.
func FocalLength35mm(p CameraProfile) (float64, bool) {
	if p.FocalLengthMM <= 0 || p.SensorWidthMM <= 0 {
		return 0, false
	}
	return p.FocalLengthMM * fullFrameWidthMM / p.SensorWidthMM, true
}

func positive(field string, v float64, kind error) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &FieldError{Kind: kind, Field: field, Value: v, Reason: "must be a finite number"}
	}
	if v <= 0 {
		return &FieldError{Kind: kind, Field: field, Value: v, Reason: "must be > 0"}
	}
	return nil
}

package geometry

import (
	"fmt"
	"strings"
)

// Method selects the altitude formula.
type Method int

const (
	// Traditional uses physical focal length and sensor width.
	Traditional Method = iota + 1
	// FOV uses the horizontal field of view angle.
	FOV
)

func (m Method) String() string {
	switch m {
	case Traditional:
		return "traditional"
	case FOV:
		return "fov"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod maps "traditional" or "fov" to a Method.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "traditional", "trad":
		return Traditional, nil
	case "fov":
		return FOV, nil
	default:
		return 0, fmt.Errorf("unknown altitude method %q (use traditional or fov)", s)
	}
}

// MarshalText lets Method appear as a string in JSON payloads.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CameraProfile describes the optics used to turn a GSD into an altitude.
// A zero SensorWidthMM means the sensor width is not known.
type CameraProfile struct {
	Name           string   `json:"name"`
	FocalLengthMM  float64  `json:"focal_length_mm"`
	SensorWidthMM  float64  `json:"sensor_width_mm"`
	FieldOfViewDeg *float64 `json:"field_of_view_deg,omitempty"`
	ImageWidthPx   int      `json:"image_width_px,omitempty"`
	ImageHeightPx  int      `json:"image_height_px,omitempty"`
}

// HasFOV reports whether a field of view was supplied.
func (p CameraProfile) HasFOV() bool {
	return p.FieldOfViewDeg != nil
}

// Measurement is one observation of a reference object of known size.
type Measurement struct {
	RealSizeCM   float64 `json:"real_size_cm"`
	PixelSizePx  float64 `json:"pixel_size_px"`
	ImageWidthPx int     `json:"image_width_px"`
}

// Validate checks that every field is strictly positive.
func (m Measurement) Validate() error {
	if err := positive("real_size_cm", m.RealSizeCM, ErrInvalidMeasurement); err != nil {
		return err
	}
	if err := positive("pixel_size_px", m.PixelSizePx, ErrInvalidMeasurement); err != nil {
		return err
	}
	if m.ImageWidthPx <= 0 {
		return invalidMeasurement("image_width_px", float64(m.ImageWidthPx), "must be > 0")
	}
	return nil
}

// GSDResult is the ground sample distance derived from a measurement.
type GSDResult struct {
	GSDCmPerPx float64 `json:"gsd_cm_per_px"`
}

// MMPerPx returns the GSD in millimeters per pixel.
func (g GSDResult) MMPerPx() float64 {
	return g.GSDCmPerPx * 10
}

// AltitudeResult is an altitude computed with a specific method.
type AltitudeResult struct {
	AltitudeCM float64 `json:"altitude_cm"`
	Method     Method  `json:"method"`
	GSDCmPerPx float64 `json:"gsd_cm_per_px"`
}

// Meters converts the altitude for display.
func (a AltitudeResult) Meters() float64 {
	return a.AltitudeCM / 100
}

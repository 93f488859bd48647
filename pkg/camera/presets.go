package camera

import "github.com/menta2k/video-altitude/pkg/geometry"

// Preset names.
const (
	DJIMini3Pro = "DJI Mini 3 Pro"
	DJIMiniSE2  = "DJI Mini SE2"
	GoPro12     = "Go Pro 12"
	IPhone14    = "iPhone 14"
)

// DefaultProfiles returns a fresh copy of the built-in presets.
//
// FOV is left unset on every preset: none of the published values have been
// verified. Go Pro 12 and iPhone 14 have no known sensor width, so only a
// method that does not need it can use them.
func DefaultProfiles() []geometry.CameraProfile {
	return []geometry.CameraProfile{
		{
			Name:          DJIMini3Pro,
			FocalLengthMM: 6.72,
			SensorWidthMM: 9.65,
			ImageWidthPx:  3840,
			ImageHeightPx: 2160,
		},
		{
			Name:          DJIMiniSE2,
			FocalLengthMM: 4.49,
			SensorWidthMM: 6.34,
			ImageWidthPx:  2704,
			ImageHeightPx: 1520,
		},
		{
			Name:          GoPro12,
			FocalLengthMM: 35.0,
			ImageWidthPx:  3840,
			ImageHeightPx: 2160,
		},
		{
			Name:          IPhone14,
			FocalLengthMM: 26.0,
			ImageWidthPx:  3840,
			ImageHeightPx: 2160,
		},
	}
}

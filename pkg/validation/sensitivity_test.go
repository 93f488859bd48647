package validation

import (
	"errors"
	"math"
	"testing"

	"github.com/menta2k/video-altitude/pkg/geometry"
)

var miniPro = geometry.CameraProfile{Name: "DJI Mini 3 Pro", FocalLengthMM: 6.72, SensorWidthMM: 9.65}

var tag = geometry.Measurement{RealSizeCM: 15, PixelSizePx: 43.4, ImageWidthPx: 3840}

func TestAnalyzeSensitivityOnePixel(t *testing.T) {
	report, err := AnalyzeSensitivity(tag, miniPro, 1.0, SensitivityOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(report.Steps))
	}
	if report.Baseline.Method != geometry.Traditional {
		t.Errorf("baseline method = %v", report.Baseline.Method)
	}

	base := report.Baseline.AltitudeCM
	cases := []struct {
		offset    float64
		pixels    float64
		altitude  float64
		deltaSign float64
	}{
		{-1, 42.4, 946.016, 1},
		{1, 44.4, 903.403, -1},
	}
	for _, tc := range cases {
		s, ok := report.Step(tc.offset)
		if !ok {
			t.Fatalf("missing step %g", tc.offset)
		}
		if math.Abs(s.PixelSizePx-tc.pixels) > 1e-9 {
			t.Errorf("offset %g: pixels = %g", tc.offset, s.PixelSizePx)
		}
		if math.Abs(s.AltitudeCM-tc.altitude) > 0.01 {
			t.Errorf("offset %g: altitude = %.3f, want ~%.3f", tc.offset, s.AltitudeCM, tc.altitude)
		}
		if math.Abs(s.DeltaCM-(s.AltitudeCM-base)) > 1e-9 {
			t.Errorf("offset %g: delta = %g", tc.offset, s.DeltaCM)
		}
		if math.Abs(s.DeltaPercent-s.DeltaCM/base*100) > 1e-9 {
			t.Errorf("offset %g: delta%% = %g", tc.offset, s.DeltaPercent)
		}
		if math.Signbit(s.DeltaCM) == (tc.deltaSign > 0) {
			t.Errorf("offset %g: delta has wrong sign: %g", tc.offset, s.DeltaCM)
		}
	}

	if got := report.MaxDeltaPercent(); math.Abs(got-2.3585) > 1e-3 {
		t.Errorf("max delta%% = %.4f", got)
	}
}

func TestAnalyzeSensitivityGrid(t *testing.T) {
	small := geometry.Measurement{RealSizeCM: 15, PixelSizePx: 3, ImageWidthPx: 3840}
	report, err := AnalyzeSensitivity(small, miniPro, 1, SensitivityOptions{Grid: DefaultGrid})
	if err != nil {
		t.Fatal(err)
	}
	// Only -5 pushes the 3px reading below zero.
	wantOffsets := []float64{-2, -1, 1, 2, 5}
	if len(report.Steps) != len(wantOffsets) {
		t.Fatalf("steps = %+v", report.Steps)
	}
	for i, s := range report.Steps {
		if s.OffsetPx != wantOffsets[i] {
			t.Errorf("step %d offset = %g, want %g", i, s.OffsetPx, wantOffsets[i])
		}
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != -5 {
		t.Errorf("skipped = %v", report.Skipped)
	}
}

func TestAnalyzeSensitivityFOV(t *testing.T) {
	p := miniPro
	v := 82.1
	p.FieldOfViewDeg = &v
	report, err := AnalyzeSensitivity(tag, p, 0.5, SensitivityOptions{Method: geometry.FOV})
	if err != nil {
		t.Fatal(err)
	}
	if report.Baseline.Method != geometry.FOV {
		t.Errorf("method = %v", report.Baseline.Method)
	}

	// Without an FOV the explicit method fails instead of silently switching.
	if _, err := AnalyzeSensitivity(tag, miniPro, 0.5, SensitivityOptions{Method: geometry.FOV}); !errors.Is(err, geometry.ErrInvalidCameraProfile) {
		t.Errorf("expected ErrInvalidCameraProfile, got %v", err)
	}
}

func TestAnalyzeSensitivityErrors(t *testing.T) {
	for _, e := range []float64{0, -1, math.NaN()} {
		if _, err := AnalyzeSensitivity(tag, miniPro, e, SensitivityOptions{}); !errors.Is(err, geometry.ErrInvalidMeasurement) {
			t.Errorf("pixel error %g: expected ErrInvalidMeasurement, got %v", e, err)
		}
	}
	bad := tag
	bad.PixelSizePx = 0
	if _, err := AnalyzeSensitivity(bad, miniPro, 1, SensitivityOptions{}); !errors.Is(err, geometry.ErrInvalidMeasurement) {
		t.Errorf("expected ErrInvalidMeasurement, got %v", err)
	}
}

func BenchmarkAnalyzeSensitivity(b *testing.B) {
	for i := 0; i < b.N; i++ {
		AnalyzeSensitivity(tag, miniPro, 1, SensitivityOptions{Grid: DefaultGrid})
	}
}

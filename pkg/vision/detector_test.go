package vision

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
)

// createMarkerImage draws a checkerboard marker of side size at (mx, my) on
// a flat gray background.
func createMarkerImage(width, height, mx, my, size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	square := size / 4
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{128, 128, 128, 255}
			if x >= mx && x < mx+size && y >= my && y < my+size {
				if ((x-mx)/square+(y-my)/square)%2 == 0 {
					c = color.RGBA{255, 255, 255, 255}
				} else {
					c = color.RGBA{0, 0, 0, 255}
				}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestNew(t *testing.T) {
	detector := New()
	if detector == nil {
		t.Fatal("New() returned nil")
	}
	if detector.config.MaxDimension != 512 {
		t.Errorf("Expected max dimension 512, got %d", detector.config.MaxDimension)
	}
}

func TestRegionCenter(t *testing.T) {
	r := Region{X: 10, Y: 20, Width: 100, Height: 50}
	x, y := r.Center()
	if x != 60 || y != 45 {
		t.Errorf("Center() = (%d, %d), want (60, 45)", x, y)
	}
	if r.Area() != 5000 {
		t.Errorf("Area() = %d, want 5000", r.Area())
	}
}

func TestLocateMarker(t *testing.T) {
	img := createMarkerImage(200, 200, 120, 40, 20)

	res, err := New().Locate(context.Background(), img, "checkerboard")
	if err != nil {
		t.Fatal(err)
	}
	if res.Fallback {
		t.Fatalf("unexpected fallback: %s", res.Description)
	}

	box := res.Reference.Box
	const tol = 0.03
	if math.Abs(box.X-0.6) > tol || math.Abs(box.Y-0.2) > tol || math.Abs(box.W-0.1) > tol || math.Abs(box.H-0.1) > tol {
		t.Errorf("box %+v, want about {0.6 0.2 0.1 0.1}", box)
	}
	if c := res.Reference.Confidence; c <= 0 || c > 1 {
		t.Errorf("confidence %g outside (0, 1]", c)
	}
}

func TestLocateFlatFrame(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 120, 120))
	for i := range img.Pix {
		img.Pix[i] = 90
	}
	res, err := New().Locate(context.Background(), img, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Fallback {
		t.Errorf("expected fallback on a flat frame, got %+v", res.Reference)
	}
}

func TestLocateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().Locate(ctx, createMarkerImage(50, 50, 10, 10, 20), ""); err == nil {
		t.Error("expected error on a canceled context")
	}
}

func TestDetectSubjectsDownscaled(t *testing.T) {
	img := createMarkerImage(1024, 1024, 600, 200, 100)

	regions, err := New().DetectSubjects(img)
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) == 0 {
		t.Fatal("no regions")
	}
	cx, cy := regions[0].Center()
	if cx < 590 || cx > 710 || cy < 190 || cy > 310 {
		t.Errorf("best region centered at (%d, %d), want inside the marker", cx, cy)
	}
	for i := 1; i < len(regions); i++ {
		if regions[i].Score > regions[i-1].Score {
			t.Errorf("regions not sorted by score at %d", i)
		}
	}
}

func TestDetectSubjectsTooSmall(t *testing.T) {
	if _, err := New().DetectSubjects(image.NewGray(image.Rect(0, 0, 2, 2))); err == nil {
		t.Error("expected error for a 2x2 frame")
	}
}

func BenchmarkLocate(b *testing.B) {
	img := createMarkerImage(1920, 1080, 900, 500, 60)
	d := New()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Locate(ctx, img, "")
	}
}

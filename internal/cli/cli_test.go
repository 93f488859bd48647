package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	videoaltitude "github.com/menta2k/video-altitude"
	"github.com/menta2k/video-altitude/internal/config"
	"github.com/menta2k/video-altitude/internal/history"
	"github.com/menta2k/video-altitude/internal/server"
	"github.com/menta2k/video-altitude/pkg/camera"
	"github.com/menta2k/video-altitude/pkg/frame"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/selection"
	"github.com/menta2k/video-altitude/pkg/types"
	"github.com/menta2k/video-altitude/pkg/validation"
)

type stubLocator struct {
	result *types.AnalysisResult
	hints  []string
}

func (s *stubLocator) Locate(ctx context.Context, img image.Image, hint string) (*types.AnalysisResult, error) {
	s.hints = append(s.hints, hint)
	return s.result, nil
}

type describingLocator struct {
	stubLocator
}

func (d *describingLocator) Describe(ctx context.Context, img image.Image) (string, error) {
	return "a field with a marker", nil
}

func boxLocator(b types.Box) *stubLocator {
	return &stubLocator{result: &types.AnalysisResult{
		Reference: types.Detection{Label: "marker", Confidence: 0.8, Box: b},
	}}
}

type extractCall struct {
	video  string
	frame  int
	at     float64
	byTime bool
	out    string
}

type fakeExtractor struct {
	info  frame.VideoInfo
	calls []extractCall
}

func (f *fakeExtractor) Available() error { return nil }

func (f *fakeExtractor) Probe(ctx context.Context, videoPath string) (frame.VideoInfo, error) {
	info := f.info
	info.Path = videoPath
	return info, nil
}

func (f *fakeExtractor) ExtractFrame(ctx context.Context, videoPath string, frameNumber int, outPath string) (string, error) {
	f.calls = append(f.calls, extractCall{video: videoPath, frame: frameNumber, out: outPath})
	return outPath, writePNG(outPath, 400, 300)
}

func (f *fakeExtractor) ExtractFrameAt(ctx context.Context, videoPath string, seconds float64, outPath string) (string, error) {
	f.calls = append(f.calls, extractCall{video: videoPath, at: seconds, byTime: true, out: outPath})
	return outPath, writePNG(outPath, 400, 300)
}

// testEnv is a Root wired to fakes and a config file in a temp dir
type testEnv struct {
	t         *testing.T
	root      *Root
	cfgPath   string
	dir       string
	extractor *fakeExtractor
	served    *server.Options
}

func newTestEnv(t *testing.T, loc selection.Locator, edit func(*config.Config)) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.History.Path = filepath.Join(dir, "history.db")
	cfg.Logging.Level = "error"
	if edit != nil {
		edit(cfg)
	}
	cfgPath := filepath.Join(dir, "config.json")
	if err := cfg.SaveToFile(cfgPath); err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		t:         t,
		cfgPath:   cfgPath,
		dir:       dir,
		extractor: &fakeExtractor{info: frame.VideoInfo{Width: 400, Height: 300, FPS: 30, FrameCount: 300, Duration: 10}},
	}
	if loc == nil {
		loc = &stubLocator{result: &types.AnalysisResult{Fallback: true}}
	}
	r := NewRoot()
	r.newLocator = func(*config.Config, *slog.Logger) (selection.Locator, error) { return loc, nil }
	r.newExtractor = func(*config.Config, *slog.Logger) frameExtractor { return env.extractor }
	r.serveFn = func(ctx context.Context, opts server.Options) error {
		env.served = &opts
		return nil
	}
	env.root = r
	return env
}

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	e.t.Helper()
	cmd := newRootCmd(e.root)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", e.cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writePNG(path string, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{64, 64, 64, 255})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func TestEstimateWithPixelSize(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	out, err := env.run("", "estimate", "--real-size", "15", "--pixel-size", "43.4")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	for _, want := range []string{"DJI Mini 3 Pro", "traditional", "924.22 cm", "9.24 m"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEstimateJSONWithPrediction(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	out, err := env.run("", "estimate", "-r", "15", "-p", "43.4", "--grid-cm", "50", "--json")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	var got estimateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if got.Measurement.ImageWidthPx != 3840 {
		t.Errorf("width should default to the camera width, got %d", got.Measurement.ImageWidthPx)
	}
	if got.Result.Method != geometry.Traditional {
		t.Errorf("method = %v", got.Result.Method)
	}
	if got.Prediction == nil || got.Prediction.Altitude != 924 || got.Prediction.DebugGridCM != 50 {
		t.Errorf("unexpected prediction: %+v", got.Prediction)
	}
	if got.RecordID != "" {
		t.Error("estimate recorded with history disabled")
	}
}

func TestEstimateWithPoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	out, err := env.run("", "estimate", "-r", "15", "--points", "0,0; 30,40; 10,10", "--width", "1000", "--json")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	var got estimateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Measurement.PixelSizePx != 50 {
		t.Errorf("pixel size = %v, want 50", got.Measurement.PixelSizePx)
	}
	if got.Measurement.ImageWidthPx != 1000 {
		t.Errorf("width = %d, want 1000", got.Measurement.ImageWidthPx)
	}
}

func TestEstimateFromFrameRecordsHistory(t *testing.T) {
	loc := boxLocator(types.Box{X: 0.5, Y: 0.5, W: 0.25, H: 0.1})
	env := newTestEnv(t, loc, func(c *config.Config) { c.Vision.Hint = "15 cm marker" })
	framePath := filepath.Join(env.dir, "frame.png")
	if err := writePNG(framePath, 400, 300); err != nil {
		t.Fatal(err)
	}

	out, err := env.run("", "estimate", framePath, "-r", "15", "--record", "--json")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	var got estimateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Selection == nil || got.Selection.PixelSizePx != 100 {
		t.Fatalf("unexpected selection: %+v", got.Selection)
	}
	if got.Measurement.ImageWidthPx != 400 {
		t.Errorf("width should come from the frame, got %d", got.Measurement.ImageWidthPx)
	}
	// 0.15 cm/px * 6.72 * 400 / 9.65
	if d := got.Result.AltitudeCM - 41.78; d > 0.01 || d < -0.01 {
		t.Errorf("altitude = %.2f", got.Result.AltitudeCM)
	}
	if len(loc.hints) != 1 || loc.hints[0] != "15 cm marker" {
		t.Errorf("hint from config not passed: %v", loc.hints)
	}
	if got.RecordID == "" {
		t.Fatal("no record id")
	}

	out, err = env.run("", "history", "--json")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	var records []history.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != got.RecordID || records[0].Source != framePath {
		t.Errorf("unexpected history: %+v", records)
	}
	if records[0].Confidence == nil || *records[0].Confidence != 0.8 {
		t.Error("confidence not recorded")
	}

	out, err = env.run("", "history", got.RecordID)
	if err != nil {
		t.Fatalf("history get failed: %v", err)
	}
	if !strings.Contains(out, got.RecordID) {
		t.Errorf("record not printed:\n%s", out)
	}
}

func TestEstimateFromMask(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	maskPath := filepath.Join(env.dir, "mask.png")
	mask := image.NewGray(image.Rect(0, 0, 200, 100))
	for y := 10; y < 20; y++ {
		for x := 50; x < 80; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	f, err := os.Create(maskPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, mask); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := env.run("", "estimate", "-r", "15", "--mask", maskPath, "--json")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	var got estimateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Measurement.PixelSizePx < 29.5 || got.Measurement.PixelSizePx > 30.5 {
		t.Errorf("pixel size = %v, want about 30", got.Measurement.PixelSizePx)
	}
	if got.Measurement.ImageWidthPx != 200 {
		t.Errorf("width should come from the mask, got %d", got.Measurement.ImageWidthPx)
	}
}

func TestEstimateMaskScaledToFrame(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	framePath := filepath.Join(env.dir, "frame.png")
	if err := writePNG(framePath, 400, 200); err != nil {
		t.Fatal(err)
	}
	// half resolution mask, the object is 30 mask px or 60 frame px wide
	maskPath := filepath.Join(env.dir, "mask.png")
	mask := image.NewGray(image.Rect(0, 0, 200, 100))
	for y := 10; y < 20; y++ {
		for x := 50; x < 80; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	f, err := os.Create(maskPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, mask); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := env.run("", "estimate", framePath, "-r", "15", "--mask", maskPath, "--json")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	var got estimateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Measurement.ImageWidthPx != 400 {
		t.Errorf("width should come from the frame, got %d", got.Measurement.ImageWidthPx)
	}
	if got.Measurement.PixelSizePx < 59.5 || got.Measurement.PixelSizePx > 60.5 {
		t.Errorf("pixel size = %v, want about 60 frame px", got.Measurement.PixelSizePx)
	}
	// 0.25 cm/px * 6.72 * 400 / 9.65
	if d := got.Result.AltitudeCM - 69.64; d > 0.05 || d < -0.05 {
		t.Errorf("altitude = %.2f, want 69.64", got.Result.AltitudeCM)
	}
}

func TestEstimateErrors(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown camera", []string{"-c", "Hasselblad", "-r", "15", "-p", "43"}, camera.ErrUnknownCamera},
		{"fov not set", []string{"-m", "fov", "-r", "15", "-p", "43"}, geometry.ErrInvalidCameraProfile},
		{"no sensor width", []string{"-c", camera.GoPro12, "-r", "15", "-p", "43"}, geometry.ErrInvalidCameraProfile},
		{"zero real size", []string{"-r", "0", "-p", "43"}, geometry.ErrInvalidMeasurement},
		{"negative pixels", []string{"-r", "15", "-p", "-4"}, geometry.ErrInvalidMeasurement},
		{"nothing to measure", []string{"-r", "15"}, geometry.ErrInvalidMeasurement},
		{"single point", []string{"-r", "15", "--points", "1,1"}, selection.ErrNoReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run("", append([]string{"estimate"}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := env.run("", "estimate", "-m", "sideways", "-r", "15", "-p", "43"); err == nil {
		t.Error("expected error for an unknown method")
	}
	if _, err := env.run("", "estimate", "-r", "15", "--points", "1,x"); err == nil {
		t.Error("expected error for a malformed point")
	}
}

func TestEstimateCompare(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) {
		fov := 82.1
		c.Camera.Profiles = []geometry.CameraProfile{{
			Name: "Survey Rig", FocalLengthMM: 6.72, SensorWidthMM: 9.65, FieldOfViewDeg: &fov,
			ImageWidthPx: 3840, ImageHeightPx: 2160,
		}}
	})

	out, err := env.run("", "estimate", "-c", "Survey Rig", "-r", "15", "-p", "43.4", "--compare")
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	for _, want := range []string{"Traditional:", "FOV:", "Difference:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := env.run("", "estimate", "-r", "15", "-p", "43.4", "--compare"); !errors.Is(err, geometry.ErrInvalidCameraProfile) {
		t.Errorf("compare without a FOV should fail, got %v", err)
	}
}

func TestValidateCmd(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	objects := []validation.ReferenceObject{
		{Name: "A", Position: "top left", RealLengthCM: 15, RealWidthCM: 15, PixelLengthPx: 43.4, PixelWidthPx: 43.2},
		{Name: "B", Position: "center", RealLengthCM: 15, RealWidthCM: 15, PixelLengthPx: 43.0, PixelWidthPx: 43.6},
		{Name: "C", Position: "bottom right", RealLengthCM: 15, RealWidthCM: 15, PixelLengthPx: 43.8, PixelWidthPx: 43.1},
	}
	data, err := json.Marshal(objects)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(env.dir, "objects.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	out, err := env.run("", "validate", path, "--json")
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	var report validation.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Count != 3 || len(report.Entries) != 3 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.OutlierSigma != validation.DefaultOutlierSigma {
		t.Errorf("sigma should default from config, got %v", report.OutlierSigma)
	}

	out, err = env.run(string(data), "validate", "-", "--sigma", "3")
	if err != nil {
		t.Fatalf("validate from stdin failed: %v", err)
	}
	for _, want := range []string{"OBJECT", "top left", "Precision: excellent"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := env.run(`[{"name": "A"`, "validate", "-"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestSensitivityCmd(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) { c.Sensitivity.Grid = []float64{-5, 5} })

	out, err := env.run("", "sensitivity", "-r", "15", "-p", "43.4", "--json")
	if err != nil {
		t.Fatalf("sensitivity failed: %v", err)
	}
	var report validation.SensitivityReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if len(report.Steps) != 4 {
		t.Errorf("expected ±1 and the config grid, got %d steps", len(report.Steps))
	}

	out, err = env.run("", "sensitivity", "-r", "15", "-p", "43.4", "--pixel-error", "2", "--grid", "-50")
	if err != nil {
		t.Fatalf("sensitivity failed: %v", err)
	}
	for _, want := range []string{"Largest change:", "-2.0", "skipped -50.0 px"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "+5.0") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestCamerasCmd(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	out, err := env.run("", "cameras")
	if err != nil {
		t.Fatalf("cameras failed: %v", err)
	}
	for _, want := range []string{camera.DJIMini3Pro, camera.IPhone14, "(default)", "sensor width:  unknown"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run("", "cameras", camera.DJIMiniSE2, "--json")
	if err != nil {
		t.Fatalf("cameras failed: %v", err)
	}
	var profiles []geometry.CameraProfile
	if err := json.Unmarshal([]byte(out), &profiles); err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].FocalLengthMM != 4.49 {
		t.Errorf("unexpected profiles: %+v", profiles)
	}

	if _, err := env.run("", "cameras", "Nope"); !errors.Is(err, camera.ErrUnknownCamera) {
		t.Errorf("expected ErrUnknownCamera, got %v", err)
	}
}

func TestFrameCmd(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	out, err := env.run("", "frame", "DJI_0365.mp4", "--info")
	if err != nil {
		t.Fatalf("frame --info failed: %v", err)
	}
	if !strings.Contains(out, "400x300") || !strings.Contains(out, "[0 75 150 225 299]") {
		t.Errorf("unexpected info:\n%s", out)
	}
	if len(env.extractor.calls) != 0 {
		t.Error("--info extracted a frame")
	}

	out, err = env.run("", "frame", "DJI_0365.mp4", "--frame", "10")
	if err != nil {
		t.Fatalf("frame failed: %v", err)
	}
	if !strings.Contains(out, "Frame 10 (400x300)") {
		t.Errorf("unexpected output:\n%s", out)
	}
	want := filepath.Join(env.dir, "out", "DJI_0365_frame_0010.jpg")
	if c := env.extractor.calls[0]; c.byTime || c.frame != 10 || c.out != want {
		t.Errorf("unexpected call: %+v", c)
	}

	if _, err := env.run("", "frame", "DJI_0365.mp4", "--time", "2"); err != nil {
		t.Fatalf("frame --time failed: %v", err)
	}
	want = filepath.Join(env.dir, "out", "DJI_0365_frame_0060.jpg")
	if c := env.extractor.calls[1]; !c.byTime || c.at != 2 || c.out != want {
		t.Errorf("unexpected call: %+v", c)
	}

	if _, err := env.run("", "frame", "DJI_0365.mp4", "--frame", "1", "--time", "2"); err == nil {
		t.Error("--frame and --time together should fail")
	}
	if _, err := env.run("", "frame", "still.jpg"); err == nil || !strings.Contains(err.Error(), "already a frame") {
		t.Errorf("expected an error for an image, got %v", err)
	}
	if _, err := env.run("", "estimate", "DJI_0365.mp4", "-r", "15"); err == nil || !strings.Contains(err.Error(), "is a video") {
		t.Errorf("expected an error for a video, got %v", err)
	}
}

func TestFrameDescribe(t *testing.T) {
	env := newTestEnv(t, &describingLocator{}, nil)
	out, err := env.run("", "frame", "v.mp4", "-o", filepath.Join(env.dir, "f.png"), "--describe")
	if err != nil {
		t.Fatalf("frame --describe failed: %v", err)
	}
	if !strings.Contains(out, "a field with a marker") {
		t.Errorf("description missing:\n%s", out)
	}

	env = newTestEnv(t, nil, nil)
	_, err = env.run("", "frame", "v.mp4", "-o", filepath.Join(env.dir, "f.png"), "--describe")
	if err == nil || !strings.Contains(err.Error(), "cannot describe") {
		t.Errorf("expected describe error, got %v", err)
	}
}

func TestGridCmd(t *testing.T) {
	loc := boxLocator(types.Box{X: 0.25, Y: 0.25, W: 0.1, H: 0.1})
	env := newTestEnv(t, loc, nil)
	framePath := filepath.Join(env.dir, "frame.png")
	if err := writePNG(framePath, 400, 300); err != nil {
		t.Fatal(err)
	}

	out, err := env.run("", "grid", framePath, "-r", "15", "-p", "20", "--grid-cm", "30")
	if err != nil {
		t.Fatalf("grid failed: %v", err)
	}
	if !strings.Contains(out, "0.7500 cm/px") || !strings.Contains(out, "30 cm squares of 40.0 px") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "out", "frame_grid.png")); err != nil {
		t.Errorf("overlay not saved: %v", err)
	}
	if len(loc.hints) != 0 {
		t.Error("locator ran with an explicit pixel size")
	}

	out, err = env.run("", "grid", framePath, "-r", "15", "--loupe")
	if err != nil {
		t.Fatalf("grid --loupe failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "out", "frame_loupe.png")); err != nil {
		t.Errorf("loupe not saved: %v\n%s", err, out)
	}

	if _, err := env.run("", "grid", framePath, "--gsd", "0.5", "--grid-cm", "-1"); !errors.Is(err, geometry.ErrInvalidMeasurement) {
		t.Errorf("expected ErrInvalidMeasurement, got %v", err)
	}
}

func TestInteractiveCmd(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	input := strings.Join([]string{
		"7",    // out of range
		"1",    // DJI Mini 3 Pro
		"abc",  // not a number
		"15",   // real size
		"43.4", // pixels
		"",     // camera width
		"",     // config method
		"50",   // grid
	}, "\n") + "\n"

	out, err := env.run(input, "interactive")
	if err != nil {
		t.Fatalf("interactive failed: %v\n%s", err, out)
	}
	for _, want := range []string{"unknown camera", `"abc" is not a positive number`, "924.22 cm", `"altitude": 924`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInteractivePoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	input := "DJI Mini 3 Pro\n15\n0,0;30,40\n1000\ntraditional\n\n"

	out, err := env.run(input, "interactive")
	if err != nil {
		t.Fatalf("interactive failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "over 50.00 px (frame width 1000 px)") {
		t.Errorf("points not measured:\n%s", out)
	}
}

func TestInteractiveWidthReprompts(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	input := "1\n15\n43.4\n0.5\n3840\n\n\n"

	out, err := env.run(input, "interactive")
	if err != nil {
		t.Fatalf("interactive failed: %v\n%s", err, out)
	}
	for _, want := range []string{`"0.5" is not a whole number of pixels`, "924.22 cm"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInteractiveEOF(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if _, err := env.run("1\n15\n", "interactive"); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestServeCmd(t *testing.T) {
	env := newTestEnv(t, nil, func(c *config.Config) { c.Server.WatchConfig = true })

	if _, err := env.run("", "serve", "--addr", "127.0.0.1:9999"); err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	if env.served == nil {
		t.Fatal("server not started")
	}
	if env.served.Addr != "127.0.0.1:9999" || !env.served.Watch || env.served.ConfigPath != env.cfgPath {
		t.Errorf("unexpected options: %+v", env.served)
	}
	if env.served.Store != nil {
		t.Error("history store opened while disabled")
	}

	if _, err := env.run("", "serve", "--watch=false"); err != nil {
		t.Fatal(err)
	}
	if env.served.Watch || env.served.Addr != ":8088" {
		t.Errorf("unexpected options: %+v", env.served)
	}
}

func TestConfigCmds(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	path := filepath.Join(env.dir, "nested", "new.json")

	out, err := env.run("", "config", "init", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("unexpected output: %s", out)
	}
	if _, err := config.LoadFromFile(path); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
	if _, err := env.run("", "config", "init", path); err == nil {
		t.Error("expected error when the file exists")
	}
	if _, err := env.run("", "config", "init", path, "--force"); err != nil {
		t.Errorf("--force failed: %v", err)
	}

	out, err = env.run("", "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, env.cfgPath) || !strings.Contains(out, `"method": "traditional"`) {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestBadConfig(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	if err := os.WriteFile(env.cfgPath, []byte(`{"method": "sideways"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.run("", "cameras"); err == nil {
		t.Error("expected error for an invalid config")
	}
	if _, err := env.run("", "version"); err != nil {
		t.Errorf("version should not need a config: %v", err)
	}
}

func TestVersionCmd(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	out, err := env.run("", "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "video-altitude "+videoaltitude.Version) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestParsePoints(t *testing.T) {
	pts, err := parsePoints(" 1,2 ;3, 4;")
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[0] != image.Pt(1, 2) || pts[1] != image.Pt(3, 4) {
		t.Errorf("unexpected points: %v", pts)
	}
	for _, bad := range []string{"1", "1,2,3", "a,b"} {
		if _, err := parsePoints(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

// Package cli implements the video-altitude command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	videoaltitude "github.com/menta2k/video-altitude"
	"github.com/menta2k/video-altitude/internal/config"
	"github.com/menta2k/video-altitude/internal/history"
	"github.com/menta2k/video-altitude/internal/logging"
	"github.com/menta2k/video-altitude/internal/server"
	"github.com/menta2k/video-altitude/internal/utils"
	"github.com/menta2k/video-altitude/pkg/frame"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/llamacpp"
	"github.com/menta2k/video-altitude/pkg/ollama"
	"github.com/menta2k/video-altitude/pkg/selection"
	"github.com/menta2k/video-altitude/pkg/types"
	"github.com/menta2k/video-altitude/pkg/vision"
)

const defaultOllamaURL = "http://localhost:11434"

// frameExtractor is the part of frame.Extractor the commands use
type frameExtractor interface {
	Available() error
	Probe(ctx context.Context, videoPath string) (frame.VideoInfo, error)
	ExtractFrame(ctx context.Context, videoPath string, frameNumber int, outPath string) (string, error)
	ExtractFrameAt(ctx context.Context, videoPath string, seconds float64, outPath string) (string, error)
}

type serveFunc func(ctx context.Context, opts server.Options) error

// Root holds state shared by all commands. It is filled in by setup before
// any command runs.
type Root struct {
	cfgPath   string
	logLevel  string
	logFormat string

	cfg     *config.Config
	log     *slog.Logger
	est     *videoaltitude.Estimator
	locator selection.Locator

	// overridable in tests
	newExtractor func(cfg *config.Config, log *slog.Logger) frameExtractor
	newLocator   func(cfg *config.Config, log *slog.Logger) (selection.Locator, error)
	serveFn      serveFunc
}

// NewRoot creates a Root with the production collaborators
func NewRoot() *Root {
	return &Root{
		newExtractor: defaultExtractor,
		newLocator:   defaultLocator,
		serveFn:      defaultServe,
	}
}

// setup loads the configuration and builds the logger and estimator. An
// explicit --config must exist; the default path is optional.
func (r *Root) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case r.cfgPath != "":
		cfg, err = config.LoadFromFile(r.cfgPath)
	case utils.FileExists(config.GetConfigPath()):
		r.cfgPath = config.GetConfigPath()
		cfg, err = config.LoadFromFile(r.cfgPath)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return err
	}

	if r.logLevel != "" {
		cfg.Logging.Level = r.logLevel
	}
	if r.logFormat != "" {
		cfg.Logging.Format = r.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	r.cfg = cfg
	r.log = logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	locator, err := r.newLocator(cfg, r.log)
	if err != nil {
		return err
	}
	r.locator = locator
	r.est = videoaltitude.NewWithConfig(videoaltitude.Options{
		Registry: reg,
		Frame: &frame.Config{
			SupportedFormats: []string{"jpeg", "png", "webp"},
			MinFrameSize:     cfg.Frame.MinFrameSize,
		},
		Locator: locator,
	})
	return nil
}

func defaultExtractor(cfg *config.Config, log *slog.Logger) frameExtractor {
	e := frame.NewExtractor(log)
	e.FFmpeg = cfg.Frame.FFmpeg
	e.FFprobe = cfg.Frame.FFprobe
	return e
}

// defaultLocator picks the locator for the configured vision backend
func defaultLocator(cfg *config.Config, log *slog.Logger) (selection.Locator, error) {
	v := cfg.Vision
	opts := types.ModelOptions{
		Model:      v.Model,
		SendFormat: v.SendFormat,
		SendSize:   v.SendSize,
		SendQ:      v.SendQuality,
	}

	switch v.Backend {
	case config.BackendSaliency:
		return vision.New(), nil
	case config.BackendOllama:
		url := v.URL
		if url == "" {
			url = defaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return selection.NewModelLocator(c, opts, log), nil
	case config.BackendLlamaCpp:
		url := v.URL
		if url == "" {
			url = llamacpp.DefaultURL
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return selection.NewModelLocator(c, opts, log), nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", v.Backend)
	}
}

func defaultServe(ctx context.Context, opts server.Options) error {
	s, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return s.Start(ctx)
}

// openFrame loads a still frame from a path or URL. Videos are rejected with
// a pointer to the frame command.
func (r *Root) openFrame(ctx context.Context, source string) (image.Image, error) {
	if utils.IsVideoFile(source) {
		return nil, fmt.Errorf("%s is a video, extract a frame first with 'video-altitude frame %s'", source, source)
	}
	return r.est.OpenFrame(ctx, source)
}

// profile resolves --camera, falling back to the configured default
func (r *Root) profile(name string) (geometry.CameraProfile, error) {
	if name == "" {
		name = r.cfg.Camera.Default
	}
	return r.est.Camera(name)
}

// method resolves --method, falling back to the configured method
func (r *Root) method(name string) (geometry.Method, error) {
	if name == "" {
		return r.cfg.Method, nil
	}
	return geometry.ParseMethod(name)
}

// imageWidth uses the explicit width, then the frame width, then the
// camera's native width.
func imageWidth(flag, frameWidth int, p geometry.CameraProfile) int {
	switch {
	case flag > 0:
		return flag
	case frameWidth > 0:
		return frameWidth
	default:
		return p.ImageWidthPx
	}
}

// openHistory returns nil when history is disabled and force is false
func (r *Root) openHistory(force bool) (*history.Store, error) {
	if !r.cfg.History.Enabled && !force {
		return nil, nil
	}
	if err := utils.EnsureDir(filepath.Dir(r.cfg.History.Path)); err != nil {
		return nil, err
	}
	return history.New(r.cfg.History.Path)
}

// parsePoints reads "x1,y1;x2,y2;..." pixel coordinates
func parsePoints(s string) ([]image.Point, error) {
	var pts []image.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("invalid point %q (want x,y)", pair)
		}
		x, errX := strconv.Atoi(strings.TrimSpace(xy[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(xy[1]))
		if err := errors.Join(errX, errY); err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", pair, err)
		}
		pts = append(pts, image.Point{X: x, Y: y})
	}
	return pts, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProfile(w io.Writer, p geometry.CameraProfile) {
	fmt.Fprintf(w, "%s\n", p.Name)
	fmt.Fprintf(w, "  focal length:  %.2f mm", p.FocalLengthMM)
	if f35, ok := geometry.FocalLength35mm(p); ok {
		fmt.Fprintf(w, " (%.1f mm equivalent)", f35)
	}
	fmt.Fprintln(w)
	if p.SensorWidthMM > 0 {
		fmt.Fprintf(w, "  sensor width:  %.2f mm\n", p.SensorWidthMM)
	} else {
		fmt.Fprintf(w, "  sensor width:  unknown\n")
	}
	if p.HasFOV() {
		fmt.Fprintf(w, "  field of view: %.1f°\n", *p.FieldOfViewDeg)
	} else {
		fmt.Fprintf(w, "  field of view: not set\n")
	}
	if p.ImageWidthPx > 0 {
		fmt.Fprintf(w, "  resolution:    %dx%d\n", p.ImageWidthPx, p.ImageHeightPx)
	}
}

func printResult(w io.Writer, cameraName string, m geometry.Measurement, res geometry.AltitudeResult) {
	gsd := geometry.GSDResult{GSDCmPerPx: res.GSDCmPerPx}
	fmt.Fprintf(w, "Camera:      %s\n", cameraName)
	fmt.Fprintf(w, "Method:      %s\n", res.Method)
	fmt.Fprintf(w, "Reference:   %.2f cm over %.2f px (frame width %d px)\n", m.RealSizeCM, m.PixelSizePx, m.ImageWidthPx)
	fmt.Fprintf(w, "GSD:         %.4f cm/px (%.3f mm/px)\n", gsd.GSDCmPerPx, gsd.MMPerPx())
	fmt.Fprintf(w, "Altitude:    %.2f cm (%.2f m)\n", res.AltitudeCM, res.Meters())
}

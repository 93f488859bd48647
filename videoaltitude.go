// Package videoaltitude estimates the altitude of a camera from a reference
// object of known size visible in one of its frames.
//
// The object's real size and its size in pixels give the ground sample
// distance (GSD). A pinhole model then turns the GSD into an altitude using
// either the physical optics of the camera or its horizontal field of view.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//
//		videoaltitude "github.com/menta2k/video-altitude"
//		"github.com/menta2k/video-altitude/pkg/camera"
//		"github.com/menta2k/video-altitude/pkg/geometry"
//	)
//
//	func main() {
//		est := videoaltitude.New()
//
//		res, err := est.Estimate(camera.DJIMini3Pro, geometry.Measurement{
//			RealSizeCM:   15,
//			PixelSizePx:  43.4,
//			ImageWidthPx: 3840,
//		}, geometry.Traditional)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("altitude: %.2f m (GSD %.4f cm/px)\n", res.Meters(), res.GSDCmPerPx)
//	}
//
// The package ties together:
//
//  1. Geometry (pkg/geometry): the GSD and altitude formulas
//  2. Camera (pkg/camera): the registry of camera profiles
//  3. Validation (pkg/validation): cross-checks and pixel-error sensitivity
//  4. Frame, processing and selection (pkg/frame, pkg/processing, pkg/selection):
//     loading a frame and finding the reference object in it
package videoaltitude

import (
	"context"
	"fmt"
	"image"
	"io"

	"github.com/menta2k/video-altitude/pkg/camera"
	"github.com/menta2k/video-altitude/pkg/frame"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/processing"
	"github.com/menta2k/video-altitude/pkg/selection"
	"github.com/menta2k/video-altitude/pkg/types"
	"github.com/menta2k/video-altitude/pkg/validation"
	"github.com/menta2k/video-altitude/pkg/vision"
)

// Version of the video altitude library
const Version = "1.0.0"

// Estimator provides a high-level interface over the altitude core and the
// frame adapters.
type Estimator struct {
	registry  *camera.Registry
	inspector *frame.Inspector
	processor *processing.Processor
	locator   selection.Locator
}

// Options configures NewWithConfig. Zero fields take the defaults used by New.
type Options struct {
	Registry *camera.Registry
	Frame    *frame.Config
	Locator  selection.Locator
}

// New creates an Estimator with the built-in camera presets and the offline
// saliency locator.
func New() *Estimator {
	return NewWithConfig(Options{})
}

// NewWithConfig creates an Estimator with custom components
func NewWithConfig(opts Options) *Estimator {
	e := &Estimator{
		registry:  opts.Registry,
		inspector: frame.New(),
		processor: processing.NewProcessor(),
		locator:   opts.Locator,
	}
	if e.registry == nil {
		e.registry = camera.Default()
	}
	if opts.Frame != nil {
		e.inspector = frame.NewWithConfig(*opts.Frame)
	}
	if e.locator == nil {
		e.locator = vision.New()
	}
	return e
}

// ImageEstimate is the outcome of EstimateFromImage
type ImageEstimate struct {
	Camera    string                  `json:"camera"`
	Selection types.Selection         `json:"selection"`
	Result    geometry.AltitudeResult `json:"result"`
}

// Registry returns the camera registry in use
func (e *Estimator) Registry() *camera.Registry {
	return e.registry
}

// Camera looks up a profile by name
func (e *Estimator) Camera(name string) (geometry.CameraProfile, error) {
	return e.registry.Lookup(name)
}

// Estimate computes the altitude of one measurement with the named camera
// and an explicitly chosen method.
func (e *Estimator) Estimate(cameraName string, m geometry.Measurement, method geometry.Method) (geometry.AltitudeResult, error) {
	p, err := e.registry.Lookup(cameraName)
	if err != nil {
		return geometry.AltitudeResult{}, err
	}
	return geometry.Estimate(m, p, method)
}

// Compare runs both methods for a camera that defines focal length, sensor
// width and field of view.
func (e *Estimator) Compare(cameraName string, m geometry.Measurement) (geometry.Comparison, error) {
	p, err := e.registry.Lookup(cameraName)
	if err != nil {
		return geometry.Comparison{}, err
	}
	return geometry.CompareMethods(m, p)
}

// LoadFrame loads a still frame from file
func (e *Estimator) LoadFrame(path string) (image.Image, error) {
	return e.inspector.LoadFrame(path)
}

// LoadFrameFromReader loads a still frame from an io.Reader
func (e *Estimator) LoadFrameFromReader(r io.Reader) (image.Image, error) {
	return e.inspector.LoadFrameFromReader(r)
}

// OpenFrame loads a still frame from a local path or an http(s) URL
func (e *Estimator) OpenFrame(ctx context.Context, source string) (image.Image, error) {
	return e.processor.LoadImageSmart(ctx, source)
}

// FrameInfo returns the dimensions of img
func (e *Estimator) FrameInfo(img image.Image) frame.Info {
	return e.inspector.Info(img)
}

// Locate finds the reference object in img without computing an altitude
func (e *Estimator) Locate(ctx context.Context, img image.Image, hint string) (types.Selection, error) {
	if err := e.inspector.Validate(img); err != nil {
		return types.Selection{}, fmt.Errorf("frame validation failed: %w", err)
	}
	res, err := e.locator.Locate(ctx, img, hint)
	if err != nil {
		return types.Selection{}, fmt.Errorf("reference location failed: %w", err)
	}
	b := img.Bounds()
	return selection.Measure(res, b.Dx(), b.Dy())
}

// EstimateFromImage locates the reference object in img and estimates the
// altitude from its pixel size. The frame width is the measurement's image
// width.
func (e *Estimator) EstimateFromImage(ctx context.Context, img image.Image, realSizeCM float64, cameraName string, method geometry.Method, hint string) (*ImageEstimate, error) {
	p, err := e.registry.Lookup(cameraName)
	if err != nil {
		return nil, err
	}
	// reject a bad real size before running the locator
	if _, err := geometry.ComputeGSD(realSizeCM, 1); err != nil {
		return nil, err
	}

	sel, err := e.Locate(ctx, img, hint)
	if err != nil {
		return nil, err
	}

	res, err := geometry.Estimate(geometry.Measurement{
		RealSizeCM:   realSizeCM,
		PixelSizePx:  sel.PixelSizePx,
		ImageWidthPx: sel.FrameWidth,
	}, p, method)
	if err != nil {
		return nil, err
	}
	return &ImageEstimate{Camera: p.Name, Selection: sel, Result: res}, nil
}

// Validate cross-checks several reference objects
func (e *Estimator) Validate(samples []validation.Sample, opts validation.Options) (*validation.Report, error) {
	return validation.ValidateMultiple(samples, opts)
}

// ValidateObjects resolves each object's camera by name and cross-checks
// them. Every object is measured in a frame imageWidthPx wide.
func (e *Estimator) ValidateObjects(cameraName string, imageWidthPx int, objects []validation.ReferenceObject, opts validation.Options) (*validation.Report, error) {
	p, err := e.registry.Lookup(cameraName)
	if err != nil {
		return nil, err
	}
	samples := make([]validation.Sample, len(objects))
	for i, o := range objects {
		samples[i] = o.Sample(p, imageWidthPx)
	}
	return validation.ValidateMultiple(samples, opts)
}

// Sensitivity sweeps the pixel size of m by ±pixelErrorPx and the offsets in
// opts.Grid.
func (e *Estimator) Sensitivity(cameraName string, m geometry.Measurement, pixelErrorPx float64, opts validation.SensitivityOptions) (*validation.SensitivityReport, error) {
	p, err := e.registry.Lookup(cameraName)
	if err != nil {
		return nil, err
	}
	return validation.AnalyzeSensitivity(m, p, pixelErrorPx, opts)
}

// GridOverlay draws a gridCM debug grid at the given GSD over img and
// outlines the reference box when one is given.
func (e *Estimator) GridOverlay(img image.Image, gsdCmPerPx, gridCM float64, reference *types.Box) (image.Image, geometry.Grid, error) {
	grid, err := geometry.DebugGrid(gsdCmPerPx, gridCM)
	if err != nil {
		return nil, geometry.Grid{}, err
	}
	out, err := e.processor.CreateGridOverlay(img, grid, reference)
	if err != nil {
		return nil, geometry.Grid{}, err
	}
	return out, grid, nil
}

// Loupe returns a zoomed crop around box for checking a selection by eye
func (e *Estimator) Loupe(img image.Image, box types.Box, padding, zoom float64) (image.Image, error) {
	return e.processor.CropImageToBox(img, box, padding, zoom)
}

// PredictionRequest carries an altitude estimate to a downstream video
// prediction service. DebugGridCM is a display parameter chosen by the
// caller and has no bearing on the altitude.
type PredictionRequest struct {
	Altitude        int     `json:"altitude"`
	FocalLength     float64 `json:"focal_length"`
	SensorWidth     float64 `json:"sensor_width"`
	DebugGridCM     float64 `json:"debug_grid_cm"`
	FocalLength35mm float64 `json:"focal_length_35mm,omitempty"`
}

// NewPredictionRequest builds a request from an estimate and the profile it
// was computed with. The altitude is truncated to whole centimeters.
func NewPredictionRequest(res geometry.AltitudeResult, p geometry.CameraProfile, debugGridCM float64) (PredictionRequest, error) {
	if res.AltitudeCM <= 0 {
		return PredictionRequest{}, &geometry.FieldError{
			Kind: geometry.ErrInvalidMeasurement, Field: "altitude_cm", Value: res.AltitudeCM, Reason: "must be > 0",
		}
	}
	if debugGridCM <= 0 {
		return PredictionRequest{}, &geometry.FieldError{
			Kind: geometry.ErrInvalidMeasurement, Field: "debug_grid_cm", Value: debugGridCM, Reason: "must be > 0",
		}
	}
	req := PredictionRequest{
		Altitude:    int(res.AltitudeCM),
		FocalLength: p.FocalLengthMM,
		SensorWidth: p.SensorWidthMM,
		DebugGridCM: debugGridCM,
	}
	if f35, ok := geometry.FocalLength35mm(p); ok {
		req.FocalLength35mm = f35
	}
	return req, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

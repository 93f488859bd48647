package selection

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/menta2k/video-altitude/pkg/client"
	"github.com/menta2k/video-altitude/pkg/processing"
	"github.com/menta2k/video-altitude/pkg/types"
)

// DescribePrompt checks that the model can see the frame at all.
const DescribePrompt = `What do you see in this image? Describe it briefly.`

// DefaultHint is used when the caller does not describe the reference object.
const DefaultHint = "a flat object of known size lying on the ground, such as a printed marker, AprilTag or checkerboard"

const locatePrompt = `You are locating a reference object in an aerial video frame.
The reference object is: %s.

Return JSON only:
{
  "reference": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (<= 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box must tightly enclose the reference object only, edge to edge. Do not pad it.
- confidence is your probability that the box contains the described object.
- If the object is not visible, return:
  {"reference":{"label":"none","confidence":0.0,"box":{"x":0,"y":0,"w":0,"h":0}},"description":"reference not found"}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// ModelLocator asks a vision model where the reference object is
type ModelLocator struct {
	client    client.VisionClient
	processor *processing.Processor
	opts      types.ModelOptions
	logger    *slog.Logger
}

// NewModelLocator creates a locator backed by c
func NewModelLocator(c client.VisionClient, opts types.ModelOptions, logger *slog.Logger) *ModelLocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelLocator{
		client:    c,
		processor: processing.NewProcessor(),
		opts:      opts,
		logger:    logger,
	}
}

// Locate implements Locator
func (l *ModelLocator) Locate(ctx context.Context, img image.Image, hint string) (*types.AnalysisResult, error) {
	imgB64, err := l.processor.PrepareImageForModel(img, l.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if strings.TrimSpace(hint) == "" {
		hint = DefaultHint
	}

	l.logger.Info("locating reference object", "model", l.opts.Model, "hint", hint)
	result, err := l.client.LocateReference(ctx, l.opts.Model, fmt.Sprintf(locatePrompt, hint), imgB64)
	if err != nil {
		return nil, fmt.Errorf("vision model: %w", err)
	}

	result.Reference.Box = normalizeBox(result.Reference.Box)
	if result.Fallback {
		l.logger.Warn("model did not find the reference object", "reason", result.Description)
	} else {
		l.logger.Debug("reference located",
			"label", result.Reference.Label,
			"confidence", result.Reference.Confidence,
			"box", result.Reference.Box,
		)
	}
	return result, nil
}

// Describe asks the model for a short description of the frame.
func (l *ModelLocator) Describe(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := l.processor.PrepareImageForModel(img, l.opts)
	if err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return l.client.SimpleQuery(ctx, l.opts.Model, DescribePrompt, imgB64)
}

// normalizeBox clips the box to the unit frame
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

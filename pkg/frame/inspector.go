package frame

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"slices"
	"strings"

	_ "golang.org/x/image/webp"
)

// Inspector loads and checks still frames before they are measured
type Inspector struct {
	config Config
}

// Config holds configuration for the frame inspector
type Config struct {
	SupportedFormats []string
	MinFrameSize     int
}

// Info contains basic frame metadata
type Info struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
}

// New creates an Inspector with default configuration
func New() *Inspector {
	return &Inspector{
		config: Config{
			SupportedFormats: []string{"jpeg", "png", "webp"},
			MinFrameSize:     100,
		},
	}
}

// NewWithConfig creates an Inspector with custom configuration
func NewWithConfig(config Config) *Inspector {
	return &Inspector{config: config}
}

// LoadFrame loads a frame from file
func (i *Inspector) LoadFrame(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()
	return i.LoadFrameFromReader(f)
}

// LoadFrameFromReader decodes a frame from r
func (i *Inspector) LoadFrameFromReader(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if !i.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported frame format: %s", format)
	}
	return img, nil
}

// Info returns the frame dimensions
func (i *Inspector) Info(img image.Image) Info {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	info := Info{Width: w, Height: h, Area: w * h}
	if h > 0 {
		info.AspectRatio = float64(w) / float64(h)
	}
	return info
}

// Validate rejects frames too small to measure a reference object in
func (i *Inspector) Validate(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < i.config.MinFrameSize || b.Dy() < i.config.MinFrameSize {
		return fmt.Errorf("frame too small: %dx%d (minimum: %d)", b.Dx(), b.Dy(), i.config.MinFrameSize)
	}
	return nil
}

func (i *Inspector) isFormatSupported(format string) bool {
	return slices.ContainsFunc(i.config.SupportedFormats, func(s string) bool {
		return strings.EqualFold(s, format) || (strings.EqualFold(s, "jpeg") && strings.EqualFold(format, "jpg"))
	})
}

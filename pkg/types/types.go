package types

// Box is a bounding box normalized to [0,1] of the frame size
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the box has no area
func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Detection is the reference object a locator found in a frame
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// AnalysisResult is what a locator returns for one frame
type AnalysisResult struct {
	Reference   Detection `json:"reference"`
	Description string    `json:"description"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// Selection is a measured reference region in pixel units.
// Confidence is passed through from the locator and is not interpreted
// by the altitude calculation.
type Selection struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Box         Box     `json:"box"`
	WidthPx     float64 `json:"width_px"`
	HeightPx    float64 `json:"height_px"`
	PixelSizePx float64 `json:"pixel_size_px"`
	FrameWidth  int     `json:"frame_width_px"`
	FrameHeight int     `json:"frame_height_px"`
}

// ModelOptions controls how a frame is sent to a vision model
type ModelOptions struct {
	Model      string
	SendFormat string
	SendSize   int
	SendQ      int
}

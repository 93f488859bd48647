package client

import (
	"context"

	"github.com/menta2k/video-altitude/pkg/types"
)

// VisionClient is a multimodal model backend able to locate a reference
// object in a base64-encoded frame.
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	LocateReference(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}

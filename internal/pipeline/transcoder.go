package pipeline

import (
	"context"

	"github.com/dunamismax/iopbridge/internal/media"
)

// ProcessedContentType is the content type of every processed artifact.
const ProcessedContentType = media.WebPContentType

// Transcoder encodes a mode-normalized frame as lossy WebP.
type Transcoder interface {
	Encode(ctx context.Context, f Frame, quality int) ([]byte, error)
}

// Transcoded is the immutable result of the encode stage.
type Transcoded struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

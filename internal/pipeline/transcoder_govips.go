//go:build govips

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsTranscoder hands the normalized frame to libvips through an
// uncompressed PNG, which keeps the alpha channel intact.
type govipsTranscoder struct{}

func (govipsTranscoder) Encode(ctx context.Context, f Frame, quality int) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var staged bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&staged, f.Image); err != nil {
		return nil, fmt.Errorf("stage frame for libvips: %w", err)
	}

	img, err := vips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load frame into libvips: %w", err)
	}
	defer img.Close()

	params := vips.NewWebpExportParams()
	params.Quality = quality
	params.StripMetadata = true
	params.ReductionEffort = 6
	data, _, err := img.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return data, nil
}

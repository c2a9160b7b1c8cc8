//go:build !govips

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/chai2010/webp"
)

type webpTranscoder struct{}

func (webpTranscoder) Encode(ctx context.Context, f Frame, quality int) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, straightAlpha(f.Image), &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// straightAlpha returns img in the layout libwebp reads: 8-bit RGBA with
// colour not premultiplied by alpha. webp.Encode only passes *image.RGBA
// through untouched, so non-premultiplied pixels travel in that type.
// Opaque images are returned as is.
func straightAlpha(img image.Image) image.Image {
	switch m := img.(type) {
	case *image.NRGBA:
		return &image.RGBA{Pix: m.Pix, Stride: m.Stride, Rect: m.Rect}
	case interface{ Opaque() bool }:
		if m.Opaque() {
			return img
		}
	}

	b := img.Bounds()
	n := image.NewNRGBA(b)
	draw.Draw(n, b, img, b.Min, draw.Src)
	return &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
}

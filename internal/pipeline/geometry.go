package pipeline

import (
	"math"

	"github.com/disintegration/imaging"
)

// MaxDimension is the longest side a processed image may have.
const MaxDimension = 4000

// FitWithin returns the dimensions of a w×h image scaled so neither side
// exceeds limit. The longer side (width on ties) becomes exactly limit and the
// other is rounded half away from zero, never below one pixel.
func FitWithin(w, h, limit int) (int, int, bool) {
	if w <= limit && h <= limit {
		return w, h, false
	}

	if w >= h {
		scale := float64(limit) / float64(w)
		return limit, scaledSide(h, scale), true
	}
	scale := float64(limit) / float64(h)
	return scaledSide(w, scale), limit, true
}

func scaledSide(side int, scale float64) int {
	return max(1, int(math.Round(float64(side)*scale)))
}

// FitFrame downsizes f with a Lanczos filter when it exceeds limit. The
// returned frame always owns a fresh buffer when resized is true.
func FitFrame(f Frame, limit int) (Frame, bool) {
	w, h, resized := FitWithin(f.Width(), f.Height(), limit)
	if !resized {
		return f, false
	}

	dst := imaging.Resize(f.Image, w, h, imaging.Lanczos)
	return Frame{Image: dst, Mode: DetectMode(dst)}, true
}

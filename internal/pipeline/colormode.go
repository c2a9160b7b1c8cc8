package pipeline

import (
	"image"
	"image/draw"
)

// NormalizeMode coerces f into a representation the WebP encoder accepts.
// Palette images become NRGBA so transparency survives, alpha-capable and
// RGB frames pass through, and everything else (gray, CMYK, alpha masks)
// becomes opaque RGB.
func NormalizeMode(f Frame) Frame {
	switch f.Mode {
	case ModeRGB, ModeRGBA:
		return f
	case ModePalette:
		return Frame{Image: toNRGBA(f.Image), Mode: ModeRGBA}
	default:
		return Frame{Image: toRGB(f.Image), Mode: ModeRGB}
	}
}

func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// toRGB drops any alpha the source carries rather than compositing it.
func toRGB(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

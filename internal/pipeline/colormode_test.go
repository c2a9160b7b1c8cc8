package pipeline

import (
	"image"
	"image/color"
	"image/color/palette"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMode(t *testing.T) {
	rect := image.Rect(0, 0, 2, 2)

	opaqueRGBA := image.NewRGBA(rect)
	for i := range opaqueRGBA.Pix {
		opaqueRGBA.Pix[i] = 0xff
	}
	transparentNRGBA := image.NewNRGBA(rect)

	tests := []struct {
		name string
		img  image.Image
		want Mode
	}{
		{"paletted", image.NewPaletted(rect, palette.Plan9), ModePalette},
		{"gray", image.NewGray(rect), ModeGray},
		{"gray16", image.NewGray16(rect), ModeGray},
		{"cmyk", image.NewCMYK(rect), ModeCMYK},
		{"ycbcr", image.NewYCbCr(rect, image.YCbCrSubsampleRatio420), ModeRGB},
		{"opaque rgba", opaqueRGBA, ModeRGB},
		{"transparent nrgba", transparentNRGBA, ModeRGBA},
		{"alpha mask", image.NewAlpha(rect), ModeOther},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectMode(tc.img))
		})
	}
}

func TestNormalizeModeNeverEmitsPalette(t *testing.T) {
	pal := color.Palette{
		color.NRGBA{A: 0},
		color.NRGBA{R: 255, A: 255},
	}
	src := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
	src.SetColorIndex(0, 0, 1)

	out := NormalizeMode(Frame{Image: src, Mode: DetectMode(src)})

	require.Equal(t, ModeRGBA, out.Mode)
	_, isPaletted := out.Image.(*image.Paletted)
	assert.False(t, isPaletted)

	_, _, _, transparent := out.Image.At(3, 3).RGBA()
	assert.Zero(t, transparent, "transparent palette entry must stay transparent")
	r, _, _, opaque := out.Image.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), opaque)
	assert.Equal(t, uint32(0xffff), r)
}

func TestNormalizeModeKeepsAlphaAndRGB(t *testing.T) {
	rgba := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	out := NormalizeMode(Frame{Image: rgba, Mode: ModeRGBA})
	assert.Same(t, rgba, out.Image)
	assert.Equal(t, ModeRGBA, out.Mode)

	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio444)
	out = NormalizeMode(Frame{Image: ycc, Mode: ModeRGB})
	assert.Same(t, ycc, out.Image)
	assert.Equal(t, ModeRGB, out.Mode)
}

func TestNormalizeModeConvertsOthersToRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 3, 3))
	gray.SetGray(1, 1, color.Gray{Y: 128})

	cmyk := image.NewCMYK(image.Rect(0, 0, 3, 3))
	cmyk.SetCMYK(1, 1, color.CMYK{C: 255})

	mask := image.NewAlpha(image.Rect(0, 0, 3, 3))
	mask.SetAlpha(1, 1, color.Alpha{A: 10})

	for _, src := range []image.Image{gray, cmyk, mask} {
		out := NormalizeMode(Frame{Image: src, Mode: DetectMode(src)})
		require.Equal(t, ModeRGB, out.Mode)
		rgb, ok := out.Image.(*image.RGBA)
		require.True(t, ok)
		assert.True(t, rgb.Opaque())
		assert.Equal(t, src.Bounds().Dx(), rgb.Bounds().Dx())
	}

	out := NormalizeMode(Frame{Image: gray, Mode: ModeGray})
	r, g, b, _ := out.Image.At(1, 1).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
	assert.Equal(t, uint32(128*0x101), r)
}

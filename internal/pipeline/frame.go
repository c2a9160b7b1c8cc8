package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels rejects decompression bombs before the pixel buffer is allocated.
const MaxPixels = 178_956_970

var (
	ErrEmptyImage        = errors.New("image data is empty")
	ErrInvalidDimensions = errors.New("image has invalid dimensions")
	ErrTooManyPixels     = errors.New("image exceeds pixel limit")
)

// Mode is the pixel representation of a decoded image, named after the
// usual imaging-library mode letters.
type Mode string

const (
	ModeRGB     Mode = "RGB"
	ModeRGBA    Mode = "RGBA"
	ModePalette Mode = "P"
	ModeGray    Mode = "L"
	ModeCMYK    Mode = "CMYK"
	ModeOther   Mode = "other"
)

// Frame is the in-memory image owned by one pipeline run. Stages that change
// pixels return a new Frame instead of writing into the old buffer.
type Frame struct {
	Image image.Image
	Mode  Mode
}

func (f Frame) Width() int  { return f.Image.Bounds().Dx() }
func (f Frame) Height() int { return f.Image.Bounds().Dy() }

type opaquer interface {
	Opaque() bool
}

// DetectMode classifies img by its concrete type. Direct-colour buffers count
// as RGB when every pixel is opaque, since Go decoders hand back RGBA
// buffers for plain truecolour PNGs too.
func DetectMode(img image.Image) Mode {
	switch m := img.(type) {
	case *image.Paletted:
		return ModePalette
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.CMYK:
		return ModeCMYK
	case *image.YCbCr:
		return ModeRGB
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64, *image.NYCbCrA:
		if m.(opaquer).Opaque() {
			return ModeRGB
		}
		return ModeRGBA
	default:
		return ModeOther
	}
}

// Decode parses any registered format (JPEG, PNG, GIF, WebP, BMP, TIFF).
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Frame{}, ErrInvalidDimensions
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return Frame{}, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("decode source image: %w", err)
	}
	if img.Bounds().Empty() {
		return Frame{}, ErrInvalidDimensions
	}

	return Frame{Image: img, Mode: DetectMode(img)}, nil
}

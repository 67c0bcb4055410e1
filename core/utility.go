package core

import (
	"image"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/model"
	"golang.org/x/image/draw"
)

// GetPixels transforms a given image into tightly packed pixels of
// format by drawing the decoded image onto a controlled RGBA canvas
func GetPixels(img image.Image, format gfx.Format) ([]uint8, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)

	switch format {
	case gfx.FormatRGBA8Unorm, gfx.FormatRGBA8Srgb, gfx.FormatUndefined:
	case gfx.FormatBGRA8Unorm, gfx.FormatBGRA8Srgb:
		for i := 0; i+3 < len(canvas.Pix); i += 4 {
			canvas.Pix[i], canvas.Pix[i+2] = canvas.Pix[i+2], canvas.Pix[i]
		}
	default:
		return nil, errors.Newf("unsupported pixel format %d", format)
	}
	return canvas.Pix, nil
}

// IndexBytes packs indices in the layout of format. Indices that do not
// fit a 16-bit format are an error rather than truncated.
func IndexBytes(indices []uint32, format gfx.IndexFormat) ([]byte, error) {
	if format != gfx.IndexUint16 {
		return model.IndexBytes32(indices), nil
	}
	narrow := make([]uint16, len(indices))
	for i, idx := range indices {
		if idx > 0xFFFF {
			return nil, errors.Wrapf(gfx.ErrIndexFormat, "index %d does not fit %s", idx, format)
		}
		narrow[i] = uint16(idx)
	}
	return model.IndexBytes16(narrow), nil
}

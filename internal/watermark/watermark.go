package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options controls the tiled watermark. Zero values fall back to the
// defaults used for free previews.
type Options struct {
	Text    string
	Opacity float64
	Spacing int
}

const (
	defaultText    = "petpawtrait.net"
	defaultOpacity = 0.68
	defaultSpacing = 200
)

// Stamp composites a repeating text mark over the image and returns the
// result as PNG. The input may be PNG or JPEG. Rows are staggered by half the
// spacing so crops cannot trivially avoid the mark.
func Stamp(data []byte, opts Options) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("watermark: decode image: %w", err)
	}

	text := opts.Text
	if text == "" {
		text = defaultText
	}
	opacity := opts.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = defaultOpacity
	}
	spacing := opts.Spacing
	if spacing <= 0 {
		spacing = defaultSpacing
	}

	bounds := src.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, src, bounds.Min, draw.Src)

	mark := renderMark(text, opacity)
	markW := mark.Bounds().Dx()
	markH := mark.Bounds().Dy()

	row := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += spacing {
		offset := 0
		if row%2 == 1 {
			offset = spacing / 2
		}
		for x := bounds.Min.X - markW + offset; x < bounds.Max.X; x += spacing {
			target := image.Rect(x, y, x+markW, y+markH)
			draw.Draw(out, target, mark, mark.Bounds().Min, draw.Over)
		}
		row++
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("watermark: encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// renderMark draws the text once into a transparent tile with the requested
// alpha applied.
func renderMark(text string, opacity float64) *image.RGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()
	tile := image.NewRGBA(image.Rect(0, 0, width+2, height+2))

	alpha := uint8(opacity * 255)
	d := font.Drawer{
		Dst:  tile,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: alpha}),
		Face: face,
		Dot:  fixed.P(1, face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
	return tile
}

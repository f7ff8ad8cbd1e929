package imagefile

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/dkeye/Canvas/internal/domain"
)

// Decode reads a PNG into non-premultiplied colors in row-major order.
// The image must be exactly width x height.
func Decode(data []byte, width, height int) ([]domain.Color, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %v: %w", err, domain.ErrCorruptCanvas)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return nil, fmt.Errorf("dimension mismatch: got %dx%d, want %dx%d: %w",
			b.Dx(), b.Dy(), width, height, domain.ErrCorruptCanvas)
	}

	// NRGBA keeps the color of fully transparent pixels, which a round
	// trip through premultiplied RGBA would lose.
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		nrgba = image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	out := make([]domain.Color, 0, width*height)
	origin := nrgba.Rect.Min
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := nrgba.PixOffset(origin.X+x, origin.Y+y)
			p := nrgba.Pix[i : i+4]
			out = append(out, domain.Color{p[0], p[1], p[2], p[3]})
		}
	}
	return out, nil
}

// Encode writes colors as a width x height RGBA PNG.
func Encode(colors []domain.Color, width, height int) ([]byte, error) {
	if len(colors) != width*height {
		return nil, fmt.Errorf("encode png: %d colors for %dx%d", len(colors), width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, c := range colors {
		copy(img.Pix[i*4:i*4+4], c[:])
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

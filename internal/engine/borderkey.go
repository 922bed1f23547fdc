package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// BorderKey is an in-process session for development and tests. It keys out
// every pixel close to the mean colour of the image border, which works for
// product shots on a plain backdrop and nothing else.
type BorderKey struct {
	model     string
	tolerance float64
	maxPixels int
}

// defaultMaxPixels caps the decoded canvas; an upload near the body limit
// can declare far larger dimensions than it carries.
const defaultMaxPixels = 40_000_000

// NewBorderKey returns a BorderKey session. tolerance is the normalised RGB
// distance under which a pixel counts as background; pixels up to twice that
// distance fade out linearly.
func NewBorderKey(model string, tolerance float64) *BorderKey {
	return &BorderKey{model: model, tolerance: tolerance, maxPixels: defaultMaxPixels}
}

// Model implements Session.
func (b *BorderKey) Model() string { return b.model }

// Remove implements Session.
func (b *BorderKey) Remove(ctx context.Context, data []byte) ([]byte, error) {
	dim, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if dim.Width <= 0 || dim.Height <= 0 || dim.Width > b.maxPixels/dim.Height {
		return nil, fmt.Errorf("image dimensions %dx%d exceed %d pixels", dim.Width, dim.Height, b.maxPixels)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := imaging.Clone(src)
	bg := borderMean(img)
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		if y%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			px := img.Pix[i : i+4 : i+4]
			f := b.keep(distance(px, bg))
			px[3] = uint8(math.Round(float64(px[3]) * f))
		}
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// keep maps a colour distance to the fraction of alpha that survives.
func (b *BorderKey) keep(d float64) float64 {
	switch {
	case d <= b.tolerance:
		return 0
	case b.tolerance == 0 || d >= 2*b.tolerance:
		return 1
	default:
		return (d - b.tolerance) / b.tolerance
	}
}

func borderMean(img *image.NRGBA) [3]float64 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	var sum [3]float64
	var n float64
	add := func(x, y int) {
		i := y*img.Stride + x*4
		sum[0] += float64(img.Pix[i])
		sum[1] += float64(img.Pix[i+1])
		sum[2] += float64(img.Pix[i+2])
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}
	if n == 0 {
		return sum
	}
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
}

// distance is the RGB distance between px and c, normalised to [0, 1].
func distance(px []uint8, c [3]float64) float64 {
	dr := float64(px[0]) - c[0]
	dg := float64(px[1]) - c[1]
	db := float64(px[2]) - c[2]
	return math.Sqrt(dr*dr+dg*dg+db*db) / (255 * math.Sqrt(3))
}

// Package overlay renders Grad-CAM maps as jet-coloured heatmaps blended over the
// original image.
package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/imaging"
)

// Jet maps v in [0,1] to the jet colormap: blue, cyan, yellow, red.
func Jet(v float64) color.RGBA {
	v = clamp01(v)
	// quantise like an 8-bit colormap lookup
	v = math.Round(v*255) / 255
	return color.RGBA{
		R: channel(1.5 - math.Abs(4*v-3)),
		G: channel(1.5 - math.Abs(4*v-2)),
		B: channel(1.5 - math.Abs(4*v-1)),
		A: 0xff,
	}
}

func channel(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// ResizeMap bilinearly upsamples cam to w×h with x/image/draw. Values are clamped
// to [0,1] and carried at 16-bit precision, finer than the 8-bit colormap lookup.
func ResizeMap(cam [][]float64, w, h int) [][]float64 {
	srcH := len(cam)
	srcW := len(cam[0])

	src := image.NewGray16(image.Rect(0, 0, srcW, srcH))
	for y, row := range cam {
		for x, v := range row {
			src.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(clamp01(v) * math.MaxUint16))})
		}
	}

	dst := image.NewGray16(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	out := make([][]float64, h)
	for y := range h {
		out[y] = make([]float64, w)
		for x := range w {
			out[y][x] = float64(dst.Gray16At(x, y).Y) / math.MaxUint16
		}
	}
	return out
}

// Render blends jet(cam) over orig: (1-alpha)·orig + alpha·heat, rounded and clamped.
// The result has the size of orig.
func Render(orig image.Image, cam [][]float64, alpha float64) (*image.RGBA, error) {
	if alpha <= 0 || alpha >= 1 || math.IsNaN(alpha) {
		return nil, errors.ValidationError("overlay", "alpha must be between 0 and 1 exclusive")
	}
	if len(cam) == 0 || len(cam[0]) == 0 {
		return nil, errors.ValidationError("overlay", "activation map is empty")
	}
	for _, row := range cam {
		if len(row) != len(cam[0]) {
			return nil, errors.ValidationError("overlay", "activation map rows differ in length")
		}
	}

	base := imaging.ToRGBA(orig)
	b := base.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errors.ValidationError("overlay", "image is empty")
	}
	heat := ResizeMap(cam, w, h)

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		src := base.Pix[y*base.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := range w {
			c := Jet(heat[y][x])
			i := x * 4
			dst[i+0] = blend(src[i+0], c.R, alpha)
			dst[i+1] = blend(src[i+1], c.G, alpha)
			dst[i+2] = blend(src[i+2], c.B, alpha)
			dst[i+3] = 0xff
		}
	}
	return out, nil
}

func blend(base, heat uint8, alpha float64) uint8 {
	v := (1-alpha)*float64(base) + alpha*float64(heat)
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.New(err).
			Component("overlay").
			Category(errors.CategoryImage).
			Build()
	}
	return buf.Bytes(), nil
}

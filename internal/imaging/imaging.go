// Package imaging turns uploaded ultrasound images into normalised model input tensors.
package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

// ImageNet channel statistics the backbone was pretrained with.
var (
	ImageNetMean = [3]float64{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float64{0.229, 0.224, 0.225}
)

// Decode reads a PNG, JPEG, GIF or BMP image and converts it to RGBA.
func Decode(r io.Reader) (*image.RGBA, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.New(err).
			Component("imaging").
			Category(errors.CategoryImage).
			Context("operation", "decode").
			Build()
	}
	rgba := ToRGBA(img)
	if rgba.Bounds().Empty() {
		return nil, errors.Newf("decoded %s image is empty", format).
			Component("imaging").
			Category(errors.CategoryImage).
			Build()
	}
	return rgba, nil
}

// ToRGBA returns img as an *image.RGBA anchored at the origin, copying when needed.
// Alpha is flattened so every pixel is opaque RGB.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) && opaque(rgba) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

func opaque(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}

// CenterCrop returns the largest centered square of img.
func CenterCrop(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	m := min(w, h)
	left := (w - m) / 2
	top := (h - m) / 2

	out := image.NewRGBA(image.Rect(0, 0, m, m))
	draw.Draw(out, out.Bounds(), img, image.Pt(b.Min.X+left, b.Min.Y+top), draw.Src)
	return out
}

// Resize scales img to size×size with bilinear interpolation.
// An image already at the target size is copied unchanged.
func Resize(img image.Image, size int) *image.RGBA {
	return ResizeTo(img, size, size)
}

// ResizeTo scales img to w×h with bilinear interpolation.
func ResizeTo(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
		return out
	}
	xdraw.BiLinear.Scale(out, out.Bounds(), img, b, xdraw.Src, nil)
	return out
}

// CenterCropResize is the file-level transform applied by the preprocess command.
func CenterCropResize(img image.Image, size int) *image.RGBA {
	return Resize(CenterCrop(img), size)
}

// ToTensor converts img to a 3×H×W tensor with values in [0,1].
func ToTensor(img image.Image) *tensor.Tensor {
	rgba := ToRGBA(img)
	b := rgba.Bounds()
	w, h := b.Dx(), b.Dy()
	t := tensor.New(3, h, w)
	r, g, bl := t.Channel(0), t.Channel(1), t.Channel(2)

	for y := range h {
		row := rgba.Pix[y*rgba.Stride:]
		for x := range w {
			p := row[x*4:]
			i := y*w + x
			r[i] = float64(p[0]) / 255
			g[i] = float64(p[1]) / 255
			bl[i] = float64(p[2]) / 255
		}
	}
	return t
}

// Normalize applies (v-mean)/std per channel in place.
func Normalize(t *tensor.Tensor, mean, std [3]float64) error {
	c, _, _, err := t.CHW()
	if err != nil {
		return err
	}
	if c != 3 {
		return fmt.Errorf("normalize expects 3 channels, got %d", c)
	}
	for ch := range 3 {
		plane := t.Channel(ch)
		for i, v := range plane {
			plane[i] = (v - mean[ch]) / std[ch]
		}
	}
	return nil
}

// Preprocess center-crops, resizes and normalises img into a 3×size×size model input.
func Preprocess(img image.Image, size int) (*tensor.Tensor, error) {
	return ResizeTensor(CenterCrop(img), size)
}

// ResizeTensor resizes without cropping and normalises. Training and evaluation use it
// on already-square preprocessed images.
func ResizeTensor(img image.Image, size int) (*tensor.Tensor, error) {
	if size <= 0 {
		return nil, errors.ValidationError("imaging", "image size must be positive")
	}
	if img.Bounds().Empty() {
		return nil, errors.Newf("cannot preprocess an empty image").
			Component("imaging").
			Category(errors.CategoryImage).
			Build()
	}
	t := ToTensor(Resize(img, size))
	if err := Normalize(t, ImageNetMean, ImageNetStd); err != nil {
		return nil, err
	}
	return t, nil
}

package imaging

import (
	"image"
	"math"
	"math/rand/v2"
)

// Augmenter applies the random training-time transforms: a horizontal flip with
// probability 0.5, then brightness and contrast jitter by factors in [0.9, 1.1].
type Augmenter struct {
	Rand       *rand.Rand
	FlipProb   float64
	Brightness float64 // jitter half-width, 0.1 gives [0.9, 1.1]
	Contrast   float64
}

// NewAugmenter returns the default augmenter seeded deterministically.
func NewAugmenter(seed uint64) *Augmenter {
	return &Augmenter{
		Rand:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		FlipProb:   0.5,
		Brightness: 0.1,
		Contrast:   0.1,
	}
}

// Apply returns an augmented copy of img. The input is never modified.
func (a *Augmenter) Apply(img image.Image) *image.RGBA {
	out := ToRGBA(img)
	if out == img {
		cp := *out
		cp.Pix = append([]uint8(nil), out.Pix...)
		out = &cp
	}

	if a.Rand.Float64() < a.FlipProb {
		flipHorizontal(out)
	}
	if a.Brightness > 0 {
		adjustBrightness(out, a.factor(a.Brightness))
	}
	if a.Contrast > 0 {
		adjustContrast(out, a.factor(a.Contrast))
	}
	return out
}

func (a *Augmenter) factor(width float64) float64 {
	return 1 - width + 2*width*a.Rand.Float64()
}

func flipHorizontal(img *image.RGBA) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	for y := range h {
		row := img.Pix[y*img.Stride:]
		for x := range w / 2 {
			l, r := x*4, (w-1-x)*4
			for c := range 4 {
				row[l+c], row[r+c] = row[r+c], row[l+c]
			}
		}
	}
}

func adjustBrightness(img *image.RGBA, f float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		for c := range 3 {
			img.Pix[i+c] = clampByte(float64(img.Pix[i+c]) * f)
		}
	}
}

// adjustContrast blends every pixel with the mean grayscale level.
func adjustContrast(img *image.RGBA, f float64) {
	var sum float64
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		sum += 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		n++
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)
	for i := 0; i < len(img.Pix); i += 4 {
		for c := range 3 {
			img.Pix[i+c] = clampByte(mean + (float64(img.Pix[i+c])-mean)*f)
		}
	}
}

func clampByte(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

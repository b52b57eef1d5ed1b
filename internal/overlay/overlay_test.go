package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func camOf(n int, v float64) [][]float64 {
	cam := make([][]float64, n)
	for i := range cam {
		cam[i] = make([]float64, n)
		for j := range cam[i] {
			cam[i][j] = v
		}
	}
	return cam
}

func TestJetEndpoints(t *testing.T) {
	t.Parallel()

	assert.Equal(t, color.RGBA{0, 0, 128, 255}, Jet(0))
	assert.Equal(t, color.RGBA{128, 0, 0, 255}, Jet(1))
	mid := Jet(0.5)
	assert.Greater(t, mid.G, mid.R)
	assert.Greater(t, mid.G, mid.B)
	assert.Equal(t, Jet(0), Jet(-3), "values are clamped")
}

func TestRenderKeepsOriginalSize(t *testing.T) {
	t.Parallel()

	for _, size := range [][2]int{{640, 480}, {31, 97}, {224, 224}} {
		out, err := Render(solid(size[0], size[1], color.RGBA{100, 100, 100, 255}), camOf(7, 0.3), 0.4)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, size[0], size[1]), out.Bounds())
		assert.Len(t, out.Pix, size[0]*size[1]*4)
	}
}

func TestRenderBlendFormula(t *testing.T) {
	t.Parallel()

	base := color.RGBA{200, 100, 50, 255}
	out, err := Render(solid(4, 4, base), camOf(2, 1), 0.4)
	require.NoError(t, err)

	heat := Jet(1)
	want := color.RGBA{
		R: blend(base.R, heat.R, 0.4),
		G: blend(base.G, heat.G, 0.4),
		B: blend(base.B, heat.B, 0.4),
		A: 255,
	}
	assert.Equal(t, want, out.RGBAAt(2, 1))
	assert.Equal(t, uint8(171), want.R) // 0.6·200 + 0.4·128 = 171.2
}

func TestRenderValidation(t *testing.T) {
	t.Parallel()

	img := solid(8, 8, color.RGBA{A: 255})
	for _, alpha := range []float64{0, 1, -0.1, 1.5} {
		_, err := Render(img, camOf(7, 0.5), alpha)
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	}

	_, err := Render(img, nil, 0.4)
	assert.True(t, errors.IsValidation(err))
	_, err = Render(img, [][]float64{{}}, 0.4)
	assert.True(t, errors.IsValidation(err))
}

func TestResizeMapConstantAndCorners(t *testing.T) {
	t.Parallel()

	up := ResizeMap(camOf(7, 0.25), 50, 30)
	require.Len(t, up, 30)
	for _, row := range up {
		require.Len(t, row, 50)
		for _, v := range row {
			assert.InDelta(t, 0.25, v, 1e-4)
		}
	}

	grad := [][]float64{{0, 1}, {0, 1}}
	up = ResizeMap(grad, 4, 2)
	assert.InDelta(t, 0.0, up[0][0], 1e-4)
	assert.InDelta(t, 1.0, up[0][3], 1e-4)
	assert.Less(t, up[0][1], up[0][2])
	assert.InDelta(t, 0.25, up[0][1], 1e-3)
	assert.InDelta(t, 0.75, up[0][2], 1e-3)

	clamped := ResizeMap([][]float64{{-2, 3}}, 2, 1)
	assert.InDelta(t, 0.0, clamped[0][0], 1e-4, "values are clamped to [0,1]")
	assert.InDelta(t, 1.0, clamped[0][1], 1e-4)
}

func TestEncodePNG(t *testing.T) {
	t.Parallel()

	data, err := EncodePNG(solid(3, 2, color.RGBA{1, 2, 3, 255}))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
}

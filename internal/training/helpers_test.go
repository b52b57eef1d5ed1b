package training

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeImage writes a w×h PNG filled with c plus a little positional texture.
func writeImage(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: c.R + uint8(x%7), G: c.G + uint8(y%5), B: c.B, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// makeFolder builds root/<class>/img<i>.png with perClass images per class.
func makeFolder(t *testing.T, classes []string, perClass int) string {
	t.Helper()
	root := t.TempDir()
	palette := []color.RGBA{{200, 30, 30, 255}, {30, 30, 200, 255}, {30, 200, 30, 255}}
	for ci, name := range classes {
		for i := range perClass {
			writeImage(t, filepath.Join(root, name, "img"+string(rune('a'+i))+".png"), 40, 30, palette[ci%len(palette)])
		}
	}
	return root
}

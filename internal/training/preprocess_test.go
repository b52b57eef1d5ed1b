package training

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestPreprocessFolderCropsEveryImage(t *testing.T) {
	raw := makeFolder(t, []string{"benign", "normal"}, 3)
	out := filepath.Join(t.TempDir(), "processed")

	res, err := PreprocessFolder(context.Background(), raw, out, 16, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Total)
	assert.Equal(t, 6, res.Processed)
	assert.Empty(t, res.Failed)

	f, err := os.Open(filepath.Join(out, "normal", "imga.png"))
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestPreprocessFolderSkipsBadFiles(t *testing.T) {
	raw := makeFolder(t, []string{"benign"}, 2)
	require.NoError(t, os.WriteFile(filepath.Join(raw, "benign", "broken.png"), []byte("nope"), 0o644))
	out := t.TempDir()

	res, err := PreprocessFolder(context.Background(), raw, out, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Processed)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, filepath.Join(raw, "benign", "broken.png"), res.Failed[0].Path)
	assert.NoFileExists(t, filepath.Join(out, "benign", "broken.png"))
}

func TestPreprocessFolderFailsWhenEverythingFails(t *testing.T) {
	raw := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(raw, "normal"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(raw, "normal", "a.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(raw, "normal", "b.jpg"), []byte("y"), 0o644))

	res, err := PreprocessFolder(context.Background(), raw, t.TempDir(), 8, 4)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImage))
	assert.Len(t, res.Failed, 2)
}

func TestPreprocessFolderKeepsJPEG(t *testing.T) {
	raw := t.TempDir()
	writeImage(t, filepath.Join(raw, "malignant", "scan.png"), 30, 20, color.RGBA{120, 120, 120, 255})
	require.NoError(t, os.Rename(filepath.Join(raw, "malignant", "scan.png"), filepath.Join(raw, "malignant", "scan.jpg")))
	out := t.TempDir()

	res, err := PreprocessFolder(context.Background(), raw, out, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	data, err := os.ReadFile(filepath.Join(out, "malignant", "scan.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "re-encoded as JPEG")
}

func TestPreprocessFolderWritesOtherFormatsAsPNG(t *testing.T) {
	raw := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(raw, "benign"), 0o755))
	f, err := os.Create(filepath.Join(raw, "benign", "Scan.BMP"))
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, image.NewGray(image.Rect(0, 0, 24, 16))))
	require.NoError(t, f.Close())
	out := t.TempDir()

	res, err := PreprocessFolder(context.Background(), raw, out, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	_, err = os.Stat(filepath.Join(out, "benign", "Scan.BMP"))
	assert.True(t, os.IsNotExist(err), "no PNG bytes under a .bmp name")

	data, err := os.ReadFile(filepath.Join(out, "benign", "Scan.png"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
}

func TestOutputName(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"raw/a/x.png":  "x.png",
		"raw/a/x.JPG":  "x.JPG",
		"raw/a/x.jpeg": "x.jpeg",
		"raw/a/x.gif":  "x.png",
		"raw/a/x.bmp":  "x.png",
	} {
		assert.Equal(t, want, outputName(in), in)
	}
}

package predict

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/conf"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 90, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestPredictWritesOverlay(t *testing.T) {
	dir := t.TempDir()
	s := &conf.Settings{}
	s.Model.Path = filepath.Join(dir, "missing.bin")
	s.Model.ImageSize = 32
	s.Model.Classes = conf.DefaultClasses
	s.GradCAM = conf.GradCAMSettings{Enabled: true, TargetLayer: "layer4", Alpha: 0.4}

	input := filepath.Join(dir, "scan.png")
	writePNG(t, input, 48, 36)
	ovPath := filepath.Join(dir, "overlay.png")

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, run(cmd, s, input, ovPath))

	text := out.String()
	for _, name := range conf.DefaultClasses {
		assert.Contains(t, text, name)
	}
	assert.Contains(t, text, "warning: no trained weights found")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), ovPath))

	f, err := os.Open(ovPath)
	require.NoError(t, err)
	defer f.Close()
	ov, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 48, 36), ov.Bounds())
}

func TestPredictRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(input, []byte("text"), 0o644))

	s := &conf.Settings{}
	s.Model.ImageSize = 32
	require.Error(t, run(&cobra.Command{}, s, input, ""))
}

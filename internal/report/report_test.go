package report

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestGenerateWritesSelfContainedHTML(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "reports")
	ts := time.Date(2026, 3, 14, 9, 30, 5, 0, time.UTC)

	path, err := Generate(dir, ReportData{
		PredictionID:  12,
		Label:         "Benign",
		Confidence:    0.8123,
		Probabilities: map[string]float64{"Normal": 0.1, "Benign": 0.8123, "Malignant": 0.0877},
		ModelVersion:  "v1",
		Username:      "alice",
		PatientID:     "P-<7>",
		Timestamp:     ts,
		Original:      solid(8, 6, color.RGBA{10, 20, 30, 255}),
		Overlay:       solid(8, 6, color.RGBA{200, 20, 30, 255}),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "report_20260314_093005_12.html"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)

	assert.Contains(t, html, "Benign (81.2%)")
	assert.Contains(t, html, "2026-03-14 09:30:05 UTC")
	assert.Contains(t, html, "P-&lt;7&gt;")
	assert.Equal(t, 2, strings.Count(html, `src="data:image/png;base64,`))

	benign := strings.Index(html, "<td>Benign</td>")
	normal := strings.Index(html, "<td>Normal</td>")
	malignant := strings.Index(html, "<td>Malignant</td>")
	require.Positive(t, benign)
	assert.Less(t, benign, normal)
	assert.Less(t, normal, malignant)
	assert.Contains(t, html, `<tr class="top"><td>Benign</td><td>81.23%</td></tr>`)
}

func TestGenerateOptionalFields(t *testing.T) {
	t.Parallel()

	path, err := Generate(t.TempDir(), ReportData{
		PredictionID: 3,
		Label:        "Normal",
		Confidence:   0.5,
		Original:     solid(4, 4, color.RGBA{A: 255}),
	})
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Patient ID")
	assert.Equal(t, 1, strings.Count(string(raw), "data:image/png;base64,"))
}

func TestGenerateRequiresOriginal(t *testing.T) {
	t.Parallel()
	_, err := Generate(t.TempDir(), ReportData{PredictionID: 1})
	assert.True(t, errors.IsValidation(err))
}

// Package report renders a self-contained HTML report for a single prediction.
package report

import (
	"bytes"
	"encoding/base64"
	"html/template"
	"image"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/overlay"
)

// ReportData is everything a report shows. Overlay and PatientID are optional.
type ReportData struct {
	PredictionID  uint
	Label         string
	Confidence    float64
	Probabilities map[string]float64
	ModelVersion  string
	Username      string
	PatientID     string
	Timestamp     time.Time
	Original      image.Image
	Overlay       image.Image
}

type probabilityRow struct {
	Class   string
	Percent float64
	Top     bool
}

type view struct {
	ReportData
	Generated   string
	Rows        []probabilityRow
	OriginalSrc template.URL
	OverlaySrc  template.URL
}

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Prediction report #{{.PredictionID}}</title>
<style>
body{font-family:sans-serif;margin:2em;color:#222}
table{border-collapse:collapse}
td,th{border:1px solid #ccc;padding:4px 10px;text-align:left}
tr.top{font-weight:bold}
.images img{max-width:45%;margin-right:1em}
.note{color:#a33;font-size:.9em}
</style>
</head>
<body>
<h1>Breast ultrasound classification report</h1>
<table>
<tr><th>Prediction</th><td>#{{.PredictionID}}</td></tr>
<tr><th>Result</th><td>{{.Label}} ({{printf "%.1f" .ConfidencePercent}}%)</td></tr>
{{- if .PatientID}}
<tr><th>Patient ID</th><td>{{.PatientID}}</td></tr>
{{- end}}
<tr><th>Model version</th><td>{{.ModelVersion}}</td></tr>
<tr><th>User</th><td>{{.Username}}</td></tr>
<tr><th>Analysed</th><td>{{.Generated}}</td></tr>
</table>
<h2>Class probabilities</h2>
<table>
<tr><th>Class</th><th>Probability</th></tr>
{{- range .Rows}}
<tr{{if .Top}} class="top"{{end}}><td>{{.Class}}</td><td>{{printf "%.2f" .Percent}}%</td></tr>
{{- end}}
</table>
<h2>Images</h2>
<div class="images">
<img alt="original" src="{{.OriginalSrc}}">
{{- if .OverlaySrc}}
<img alt="grad-cam overlay" src="{{.OverlaySrc}}">
{{- end}}
</div>
<p class="note">This report is decision support only and is not a diagnosis.</p>
</body>
</html>
`))

// ConfidencePercent is used by the template.
func (d ReportData) ConfidencePercent() float64 { return d.Confidence * 100 }

// FileName is the report name Generate writes for a prediction.
func FileName(predictionID uint, ts time.Time) string {
	return "report_" + ts.UTC().Format("20060102_150405") + "_" + strconv.FormatUint(uint64(predictionID), 10) + ".html"
}

// Generate writes the report into dir and returns its path.
func Generate(dir string, data ReportData) (string, error) {
	if data.Original == nil {
		return "", errors.ValidationError("report", "original image is required")
	}
	if data.Timestamp.IsZero() {
		data.Timestamp = time.Now()
	}

	v := view{
		ReportData: data,
		Generated:  data.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"),
		Rows:       rows(data.Probabilities, data.Label),
	}
	var err error
	if v.OriginalSrc, err = dataURL(data.Original); err != nil {
		return "", err
	}
	if data.Overlay != nil {
		if v.OverlaySrc, err = dataURL(data.Overlay); err != nil {
			return "", err
		}
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, v); err != nil {
		return "", errors.New(err).Component("report").Category(errors.CategorySystem).Build()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fileError(err, dir)
	}
	path := filepath.Join(dir, FileName(data.PredictionID, data.Timestamp))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fileError(err, path)
	}

	logger.Global().Module("report").Info("report generated",
		logger.Int64("prediction_id", int64(data.PredictionID)),
		logger.String("path", path))
	return path, nil
}

// rows sorts classes by descending probability, then by name.
func rows(probs map[string]float64, label string) []probabilityRow {
	out := make([]probabilityRow, 0, len(probs))
	for class, p := range probs {
		out = append(out, probabilityRow{Class: class, Percent: p * 100, Top: class == label})
	}
	slices.SortFunc(out, func(a, b probabilityRow) int {
		switch {
		case a.Percent > b.Percent:
			return -1
		case a.Percent < b.Percent:
			return 1
		case a.Class < b.Class:
			return -1
		case a.Class > b.Class:
			return 1
		}
		return 0
	})
	return out
}

func dataURL(img image.Image) (template.URL, error) {
	b, err := overlay.EncodePNG(img)
	if err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(b)), nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("report").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

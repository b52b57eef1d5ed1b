package training

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

// Report file names written by WriteFiles.
const (
	ReportFile          = "classification_report.txt"
	ConfusionMatrixFile = "confusion_matrix.csv"
)

// ClassMetrics are the per-class scores of a Report.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is the result of evaluating a model on a labelled dataset.
type Report struct {
	ClassNames []string
	// Confusion[true][predicted] counts samples.
	Confusion [][]int
}

// NewReport returns an empty report for the given classes.
func NewReport(classNames []string) *Report {
	cm := make([][]int, len(classNames))
	for i := range cm {
		cm[i] = make([]int, len(classNames))
	}
	return &Report{ClassNames: classNames, Confusion: cm}
}

// Add records one prediction.
func (r *Report) Add(trueLabel, predicted int) {
	r.Confusion[trueLabel][predicted]++
}

// Total returns the number of recorded samples.
func (r *Report) Total() int {
	n := 0
	for _, row := range r.Confusion {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// Accuracy is the share of samples on the diagonal.
func (r *Report) Accuracy() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	correct := 0
	for i := range r.Confusion {
		correct += r.Confusion[i][i]
	}
	return float64(correct) / float64(total)
}

// PerClass returns precision, recall, F1 and support per class. Undefined ratios are 0.
func (r *Report) PerClass() []ClassMetrics {
	out := make([]ClassMetrics, len(r.ClassNames))
	for c := range r.ClassNames {
		tp := r.Confusion[c][c]
		predicted, support := 0, 0
		for k := range r.ClassNames {
			predicted += r.Confusion[k][c]
			support += r.Confusion[c][k]
		}
		m := ClassMetrics{Support: support}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			m.Recall = float64(tp) / float64(support)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		out[c] = m
	}
	return out
}

// MacroAverage is the unweighted mean of the per-class scores.
func (r *Report) MacroAverage() ClassMetrics {
	return r.average(false)
}

// WeightedAverage weights the per-class scores by support.
func (r *Report) WeightedAverage() ClassMetrics {
	return r.average(true)
}

func (r *Report) average(bySupport bool) ClassMetrics {
	per := r.PerClass()
	n := len(per)
	if n == 0 {
		return ClassMetrics{}
	}
	p, rc, f, w := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	total := 0
	for i, m := range per {
		p[i], rc[i], f[i] = m.Precision, m.Recall, m.F1
		w[i] = 1
		if bySupport {
			w[i] = float64(m.Support)
		}
		total += m.Support
	}
	wsum := floats.Sum(w)
	if wsum == 0 {
		return ClassMetrics{Support: total}
	}
	return ClassMetrics{
		Precision: floats.Dot(p, w) / wsum,
		Recall:    floats.Dot(rc, w) / wsum,
		F1:        floats.Dot(f, w) / wsum,
		Support:   total,
	}
}

// String renders the report as a fixed-width table with two decimals.
func (r *Report) String() string {
	width := len("weighted avg")
	for _, n := range r.ClassNames {
		width = max(width, len(n))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s  %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	row := func(name string, m ClassMetrics) {
		fmt.Fprintf(&b, "%*s  %9.2f %9.2f %9.2f %9d\n", width, name, m.Precision, m.Recall, m.F1, m.Support)
	}
	for i, m := range r.PerClass() {
		row(r.ClassNames[i], m)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy(), r.Total())
	row("macro avg", r.MacroAverage())
	row("weighted avg", r.WeightedAverage())
	return b.String()
}

// WriteCSV writes the confusion matrix with a header row of predicted classes and a
// leading column of true classes.
func (r *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"true\\predicted"}, r.ClassNames...)); err != nil {
		return err
	}
	for i, row := range r.Confusion {
		rec := make([]string, 0, len(row)+1)
		rec = append(rec, r.ClassNames[i])
		for _, v := range row {
			rec = append(rec, strconv.Itoa(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFiles writes the text report and the confusion matrix CSV into dir.
func (r *Report) WriteFiles(dir string) (reportPath, csvPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fileError(err, dir)
	}
	reportPath = filepath.Join(dir, ReportFile)
	if err := os.WriteFile(reportPath, []byte(r.String()), 0o644); err != nil {
		return "", "", fileError(err, reportPath)
	}

	csvPath = filepath.Join(dir, ConfusionMatrixFile)
	f, err := os.Create(csvPath)
	if err != nil {
		return "", "", fileError(err, csvPath)
	}
	defer f.Close()
	if err := r.WriteCSV(f); err != nil {
		return "", "", fileError(err, csvPath)
	}
	return reportPath, csvPath, nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("training").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// Evaluate classifies every sample of ds (resized, not cropped or augmented) and builds
// the confusion matrix. workers bounds the parallelism.
func Evaluate(ctx context.Context, model *classifier.Model, ds *Dataset, imageSize, workers int) (*Report, error) {
	if model.NumClasses() != len(ds.ClassNames) {
		return nil, errors.Newf("model has %d outputs but the dataset has %d classes", model.NumClasses(), len(ds.ClassNames)).
			Component("training").
			Category(errors.CategoryConfiguration).
			Build()
	}
	rep := NewReport(ds.ClassNames)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, workers))
	for _, s := range ds.Samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			x, err := loadTensor(s.Path, imageSize, nil)
			if err != nil {
				return err
			}
			logits, err := model.Logits(x)
			if err != nil {
				return err
			}
			mu.Lock()
			rep.Add(s.Label, tensor.Argmax(logits))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	getLogger().Info("evaluation finished",
		logger.Int("samples", rep.Total()),
		logger.Float64("accuracy", rep.Accuracy()))
	return rep, nil
}

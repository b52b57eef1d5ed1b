package training

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/classifier"
)

func sampleReport() *Report {
	r := NewReport([]string{"Normal", "Benign", "Malignant"})
	r.Confusion = [][]int{
		{8, 2, 0},
		{1, 6, 3},
		{0, 1, 9},
	}
	return r
}

func TestReportScores(t *testing.T) {
	t.Parallel()
	r := sampleReport()

	assert.Equal(t, 30, r.Total())
	assert.InDelta(t, 23.0/30, r.Accuracy(), 1e-12)

	per := r.PerClass()
	assert.InDelta(t, 8.0/9, per[0].Precision, 1e-12)
	assert.InDelta(t, 0.8, per[0].Recall, 1e-12)
	assert.InDelta(t, 2*(8.0/9)*0.8/((8.0/9)+0.8), per[0].F1, 1e-12)
	assert.Equal(t, 10, per[1].Support)
	assert.InDelta(t, 9.0/12, per[2].Precision, 1e-12)

	macro := r.MacroAverage()
	assert.InDelta(t, (0.8+0.6+0.9)/3, macro.Recall, 1e-12)
	assert.Equal(t, 30, macro.Support)

	weighted := r.WeightedAverage()
	assert.InDelta(t, (0.8*10+0.6*10+0.9*10)/30, weighted.Recall, 1e-12)
}

func TestReportZeroDivision(t *testing.T) {
	t.Parallel()
	r := NewReport([]string{"a", "b"})
	r.Add(0, 0)

	per := r.PerClass()
	assert.Zero(t, per[1].Precision)
	assert.Zero(t, per[1].Recall)
	assert.Zero(t, per[1].F1)
	assert.InDelta(t, 1.0, r.Accuracy(), 1e-12)
}

func TestReportString(t *testing.T) {
	t.Parallel()
	lines := strings.Split(sampleReport().String(), "\n")

	assert.Equal(t, strings.Repeat(" ", 14)+"precision    recall  f1-score   support", lines[0])
	assert.Empty(t, lines[1])
	assert.Equal(t, "      Normal       0.89      0.80      0.84        10", lines[2])
	assert.Contains(t, lines[6], "accuracy")
	assert.True(t, strings.HasSuffix(lines[6], "0.77        30"))
	assert.True(t, strings.HasPrefix(lines[8], "weighted avg"))
}

func TestReportWriteFiles(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "reports")

	reportPath, csvPath, err := sampleReport().WriteFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ReportFile), reportPath)

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "true\\predicted,Normal,Benign,Malignant\nNormal,8,2,0\nBenign,1,6,3\nMalignant,0,1,9\n", string(data))
}

func TestEvaluateCountsEverySample(t *testing.T) {
	t.Parallel()
	ds, err := ImageFolder(makeFolder(t, []string{"Benign", "Normal"}, 3))
	require.NoError(t, err)

	m, err := classifier.ResNet18(2, 1)
	require.NoError(t, err)

	rep, err := Evaluate(context.Background(), m, ds, 32, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, rep.Total())
	assert.Equal(t, 3, rep.PerClass()[0].Support)

	bad, err := classifier.ResNet18(3, 1)
	require.NoError(t, err)
	_, err = Evaluate(context.Background(), bad, ds, 32, 2)
	assert.Error(t, err)
}

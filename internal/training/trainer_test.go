package training

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/errors"
)

func testConfig(dir string) Config {
	return Config{
		Epochs:         2,
		BatchSize:      2,
		LearningRate:   1e-3,
		Seed:           42,
		ValSplit:       0.25,
		ImageSize:      32,
		Workers:        2,
		WeightsPath:    filepath.Join(dir, "model.bin"),
		ClassNamesPath: filepath.Join(dir, "class_names.json"),
	}
}

func headOnlyModel(t *testing.T, classes int) *classifier.Model {
	t.Helper()
	m, err := classifier.ResNet18(classes, 7)
	require.NoError(t, err)
	m.SetFreezePolicy(true, false)
	return m
}

func TestNewTrainerRejectsMismatchedHead(t *testing.T) {
	t.Parallel()
	ds, err := ImageFolder(makeFolder(t, []string{"Benign", "Normal"}, 2))
	require.NoError(t, err)

	_, err = NewTrainer(headOnlyModel(t, 3), ds, testConfig(t.TempDir()))
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	cfg := testConfig(t.TempDir())
	cfg.Epochs = 0
	_, err = NewTrainer(headOnlyModel(t, 2), ds, cfg)
	assert.True(t, errors.IsValidation(err))
}

func TestRunSavesOnlyOnStrictImprovement(t *testing.T) {
	t.Parallel()
	ds, err := ImageFolder(makeFolder(t, []string{"Normal"}, 4))
	require.NoError(t, err)
	out := t.TempDir()

	tr, err := NewTrainer(headOnlyModel(t, 1), ds, testConfig(out))
	require.NoError(t, err)
	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Epochs, 2)
	assert.True(t, res.Epochs[0].Saved)
	assert.False(t, res.Epochs[1].Saved)
	assert.Equal(t, 1, res.BestEpoch)
	assert.InDelta(t, 1.0, res.BestAccuracy, 1e-12)
	assert.Equal(t, []int{4}, res.ClassCounts)
	assert.FileExists(t, filepath.Join(out, "model.bin"))

	names, err := classifier.LoadClassNames(filepath.Join(out, "class_names.json"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Normal"}, names)
}

func TestRunFollowsCosineSchedule(t *testing.T) {
	t.Parallel()
	ds, err := ImageFolder(makeFolder(t, []string{"Benign", "Normal"}, 3))
	require.NoError(t, err)

	cfg := testConfig(t.TempDir())
	cfg.Augment = true
	cfg.ClassWeights = true
	cfg.ClassWeightAlpha = 0.5
	tr, err := NewTrainer(headOnlyModel(t, 2), ds, cfg)
	require.NoError(t, err)
	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Epochs, 2)
	assert.InDelta(t, 1e-3, res.Epochs[0].LearningRate, 1e-15)
	assert.InDelta(t, 5e-4, res.Epochs[1].LearningRate, 1e-15)
	for i, e := range res.Epochs {
		assert.Equal(t, i+1, e.Epoch)
		assert.False(t, math.IsNaN(e.TrainLoss))
		assert.False(t, math.IsNaN(e.ValLoss))
		assert.GreaterOrEqual(t, e.ValAccuracy, 0.0)
		assert.LessOrEqual(t, e.ValAccuracy, 1.0)
	}
}

func TestRunBalancedSampler(t *testing.T) {
	t.Parallel()
	ds, err := ImageFolder(makeFolder(t, []string{"Benign", "Normal"}, 3))
	require.NoError(t, err)

	cfg := testConfig(t.TempDir())
	cfg.Epochs = 1
	cfg.BalancedSampler = true
	tr, err := NewTrainer(headOnlyModel(t, 2), ds, cfg)
	require.NoError(t, err)
	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Epochs, 1)
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()
	ds, err := ImageFolder(makeFolder(t, []string{"Benign", "Normal"}, 2))
	require.NoError(t, err)
	out := t.TempDir()

	tr, err := NewTrainer(headOnlyModel(t, 2), ds, testConfig(out))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := tr.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Empty(t, res.Epochs)
	assert.NoFileExists(t, filepath.Join(out, "model.bin"))
}

func TestHeadTrainingReducesLoss(t *testing.T) {
	t.Parallel()
	ds, err := ImageFolder(makeFolder(t, []string{"Benign", "Normal"}, 2))
	require.NoError(t, err)

	m := headOnlyModel(t, 2)
	tr, err := NewTrainer(m, ds, testConfig(t.TempDir()))
	require.NoError(t, err)

	batch := []int{0, 1, 2, 3}
	opt := NewAdam(0.01)
	var losses []float64
	for range 8 {
		loss, grads, err := tr.batchGradients(ds, batch, nil, m.BackwardStop(), 0)
		require.NoError(t, err)
		_, hasFC := grads["fc.weight"]
		require.True(t, hasFC)
		losses = append(losses, loss)
		opt.Step(m.TrainableParams(), grads)
	}
	assert.Less(t, losses[len(losses)-1], losses[0])
}

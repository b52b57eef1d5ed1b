package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

func TestAdamFirstStepMovesByLearningRate(t *testing.T) {
	t.Parallel()

	w, err := tensor.FromSlice([]float64{1, -1, 0.5}, 3)
	require.NoError(t, err)
	frozen, err := tensor.FromSlice([]float64{2}, 1)
	require.NoError(t, err)
	params := []*classifier.Param{
		{Name: "w", Value: w, Trainable: true},
		{Name: "frozen", Value: frozen},
	}
	g, err := tensor.FromSlice([]float64{0.3, -2, 0}, 3)
	require.NoError(t, err)
	fg, err := tensor.FromSlice([]float64{5}, 1)
	require.NoError(t, err)

	opt := NewAdam(0.1)
	opt.Step(params, classifier.Gradients{"w": g, "frozen": fg})

	assert.InDelta(t, 0.9, w.Data[0], 1e-6)
	assert.InDelta(t, -0.9, w.Data[1], 1e-6)
	assert.InDelta(t, 0.5, w.Data[2], 1e-12)
	assert.Equal(t, 2.0, frozen.Data[0])
}

func TestCosineAnnealing(t *testing.T) {
	t.Parallel()

	c := CosineAnnealing{Base: 1e-3, TMax: 10}
	assert.InDelta(t, 1e-3, c.LR(0), 1e-15)
	assert.InDelta(t, 5e-4, c.LR(5), 1e-15)
	assert.InDelta(t, 0, c.LR(10), 1e-15)
	for e := 1; e <= 10; e++ {
		assert.Less(t, c.LR(e), c.LR(e-1))
	}
	assert.Equal(t, 0.01, CosineAnnealing{Base: 0.01}.LR(3))
}

func TestCrossEntropy(t *testing.T) {
	t.Parallel()

	loss, grad := crossEntropy([]float64{0, 0, 0}, 1, 1)
	assert.InDelta(t, math.Log(3), loss, 1e-12)
	assert.InDelta(t, 1.0/3, grad[0], 1e-12)
	assert.InDelta(t, 1.0/3-1, grad[1], 1e-12)
	assert.InDelta(t, 0, grad[0]+grad[1]+grad[2], 1e-12)

	loss, grad = crossEntropy([]float64{1000, 0}, 0, 0.5)
	assert.InDelta(t, 0, loss, 1e-9)
	assert.InDelta(t, 0, grad[0], 1e-9)

	_, grad = crossEntropy([]float64{0, 0}, 0, 0.5)
	assert.InDelta(t, -0.25, grad[0], 1e-12)
}

package gradcam

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

func randomInput(seed uint64, size int) *tensor.Tensor {
	r := rand.New(rand.NewPCG(seed, 99))
	x := tensor.New(3, size, size)
	for i := range x.Data {
		x.Data[i] = r.NormFloat64()
	}
	return x
}

func assertUnitRange(t *testing.T, cam [][]float64) {
	t.Helper()
	for _, row := range cam {
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestExplainLayer4IsSevenBySevenForEveryClass(t *testing.T) {
	m, err := classifier.ResNet18(3, 1)
	require.NoError(t, err)
	e, err := New(m, "layer4")
	require.NoError(t, err)
	assert.Equal(t, "layer4.1", e.Layer())

	x := randomInput(1, 224)
	for class := range 3 {
		res, err := e.Explain(x, &class)
		require.NoError(t, err)
		assert.Equal(t, class, res.ClassIndex)
		require.Len(t, res.Map, 7)
		for _, row := range res.Map {
			require.Len(t, row, 7)
		}
		assertUnitRange(t, res.Map)
		assert.Equal(t, []int{512, 7, 7}, res.Activations.Shape)
		assert.Equal(t, res.Activations.Shape, res.Gradients.Shape)
	}
}

func TestExplainDefaultsToArgmax(t *testing.T) {
	m, err := classifier.ResNet18(3, 2)
	require.NoError(t, err)
	e, err := New(m, "layer3")
	require.NoError(t, err)

	res, err := e.Explain(randomInput(2, 64), nil)
	require.NoError(t, err)
	assert.Equal(t, tensor.Argmax(res.Logits), res.ClassIndex)
	assert.Len(t, res.Map, 4)
	assertUnitRange(t, res.Map)
}

func TestExplainRejectsClassOutOfRange(t *testing.T) {
	m, err := classifier.ResNet18(3, 3)
	require.NoError(t, err)
	e, err := New(m, "layer4")
	require.NoError(t, err)

	for _, bad := range []int{-1, 3} {
		_, err := e.Explain(randomInput(3, 32), &bad)
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	}
}

func TestNewRejectsUnknownLayers(t *testing.T) {
	m, err := classifier.ResNet18(3, 4)
	require.NoError(t, err)

	for _, layer := range []string{"layer7", "fc", "avgpool", "input", "decoder.0"} {
		_, err := New(m, layer)
		require.Error(t, err, layer)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), layer)
	}
	_, err = New(nil, "layer4")
	require.Error(t, err)
}

func TestResolveTargetWithoutModel(t *testing.T) {
	for layer, want := range map[string]string{"layer4": "layer4.1", " layer2 ": "layer2.1", "layer3.0": "layer3.0", "conv1": "conv1"} {
		stage, err := ResolveTarget(layer)
		require.NoError(t, err, layer)
		assert.Equal(t, want, stage)
	}
	for _, layer := range []string{"layer9", "fc", ""} {
		_, err := ResolveTarget(layer)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), layer)
	}

	m, err := classifier.ResNet18(3, 4)
	require.NoError(t, err)
	e, err := New(m, "layer4")
	require.NoError(t, err)
	assert.Equal(t, "layer4", e.Target())
	assert.Equal(t, "layer4.1", e.Layer())
}

func TestExplainIsReentrant(t *testing.T) {
	m, err := classifier.ResNet18(3, 5)
	require.NoError(t, err)
	e, err := New(m, "layer4")
	require.NoError(t, err)

	inputs := []*tensor.Tensor{randomInput(10, 32), randomInput(11, 32), randomInput(12, 32), randomInput(13, 32)}
	want := make([]*Result, len(inputs))
	for i, x := range inputs {
		want[i], err = e.Explain(x, nil)
		require.NoError(t, err)
	}

	got := make([]*Result, len(inputs))
	var wg sync.WaitGroup
	for i, x := range inputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], _ = e.Explain(x, nil)
		}()
	}
	wg.Wait()

	for i := range inputs {
		require.NotNil(t, got[i])
		assert.Equal(t, want[i].Map, got[i].Map)
		assert.Equal(t, want[i].ClassIndex, got[i].ClassIndex)
	}
}

func TestCompute(t *testing.T) {
	t.Parallel()

	acts, err := tensor.FromSlice([]float64{
		1, 2, 3, 4, // channel 0
		4, 0, 0, 0, // channel 1
	}, 2, 2, 2)
	require.NoError(t, err)
	grads, err := tensor.FromSlice([]float64{
		1, 1, 1, 1, // mean 1
		-2, -2, -2, -2, // mean -2
	}, 2, 2, 2)
	require.NoError(t, err)

	cam, err := Compute(acts, grads)
	require.NoError(t, err)
	// raw = [1-8, 2, 3, 4] -> relu [0, 2, 3, 4] -> /4
	assert.InDeltaSlice(t, []float64{0, 0.5}, cam[0], 1e-8)
	assert.InDeltaSlice(t, []float64{0.75, 1}, cam[1], 1e-8)

	zero := tensor.New(2, 2, 2)
	cam, err = Compute(zero, zero)
	require.NoError(t, err)
	assertUnitRange(t, cam)
	assert.Equal(t, []float64{0, 0}, cam[0])

	_, err = Compute(acts, tensor.New(2, 1, 4))
	require.Error(t, err)
}

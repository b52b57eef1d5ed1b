// Package classifier implements the ResNet-18 ultrasound classifier: the network itself,
// its weight file, the class names, prediction, and the process-wide model loader.
//
// Parameter names follow the torchvision state-dict keys (conv1.weight, bn1.running_mean,
// layer4.1.conv2.weight, fc.bias, ...). Batch normalisation always uses the running
// statistics, so Forward is a pure function of the input and the parameters.
package classifier

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/sonoscan/sonoscan/internal/tensor"
)

const (
	bnEps = 1e-5

	// FeatureWidth is the channel count entering the fc layer.
	FeatureWidth = 512
)

// Param is a named model tensor. Buffers (batch-norm running statistics) are saved with
// the weights but never trained.
type Param struct {
	Name      string
	Value     *tensor.Tensor
	Trainable bool
	Buffer    bool
}

type conv2d struct {
	weight      *Param
	stride, pad int
}

type batchNorm struct {
	weight, bias, mean, variance *Param
}

type basicBlock struct {
	name         string
	conv1, conv2 conv2d
	bn1, bn2     batchNorm
	downConv     *conv2d
	downBN       *batchNorm
}

// Model is a ResNet-18 with a numClasses-wide fc head.
type Model struct {
	numClasses int

	conv1  conv2d
	bn1    batchNorm
	blocks []*basicBlock
	fcW    *Param
	fcB    *Param

	params []*Param
	byName map[string]*Param
}

// ResNet18 builds the network with deterministic He-initialised weights.
func ResNet18(numClasses int, seed uint64) (*Model, error) {
	if numClasses < 1 {
		return nil, fmt.Errorf("classifier: need at least one class, got %d", numClasses)
	}
	m := &Model{numClasses: numClasses, byName: make(map[string]*Param)}
	rng := rand.New(rand.NewPCG(seed, 0x5eed))

	m.conv1 = m.newConv(rng, "conv1", 3, 64, 7, 2, 3)
	m.bn1 = m.newBN("bn1", 64)

	inC := 64
	for stage, outC := range []int{64, 128, 256, 512} {
		for i := range 2 {
			stride := 1
			if i == 0 && stage > 0 {
				stride = 2
			}
			name := fmt.Sprintf("layer%d.%d", stage+1, i)
			b := &basicBlock{name: name}
			b.conv1 = m.newConv(rng, name+".conv1", inC, outC, 3, stride, 1)
			b.bn1 = m.newBN(name+".bn1", outC)
			b.conv2 = m.newConv(rng, name+".conv2", outC, outC, 3, 1, 1)
			b.bn2 = m.newBN(name+".bn2", outC)
			if stride != 1 || inC != outC {
				dc := m.newConv(rng, name+".downsample.0", inC, outC, 1, stride, 0)
				db := m.newBN(name+".downsample.1", outC)
				b.downConv, b.downBN = &dc, &db
			}
			m.blocks = append(m.blocks, b)
			inC = outC
		}
	}

	bound := 1 / math.Sqrt(FeatureWidth)
	m.fcW = m.addParam("fc.weight", uniform(rng, bound, numClasses, FeatureWidth), false)
	m.fcB = m.addParam("fc.bias", uniform(rng, bound, numClasses), false)

	return m, nil
}

func (m *Model) addParam(name string, t *tensor.Tensor, buffer bool) *Param {
	p := &Param{Name: name, Value: t, Trainable: !buffer, Buffer: buffer}
	m.params = append(m.params, p)
	m.byName[name] = p
	return p
}

// newConv uses kaiming normal init with fan_out, matching torchvision.
func (m *Model) newConv(rng *rand.Rand, name string, in, out, k, stride, pad int) conv2d {
	w := tensor.New(out, in, k, k)
	std := math.Sqrt(2 / float64(out*k*k))
	for i := range w.Data {
		w.Data[i] = rng.NormFloat64() * std
	}
	return conv2d{weight: m.addParam(name+".weight", w, false), stride: stride, pad: pad}
}

func (m *Model) newBN(name string, c int) batchNorm {
	ones := func() *tensor.Tensor {
		t := tensor.New(c)
		for i := range t.Data {
			t.Data[i] = 1
		}
		return t
	}
	return batchNorm{
		weight:   m.addParam(name+".weight", ones(), false),
		bias:     m.addParam(name+".bias", tensor.New(c), false),
		mean:     m.addParam(name+".running_mean", tensor.New(c), true),
		variance: m.addParam(name+".running_var", ones(), true),
	}
}

func uniform(rng *rand.Rand, bound float64, shape ...int) *tensor.Tensor {
	t := tensor.New(shape...)
	for i := range t.Data {
		t.Data[i] = (2*rng.Float64() - 1) * bound
	}
	return t
}

// NumClasses returns the width of the fc layer.
func (m *Model) NumClasses() int { return m.numClasses }

// Params returns every parameter and buffer in state-dict order.
func (m *Model) Params() []*Param { return slices.Clone(m.params) }

// Param looks a parameter up by its state-dict name.
func (m *Model) Param(name string) (*Param, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// TrainableParams returns the parameters an optimizer should update.
func (m *Model) TrainableParams() []*Param {
	var out []*Param
	for _, p := range m.params {
		if p.Trainable && !p.Buffer {
			out = append(out, p)
		}
	}
	return out
}

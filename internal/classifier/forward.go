package classifier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

// StageInput names the model input in Backward.
const StageInput = "input"

// Gradients accumulates parameter gradients by state-dict name.
type Gradients map[string]*tensor.Tensor

func (g Gradients) add(p *Param, d *tensor.Tensor) error {
	if g == nil || !p.Trainable || p.Buffer {
		return nil
	}
	if cur, ok := g[p.Name]; ok {
		return tensor.AddInPlace(cur, d)
	}
	g[p.Name] = d
	return nil
}

func (g Gradients) wants(p *Param) bool {
	return g != nil && p.Trainable && !p.Buffer
}

type backwardFunc func(dy *tensor.Tensor, grads Gradients, needInput bool) (*tensor.Tensor, error)

type tapeEntry struct {
	stage    string
	backward backwardFunc
}

// Trace records one forward pass: the output of every named stage and what Backward
// needs to differentiate through it. A Trace is owned by a single caller.
type Trace struct {
	Input  *tensor.Tensor
	stages map[string]*tensor.Tensor
	tape   []tapeEntry
}

// Activation returns the output of a stage recorded during Forward.
func (tr *Trace) Activation(stage string) (*tensor.Tensor, bool) {
	t, ok := tr.stages[stage]
	return t, ok
}

// Output is the result of Forward.
type Output struct {
	Logits []float64
	Trace  *Trace
}

// stageNames lists the recorded stages in forward order.
func stageNames() []string {
	names := []string{"conv1", "bn1", "relu", "maxpool"}
	for l := 1; l <= 4; l++ {
		for b := range 2 {
			names = append(names, fmt.Sprintf("layer%d.%d", l, b))
		}
	}
	return append(names, "avgpool", "fc")
}

// Stages returns the stage names Backward and Grad-CAM accept, in forward order.
// layer1 to layer4 are also accepted and resolve to their last block.
func Stages() []string { return stageNames() }

// ResolveStage maps a dotted layer path to a recorded stage name.
func ResolveStage(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == StageInput {
		return name, nil
	}
	if len(name) == len("layer1") && strings.HasPrefix(name, "layer") && name[5] >= '1' && name[5] <= '4' {
		return name + ".1", nil
	}
	if slices.Contains(stageNames(), name) {
		return name, nil
	}
	return "", errors.Newf("unknown layer %q", name).
		Component("classifier").
		Category(errors.CategoryConfiguration).
		Context("known_layers", strings.Join(stageNames(), ",")).
		Build()
}

// Forward runs the network on one 3×H×W input and records a Trace.
func (m *Model) Forward(x *tensor.Tensor) (*Output, error) {
	return m.forward(x, true)
}

// Logits runs the network without recording a trace.
func (m *Model) Logits(x *tensor.Tensor) ([]float64, error) {
	out, err := m.forward(x, false)
	if err != nil {
		return nil, err
	}
	return out.Logits, nil
}

func (m *Model) forward(x *tensor.Tensor, record bool) (*Output, error) {
	c, _, _, err := x.CHW()
	if err != nil {
		return nil, modelInferenceError(err)
	}
	if c != 3 {
		return nil, modelInferenceError(fmt.Errorf("expected 3 input channels, got %d", c))
	}

	tr := &Trace{Input: x, stages: make(map[string]*tensor.Tensor)}
	push := func(stage string, out *tensor.Tensor, bw backwardFunc) {
		if record {
			tr.stages[stage] = out
			tr.tape = append(tr.tape, tapeEntry{stage: stage, backward: bw})
		}
	}

	h, bw, err := m.conv1.forward(x)
	if err != nil {
		return nil, modelInferenceError(err)
	}
	push("conv1", h, bw)

	h, bw, err = m.bn1.forward(h)
	if err != nil {
		return nil, modelInferenceError(err)
	}
	push("bn1", h, bw)

	h, bw = reluForward(h)
	push("relu", h, bw)

	h, bw, err = maxPoolForward(h)
	if err != nil {
		return nil, modelInferenceError(err)
	}
	push("maxpool", h, bw)

	for _, b := range m.blocks {
		h, bw, err = b.forward(h)
		if err != nil {
			return nil, modelInferenceError(fmt.Errorf("%s: %w", b.name, err))
		}
		push(b.name, h, bw)
	}

	pooled, err := tensor.GlobalAvgPool(h)
	if err != nil {
		return nil, modelInferenceError(err)
	}
	inShape := slices.Clone(h.Shape)
	push("avgpool", pooled, func(dy *tensor.Tensor, _ Gradients, _ bool) (*tensor.Tensor, error) {
		return tensor.GlobalAvgPoolBackward(dy, inShape), nil
	})

	logits, err := tensor.Linear(pooled, m.fcW.Value, m.fcB.Value)
	if err != nil {
		return nil, modelInferenceError(err)
	}
	push("fc", logits, func(dy *tensor.Tensor, grads Gradients, _ bool) (*tensor.Tensor, error) {
		dx, dw, db := tensor.LinearBackward(pooled, m.fcW.Value, dy)
		if err := grads.add(m.fcW, dw); err != nil {
			return nil, err
		}
		if err := grads.add(m.fcB, db); err != nil {
			return nil, err
		}
		return dx, nil
	})

	out := &Output{Logits: logits.Data}
	if record {
		out.Trace = tr
	}
	return out, nil
}

// Backward propagates gradLogits from the fc output down to the output of stage and
// returns the gradient there. With stage == StageInput it returns the input gradient;
// with an empty stage it runs through every layer and returns nil.
// Parameter gradients of trainable parameters passed on the way are accumulated into
// grads when it is non-nil.
func (m *Model) Backward(tr *Trace, gradLogits []float64, stage string, grads Gradients) (*tensor.Tensor, error) {
	if tr == nil || len(tr.tape) == 0 {
		return nil, fmt.Errorf("classifier: backward needs a recorded trace")
	}
	if len(gradLogits) != m.numClasses {
		return nil, fmt.Errorf("classifier: got %d logit gradients for %d classes", len(gradLogits), m.numClasses)
	}
	resolved := ""
	if stage != "" {
		var err error
		if resolved, err = ResolveStage(stage); err != nil {
			return nil, err
		}
	}

	dy, err := tensor.FromSlice(slices.Clone(gradLogits), m.numClasses)
	if err != nil {
		return nil, err
	}

	for i := len(tr.tape) - 1; i >= 0; i-- {
		entry := tr.tape[i]
		if resolved != "" && entry.stage == resolved {
			return dy, nil
		}
		needInput := i > 0 || resolved == StageInput
		dy, err = entry.backward(dy, grads, needInput)
		if err != nil {
			return nil, fmt.Errorf("classifier: backward through %s: %w", entry.stage, err)
		}
	}
	if resolved == "" {
		return nil, nil
	}
	return dy, nil
}

func modelInferenceError(err error) error {
	return errors.New(err).
		Component("classifier").
		Category(errors.CategoryModelInference).
		Build()
}

func (c conv2d) forward(x *tensor.Tensor) (*tensor.Tensor, backwardFunc, error) {
	y, err := tensor.Conv2D(x, c.weight.Value, c.stride, c.pad)
	if err != nil {
		return nil, nil, err
	}
	bw := func(dy *tensor.Tensor, grads Gradients, needInput bool) (*tensor.Tensor, error) {
		dx, dw, err := tensor.Conv2DBackward(x, c.weight.Value, dy, c.stride, c.pad, needInput, grads.wants(c.weight))
		if err != nil {
			return nil, err
		}
		if dw != nil {
			if err := grads.add(c.weight, dw); err != nil {
				return nil, err
			}
		}
		return dx, nil
	}
	return y, bw, nil
}

func (b batchNorm) forward(x *tensor.Tensor) (*tensor.Tensor, backwardFunc, error) {
	y, err := tensor.BatchNorm(x, b.weight.Value, b.bias.Value, b.mean.Value, b.variance.Value, bnEps)
	if err != nil {
		return nil, nil, err
	}
	bw := func(dy *tensor.Tensor, grads Gradients, _ bool) (*tensor.Tensor, error) {
		dx, dgamma, dbeta := tensor.BatchNormBackward(x, b.weight.Value, b.mean.Value, b.variance.Value, dy, bnEps)
		if err := grads.add(b.weight, dgamma); err != nil {
			return nil, err
		}
		if err := grads.add(b.bias, dbeta); err != nil {
			return nil, err
		}
		return dx, nil
	}
	return y, bw, nil
}

func reluForward(x *tensor.Tensor) (*tensor.Tensor, backwardFunc) {
	y := tensor.ReLU(x)
	return y, func(dy *tensor.Tensor, _ Gradients, _ bool) (*tensor.Tensor, error) {
		return tensor.ReLUBackward(y, dy), nil
	}
}

func maxPoolForward(x *tensor.Tensor) (*tensor.Tensor, backwardFunc, error) {
	y, idx, err := tensor.MaxPool2D(x, 3, 2, 1)
	if err != nil {
		return nil, nil, err
	}
	inShape := slices.Clone(x.Shape)
	return y, func(dy *tensor.Tensor, _ Gradients, _ bool) (*tensor.Tensor, error) {
		return tensor.MaxPool2DBackward(dy, idx, inShape), nil
	}, nil
}

// forward runs conv-bn-relu-conv-bn, adds the shortcut and applies the final relu.
func (b *basicBlock) forward(x *tensor.Tensor) (*tensor.Tensor, backwardFunc, error) {
	c1, bwC1, err := b.conv1.forward(x)
	if err != nil {
		return nil, nil, err
	}
	n1, bwN1, err := b.bn1.forward(c1)
	if err != nil {
		return nil, nil, err
	}
	r1, bwR1 := reluForward(n1)
	c2, bwC2, err := b.conv2.forward(r1)
	if err != nil {
		return nil, nil, err
	}
	n2, bwN2, err := b.bn2.forward(c2)
	if err != nil {
		return nil, nil, err
	}

	shortcut := x
	var bwDC, bwDN backwardFunc
	if b.downConv != nil {
		dc, f, err := b.downConv.forward(x)
		if err != nil {
			return nil, nil, err
		}
		bwDC = f
		shortcut, bwDN, err = b.downBN.forward(dc)
		if err != nil {
			return nil, nil, err
		}
	}

	sum, err := tensor.Add(n2, shortcut)
	if err != nil {
		return nil, nil, err
	}
	out, bwOut := reluForward(sum)

	bw := func(dy *tensor.Tensor, grads Gradients, _ bool) (*tensor.Tensor, error) {
		ds, _ := bwOut(dy, grads, true)

		g, err := chain(ds, grads, bwN2, bwC2, bwR1, bwN1)
		if err != nil {
			return nil, err
		}
		dx, err := bwC1(g, grads, true)
		if err != nil {
			return nil, err
		}

		dShort := ds
		if bwDC != nil {
			g, err := bwDN(ds, grads, true)
			if err != nil {
				return nil, err
			}
			if dShort, err = bwDC(g, grads, true); err != nil {
				return nil, err
			}
		}
		if err := tensor.AddInPlace(dx, dShort); err != nil {
			return nil, err
		}
		return dx, nil
	}
	return out, bw, nil
}

// chain applies backward functions in order, each feeding the next.
func chain(dy *tensor.Tensor, grads Gradients, fns ...backwardFunc) (*tensor.Tensor, error) {
	var err error
	for _, f := range fns {
		if dy, err = f(dy, grads, true); err != nil {
			return nil, err
		}
	}
	return dy, nil
}

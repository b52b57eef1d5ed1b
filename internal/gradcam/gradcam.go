// Package gradcam computes Grad-CAM class activation maps for the classifier.
//
// The activations and gradients of the target stage are plain values inside each
// Result, so one Explainer can serve concurrent requests.
package gradcam

import (
	"fmt"
	"math"
	"strings"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

const normEps = 1e-8

// Explainer produces Grad-CAM maps for one model and target stage.
type Explainer struct {
	model  *classifier.Model
	target string
	layer  string
}

// Result holds a class activation map and the values it was computed from.
type Result struct {
	Map         [][]float64 // H'×W' of the target stage, values in [0,1]
	ClassIndex  int         // explained class
	Logits      []float64
	Activations *tensor.Tensor // C×H'×W'
	Gradients   *tensor.Tensor // d score / d activations, same shape
}

// New resolves targetLayer (layer1..layer4, layer4.1, conv1, ...) against the model.
// An unknown path is a configuration error.
func New(model *classifier.Model, targetLayer string) (*Explainer, error) {
	if model == nil {
		return nil, errors.Newf("grad-cam needs a model").
			Component("gradcam").
			Category(errors.CategoryConfiguration).
			Build()
	}
	stage, err := ResolveTarget(targetLayer)
	if err != nil {
		return nil, err
	}
	return &Explainer{model: model, target: strings.TrimSpace(targetLayer), layer: stage}, nil
}

// ResolveTarget checks a configured target layer without a model and returns the
// stage it maps to. Layers without spatial activations are rejected.
func ResolveTarget(targetLayer string) (string, error) {
	stage, err := classifier.ResolveStage(targetLayer)
	if err != nil {
		return "", err
	}
	if stage == classifier.StageInput || stage == "avgpool" || stage == "fc" {
		return "", errors.Newf("layer %q has no spatial activations", targetLayer).
			Component("gradcam").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return stage, nil
}

// Target returns the layer path as configured, e.g. layer4.
func (e *Explainer) Target() string { return e.target }

// Layer returns the resolved stage name, e.g. layer4.1.
func (e *Explainer) Layer() string { return e.layer }

// Explain computes the map for classIdx, or for the argmax class when classIdx is nil.
func (e *Explainer) Explain(x *tensor.Tensor, classIdx *int) (*Result, error) {
	out, err := e.model.Forward(x)
	if err != nil {
		return nil, err
	}

	idx := tensor.Argmax(out.Logits)
	if classIdx != nil {
		idx = *classIdx
		if idx < 0 || idx >= len(out.Logits) {
			return nil, errors.Newf("class index %d out of range [0,%d)", idx, len(out.Logits)).
				Component("gradcam").
				Category(errors.CategoryValidation).
				Build()
		}
	}

	oneHot := make([]float64, len(out.Logits))
	oneHot[idx] = 1

	grads, err := e.model.Backward(out.Trace, oneHot, e.layer, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("gradcam").
			Category(errors.CategoryModelInference).
			Build()
	}
	acts, ok := out.Trace.Activation(e.layer)
	if !ok {
		return nil, fmt.Errorf("gradcam: no activation recorded for %s", e.layer)
	}

	cam, err := Compute(acts, grads)
	if err != nil {
		return nil, err
	}
	return &Result{
		Map:         cam,
		ClassIndex:  idx,
		Logits:      out.Logits,
		Activations: acts,
		Gradients:   grads,
	}, nil
}

// Compute weights every activation channel by the spatial mean of its gradient, sums,
// applies ReLU and min-max normalises to [0,1].
func Compute(acts, grads *tensor.Tensor) ([][]float64, error) {
	c, h, w, err := acts.CHW()
	if err != nil {
		return nil, err
	}
	if !acts.SameShape(grads) {
		return nil, fmt.Errorf("gradcam: activations %v and gradients %v differ", acts.Shape, grads.Shape)
	}

	sum := make([]float64, h*w)
	n := float64(h * w)
	for ch := range c {
		var weight float64
		for _, g := range grads.Channel(ch) {
			weight += g
		}
		weight /= n
		if weight == 0 {
			continue
		}
		for i, a := range acts.Channel(ch) {
			sum[i] += weight * a
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range sum {
		v = math.Max(v, 0)
		sum[i] = v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	cam := make([][]float64, h)
	for y := range h {
		cam[y] = make([]float64, w)
		for x := range w {
			cam[y][x] = (sum[y*w+x] - lo) / (hi - lo + normEps)
		}
	}
	return cam, nil
}

package training

import (
	"math"

	"github.com/sonoscan/sonoscan/internal/classifier"
)

// Adam is the Adam optimizer without weight decay.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	step int
	m, v map[string][]float64
}

// NewAdam returns Adam with the usual betas and epsilon.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     make(map[string][]float64),
		v:     make(map[string][]float64),
	}
}

// Step updates every trainable parameter that has a gradient in grads.
func (a *Adam) Step(params []*classifier.Param, grads classifier.Gradients) {
	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for _, p := range params {
		if !p.Trainable || p.Buffer {
			continue
		}
		g, ok := grads[p.Name]
		if !ok {
			continue
		}
		m, v := a.m[p.Name], a.v[p.Name]
		if m == nil {
			m = make([]float64, len(p.Value.Data))
			v = make([]float64, len(p.Value.Data))
			a.m[p.Name], a.v[p.Name] = m, v
		}
		for i, gi := range g.Data {
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*gi
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*gi*gi
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			p.Value.Data[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
	}
}

// CosineAnnealing anneals the learning rate from Base to EtaMin over TMax epochs.
type CosineAnnealing struct {
	Base   float64
	TMax   int
	EtaMin float64
}

// LR returns the rate for a zero-based epoch.
func (c CosineAnnealing) LR(epoch int) float64 {
	if c.TMax <= 0 {
		return c.Base
	}
	return c.EtaMin + (c.Base-c.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(c.TMax)))/2
}

// crossEntropy returns -log softmax(logits)[label] and the gradient of scale times
// that loss with respect to the logits.
func crossEntropy(logits []float64, label int, scale float64) (loss float64, grad []float64) {
	maxV := logits[0]
	for _, v := range logits[1:] {
		maxV = math.Max(maxV, v)
	}
	sum := 0.0
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(v - maxV)
		sum += probs[i]
	}
	grad = make([]float64, len(logits))
	for i := range probs {
		probs[i] /= sum
		grad[i] = scale * probs[i]
	}
	grad[label] -= scale
	return -math.Log(math.Max(probs[label], 1e-300)), grad
}

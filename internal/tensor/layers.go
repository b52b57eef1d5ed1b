package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// BatchNorm normalises every channel with fixed statistics: (x-mean)/sqrt(var+eps)·gamma + beta.
func BatchNorm(x, gamma, beta, mean, variance *Tensor, eps float64) (*Tensor, error) {
	c, h, w, err := x.CHW()
	if err != nil {
		return nil, err
	}
	for _, p := range []*Tensor{gamma, beta, mean, variance} {
		if p.Len() != c {
			return nil, fmt.Errorf("tensor: batchnorm parameter has %d values for %d channels", p.Len(), c)
		}
	}

	out := New(c, h, w)
	for ch := range c {
		scale := gamma.Data[ch] / math.Sqrt(variance.Data[ch]+eps)
		shift := beta.Data[ch] - mean.Data[ch]*scale
		src, dst := x.Channel(ch), out.Channel(ch)
		for i, v := range src {
			dst[i] = v*scale + shift
		}
	}
	return out, nil
}

// BatchNormBackward returns dx, dgamma and dbeta for BatchNorm with fixed statistics.
func BatchNormBackward(x, gamma, mean, variance, dy *Tensor, eps float64) (dx, dgamma, dbeta *Tensor) {
	c := x.Shape[0]
	dx = New(x.Shape...)
	dgamma = New(c)
	dbeta = New(c)

	for ch := range c {
		inv := 1 / math.Sqrt(variance.Data[ch]+eps)
		g := dy.Channel(ch)
		src := x.Channel(ch)
		dst := dx.Channel(ch)

		var sg, sgx float64
		for i, v := range g {
			sg += v
			sgx += v * (src[i] - mean.Data[ch]) * inv
			dst[i] = v * gamma.Data[ch] * inv
		}
		dgamma.Data[ch] = sgx
		dbeta.Data[ch] = sg
	}
	return dx, dgamma, dbeta
}

// ReLU returns max(x, 0).
func ReLU(x *Tensor) *Tensor {
	out := x.Clone()
	for i, v := range out.Data {
		if v < 0 {
			out.Data[i] = 0
		}
	}
	return out
}

// ReLUInPlace clamps negative values of x to zero.
func ReLUInPlace(x *Tensor) {
	for i, v := range x.Data {
		if v < 0 {
			x.Data[i] = 0
		}
	}
}

// ReLUBackward masks dy by the positive entries of the ReLU output y.
func ReLUBackward(y, dy *Tensor) *Tensor {
	dx := dy.Clone()
	for i, v := range y.Data {
		if v <= 0 {
			dx.Data[i] = 0
		}
	}
	return dx
}

// MaxPool2D applies square max pooling. It returns the flat argmax index of every output,
// which MaxPool2DBackward needs.
func MaxPool2D(x *Tensor, k, stride, pad int) (*Tensor, []int, error) {
	c, h, w, err := x.CHW()
	if err != nil {
		return nil, nil, err
	}
	outH := ConvOutputSize(h, k, stride, pad)
	outW := ConvOutputSize(w, k, stride, pad)
	if outH < 1 || outW < 1 {
		return nil, nil, fmt.Errorf("tensor: maxpool input %v too small", x.Shape)
	}

	out := New(c, outH, outW)
	idx := make([]int, out.Len())
	for ch := range c {
		base := ch * h * w
		for oy := range outH {
			for ox := range outW {
				best, bestIdx := math.Inf(-1), -1
				for ki := range k {
					iy := oy*stride - pad + ki
					if iy < 0 || iy >= h {
						continue
					}
					for kj := range k {
						ix := ox*stride - pad + kj
						if ix < 0 || ix >= w {
							continue
						}
						if v := x.Data[base+iy*w+ix]; v > best {
							best, bestIdx = v, base+iy*w+ix
						}
					}
				}
				o := (ch*outH+oy)*outW + ox
				out.Data[o] = best
				idx[o] = bestIdx
			}
		}
	}
	return out, idx, nil
}

// MaxPool2DBackward routes dy to the argmax positions recorded by MaxPool2D.
func MaxPool2DBackward(dy *Tensor, idx []int, inShape []int) *Tensor {
	dx := New(inShape...)
	for o, i := range idx {
		if i >= 0 {
			dx.Data[i] += dy.Data[o]
		}
	}
	return dx
}

// GlobalAvgPool averages every channel, returning a vector of length C.
func GlobalAvgPool(x *Tensor) (*Tensor, error) {
	c, h, w, err := x.CHW()
	if err != nil {
		return nil, err
	}
	out := New(c)
	n := float64(h * w)
	for ch := range c {
		out.Data[ch] = floats.Sum(x.Channel(ch)) / n
	}
	return out, nil
}

// GlobalAvgPoolBackward spreads dy evenly over every spatial position.
func GlobalAvgPoolBackward(dy *Tensor, inShape []int) *Tensor {
	dx := New(inShape...)
	n := float64(inShape[1] * inShape[2])
	for ch := range inShape[0] {
		g := dy.Data[ch] / n
		plane := dx.Channel(ch)
		for i := range plane {
			plane[i] = g
		}
	}
	return dx
}

// Linear computes weight·x + bias for a vector x. Weight is Out×In.
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if len(weight.Shape) != 2 || weight.Shape[1] != x.Len() {
		return nil, fmt.Errorf("tensor: linear weight %v does not accept %d inputs", weight.Shape, x.Len())
	}
	outN := weight.Shape[0]
	out := New(outN)

	wm := mat.NewDense(outN, x.Len(), weight.Data)
	ov := mat.NewVecDense(outN, out.Data)
	ov.MulVec(wm, mat.NewVecDense(x.Len(), x.Data))
	if bias != nil {
		floats.Add(out.Data, bias.Data)
	}
	return out, nil
}

// LinearBackward returns dx, dweight and dbias for Linear.
func LinearBackward(x, weight, dy *Tensor) (dx, dw, db *Tensor) {
	outN, inN := weight.Shape[0], weight.Shape[1]

	dx = New(inN)
	wm := mat.NewDense(outN, inN, weight.Data)
	dyv := mat.NewVecDense(outN, dy.Data)
	mat.NewVecDense(inN, dx.Data).MulVec(wm.T(), dyv)

	dw = New(outN, inN)
	mat.NewDense(outN, inN, dw.Data).Outer(1, dyv, mat.NewVecDense(inN, x.Data))

	db = dy.Clone()
	return dx, dw, db
}

// Softmax returns the numerically stable softmax of logits.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxV := floats.Max(logits)
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	floats.Scale(1/sum, out)
	return out
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MaxIdx(values)
}

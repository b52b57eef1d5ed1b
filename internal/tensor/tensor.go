// Package tensor implements the dense float64 arrays and CNN kernels used by the classifier.
//
// Image tensors are single samples in C×H×W layout. Batching is done by the caller, one
// sample at a time, so every kernel here works on one image. Matrix products go through
// gonum so convolutions run as im2col followed by a GEMM.
package tensor

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Tensor is a dense row-major array.
type Tensor struct {
	Shape []int
	Data  []float64
}

// New returns a zero tensor of the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{Shape: slices.Clone(shape), Data: make([]float64, numel(shape))}
}

// FromSlice wraps data without copying. len(data) must match the shape.
func FromSlice(data []float64, shape ...int) (*Tensor, error) {
	if n := numel(shape); n != len(data) {
		return nil, fmt.Errorf("tensor: shape %v needs %d values, got %d", shape, n, len(data))
	}
	return &Tensor{Shape: slices.Clone(shape), Data: data}, nil
}

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor) Len() int { return len(t.Data) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: slices.Clone(t.Shape), Data: slices.Clone(t.Data)}
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	return slices.Equal(t.Shape, o.Shape)
}

// CHW returns the three dimensions of an image tensor.
func (t *Tensor) CHW() (c, h, w int, err error) {
	if len(t.Shape) != 3 {
		return 0, 0, 0, fmt.Errorf("tensor: expected C×H×W, got shape %v", t.Shape)
	}
	return t.Shape[0], t.Shape[1], t.Shape[2], nil
}

// Channel returns the H×W plane of channel c as a slice into Data.
func (t *Tensor) Channel(c int) []float64 {
	plane := t.Shape[1] * t.Shape[2]
	return t.Data[c*plane : (c+1)*plane]
}

// Add returns a + b element-wise.
func Add(a, b *Tensor) (*Tensor, error) {
	if !a.SameShape(b) {
		return nil, fmt.Errorf("tensor: add shape mismatch %v vs %v", a.Shape, b.Shape)
	}
	out := a.Clone()
	floats.Add(out.Data, b.Data)
	return out, nil
}

// AddInPlace accumulates src into dst.
func AddInPlace(dst, src *Tensor) error {
	if !dst.SameShape(src) {
		return fmt.Errorf("tensor: accumulate shape mismatch %v vs %v", dst.Shape, src.Shape)
	}
	floats.Add(dst.Data, src.Data)
	return nil
}

// Scale multiplies every element by s in place.
func (t *Tensor) Scale(s float64) {
	floats.Scale(s, t.Data)
}

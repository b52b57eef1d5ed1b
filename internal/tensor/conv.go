package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ConvOutputSize returns the spatial output size of a square kernel convolution or pooling.
func ConvOutputSize(in, kernel, stride, pad int) int {
	return (in+2*pad-kernel)/stride + 1
}

// im2col unrolls x into a (C·k·k)×(outH·outW) matrix.
func im2col(x *Tensor, k, stride, pad, outH, outW int) *mat.Dense {
	c, h, w := x.Shape[0], x.Shape[1], x.Shape[2]
	rows, cols := c*k*k, outH*outW
	buf := make([]float64, rows*cols)

	for ch := range c {
		plane := x.Data[ch*h*w : (ch+1)*h*w]
		for ki := range k {
			for kj := range k {
				row := buf[((ch*k+ki)*k+kj)*cols:][:cols]
				for oy := range outH {
					iy := oy*stride - pad + ki
					if iy < 0 || iy >= h {
						continue
					}
					src := plane[iy*w:]
					dst := row[oy*outW:]
					for ox := range outW {
						ix := ox*stride - pad + kj
						if ix >= 0 && ix < w {
							dst[ox] = src[ix]
						}
					}
				}
			}
		}
	}
	return mat.NewDense(rows, cols, buf)
}

// col2im scatters a (C·k·k)×(outH·outW) matrix back into a C×H×W gradient.
func col2im(cols *mat.Dense, c, h, w, k, stride, pad, outH, outW int) *Tensor {
	dx := New(c, h, w)
	raw := cols.RawMatrix()

	for ch := range c {
		plane := dx.Data[ch*h*w : (ch+1)*h*w]
		for ki := range k {
			for kj := range k {
				r := (ch*k+ki)*k + kj
				row := raw.Data[r*raw.Stride:][:outH*outW]
				for oy := range outH {
					iy := oy*stride - pad + ki
					if iy < 0 || iy >= h {
						continue
					}
					dst := plane[iy*w:]
					src := row[oy*outW:]
					for ox := range outW {
						ix := ox*stride - pad + kj
						if ix >= 0 && ix < w {
							dst[ix] += src[ox]
						}
					}
				}
			}
		}
	}
	return dx
}

func checkConv(x, weight *Tensor) (cout, cin, k int, err error) {
	if len(x.Shape) != 3 {
		return 0, 0, 0, fmt.Errorf("tensor: conv input must be C×H×W, got %v", x.Shape)
	}
	if len(weight.Shape) != 4 || weight.Shape[2] != weight.Shape[3] {
		return 0, 0, 0, fmt.Errorf("tensor: conv weight must be Cout×Cin×k×k, got %v", weight.Shape)
	}
	if weight.Shape[1] != x.Shape[0] {
		return 0, 0, 0, fmt.Errorf("tensor: conv expects %d input channels, got %d", weight.Shape[1], x.Shape[0])
	}
	return weight.Shape[0], weight.Shape[1], weight.Shape[2], nil
}

// Conv2D convolves x (C×H×W) with weight (Cout×C×k×k). There is no bias term.
func Conv2D(x, weight *Tensor, stride, pad int) (*Tensor, error) {
	cout, cin, k, err := checkConv(x, weight)
	if err != nil {
		return nil, err
	}
	outH := ConvOutputSize(x.Shape[1], k, stride, pad)
	outW := ConvOutputSize(x.Shape[2], k, stride, pad)
	if outH < 1 || outW < 1 {
		return nil, fmt.Errorf("tensor: conv input %v too small for kernel %d", x.Shape, k)
	}

	cols := im2col(x, k, stride, pad, outH, outW)
	wm := mat.NewDense(cout, cin*k*k, weight.Data)

	out := New(cout, outH, outW)
	om := mat.NewDense(cout, outH*outW, out.Data)
	om.Mul(wm, cols)
	return out, nil
}

// Conv2DBackward returns the gradients of a Conv2D call with respect to its input and weight.
// Either result is nil when not requested.
func Conv2DBackward(x, weight, dy *Tensor, stride, pad int, wantInput, wantWeight bool) (dx, dw *Tensor, err error) {
	cout, cin, k, err := checkConv(x, weight)
	if err != nil {
		return nil, nil, err
	}
	outH, outW := dy.Shape[1], dy.Shape[2]
	if dy.Shape[0] != cout {
		return nil, nil, fmt.Errorf("tensor: conv grad has %d channels, want %d", dy.Shape[0], cout)
	}

	dym := mat.NewDense(cout, outH*outW, dy.Data)

	if wantWeight {
		cols := im2col(x, k, stride, pad, outH, outW)
		dw = New(weight.Shape...)
		dwm := mat.NewDense(cout, cin*k*k, dw.Data)
		dwm.Mul(dym, cols.T())
	}

	if wantInput {
		wm := mat.NewDense(cout, cin*k*k, weight.Data)
		var dcols mat.Dense
		dcols.Mul(wm.T(), dym)
		dx = col2im(&dcols, cin, x.Shape[1], x.Shape[2], k, stride, pad, outH, outW)
	}

	return dx, dw, nil
}

package training

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sonoscan/sonoscan/internal/errors"
)

// RandomSplit deterministically permutes 0..n-1 and splits it into train and validation
// indices. The validation part holds max(1, int(valFrac·n)) items.
func RandomSplit(n int, valFrac float64, seed uint64) (train, val []int, err error) {
	if n < 2 {
		return nil, nil, errors.Newf("need at least 2 samples to split, got %d", n).
			Component("training").
			Category(errors.CategoryValidation).
			Build()
	}
	if valFrac <= 0 || valFrac >= 1 {
		return nil, nil, errors.ValidationError("training", "validation fraction must be in (0,1)")
	}
	nVal := max(1, int(valFrac*float64(n)))
	perm := rand.New(rand.NewPCG(seed, seed)).Perm(n)
	return perm[:n-nVal], perm[n-nVal:], nil
}

// BalancedSampler draws sample indices with replacement, each weighted by the inverse
// frequency of its class, so every class is drawn about equally often.
type BalancedSampler struct {
	dist *distuv.Categorical
}

// NewBalancedSampler weights every label by 1/count[label].
func NewBalancedSampler(labels []int, numClasses int, seed uint64) (*BalancedSampler, error) {
	if len(labels) == 0 {
		return nil, errors.ValidationError("training", "cannot sample from an empty set")
	}
	counts := make([]float64, numClasses)
	for _, l := range labels {
		counts[l]++
	}
	weights := make([]float64, len(labels))
	for i, l := range labels {
		weights[i] = 1 / counts[l]
	}
	d := distuv.NewCategorical(weights, rand.NewPCG(seed, seed^0xba1a))
	return &BalancedSampler{dist: &d}, nil
}

// Draw returns n indices into the label slice the sampler was built from.
func (s *BalancedSampler) Draw(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = int(s.dist.Rand())
	}
	return out
}

// ClassWeights computes smoothed inverse-frequency loss weights: total/count per class,
// blended as alpha·inv + (1-alpha), then scaled to sum to the class count. Classes with
// no samples get the weight of a single sample.
func ClassWeights(counts []int, alpha float64) []float64 {
	c := len(counts)
	if c == 0 {
		return nil
	}
	total := 0.0
	for _, n := range counts {
		total += float64(n)
	}
	w := make([]float64, c)
	for i, n := range counts {
		inv := total / float64(max(n, 1))
		w[i] = alpha*inv + (1 - alpha)
	}
	sum := floats.Sum(w)
	if sum > 0 {
		floats.Scale(float64(c)/sum, w)
	}
	return w
}

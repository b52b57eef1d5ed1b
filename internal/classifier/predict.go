package classifier

import (
	"image"
	"time"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/imaging"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

// Prediction is the classifier's answer for one image.
type Prediction struct {
	Label          string             `json:"label"`
	ClassIndex     int                `json:"class_index"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
	ProcessingTime time.Duration      `json:"-"`
}

// ProcessingMillis returns the processing time in milliseconds.
func (p *Prediction) ProcessingMillis() float64 {
	return float64(p.ProcessingTime) / float64(time.Millisecond)
}

// Classifier pairs a model with its class names and input size.
type Classifier struct {
	Model        *Model
	ClassNames   []string
	ImageSize    int
	Version      string
	WeightsFound bool
}

// NewClassifier checks that names match the fc width.
func NewClassifier(m *Model, names []string, imageSize int, version string) (*Classifier, error) {
	if err := checkClassNames(names, m); err != nil {
		return nil, err
	}
	if imageSize <= 0 {
		return nil, errors.ValidationError("classifier", "image size must be positive")
	}
	return &Classifier{Model: m, ClassNames: names, ImageSize: imageSize, Version: version}, nil
}

// Preprocess turns an image into model input.
func (c *Classifier) Preprocess(img image.Image) (*tensor.Tensor, error) {
	return imaging.Preprocess(img, c.ImageSize)
}

// Predict preprocesses img and classifies it.
func (c *Classifier) Predict(img image.Image) (*Prediction, error) {
	start := time.Now()
	x, err := c.Preprocess(img)
	if err != nil {
		return nil, err
	}
	p, err := c.PredictTensor(x)
	if err != nil {
		return nil, err
	}
	p.ProcessingTime = time.Since(start)
	return p, nil
}

// PredictTensor classifies an already preprocessed input.
func (c *Classifier) PredictTensor(x *tensor.Tensor) (*Prediction, error) {
	start := time.Now()
	logits, err := c.Model.Logits(x)
	if err != nil {
		return nil, err
	}
	return c.fromLogits(logits, time.Since(start)), nil
}

func (c *Classifier) fromLogits(logits []float64, elapsed time.Duration) *Prediction {
	probs := tensor.Softmax(logits)
	idx := tensor.Argmax(probs)

	byLabel := make(map[string]float64, len(probs))
	for i, p := range probs {
		byLabel[c.ClassNames[i]] = p
	}
	return &Prediction{
		Label:          c.ClassNames[idx],
		ClassIndex:     idx,
		Confidence:     probs[idx],
		Probabilities:  byLabel,
		ProcessingTime: elapsed,
	}
}

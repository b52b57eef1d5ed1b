package training

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/imaging"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
	"github.com/sonoscan/sonoscan/internal/tensor"
)

// Config holds the hyperparameters and output locations of a training run.
type Config struct {
	Epochs           int
	BatchSize        int
	LearningRate     float64
	Seed             uint64
	ValSplit         float64
	BalancedSampler  bool
	ClassWeights     bool
	ClassWeightAlpha float64
	Augment          bool
	ImageSize        int
	Workers          int

	WeightsPath    string
	ClassNamesPath string
}

// ConfigFromSettings maps the train section of the settings onto a Config.
func ConfigFromSettings(s *conf.Settings) Config {
	return Config{
		Epochs:           s.Train.Epochs,
		BatchSize:        s.Train.BatchSize,
		LearningRate:     s.Train.LearningRate,
		Seed:             s.Train.Seed,
		ValSplit:         s.Train.ValSplit,
		BalancedSampler:  s.Train.BalancedSampler,
		ClassWeights:     s.Train.ClassWeights,
		ClassWeightAlpha: s.Train.ClassWeightAlpha,
		Augment:          s.Train.Augment,
		ImageSize:        s.Model.ImageSize,
		Workers:          s.Inference.Threads,
		WeightsPath:      s.Model.Path,
		ClassNamesPath:   s.ClassNamesPath(),
	}
}

// EpochResult summarises one epoch.
type EpochResult struct {
	Epoch        int
	TrainLoss    float64
	ValLoss      float64
	ValAccuracy  float64
	LearningRate float64
	Saved        bool
	Duration     time.Duration
}

// Result summarises a whole run.
type Result struct {
	Epochs       []EpochResult
	BestAccuracy float64
	BestEpoch    int
	ClassCounts  []int
}

// Trainer fine-tunes a model on a dataset.
type Trainer struct {
	Model   *classifier.Model
	Data    *Dataset
	Config  Config
	Metrics *metrics.TrainingMetrics
}

// NewTrainer checks that the model head matches the dataset classes.
func NewTrainer(model *classifier.Model, data *Dataset, cfg Config) (*Trainer, error) {
	if model.NumClasses() != len(data.ClassNames) {
		return nil, errors.Newf("model has %d outputs but the dataset has %d classes", model.NumClasses(), len(data.ClassNames)).
			Component("training").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Epochs < 1 || cfg.BatchSize < 1 || cfg.ImageSize < 1 || cfg.LearningRate <= 0 {
		return nil, errors.ValidationError("training", "epochs, batch size, image size and learning rate must be positive")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Trainer{Model: model, Data: data, Config: cfg}, nil
}

// Run trains for the configured epochs. After every epoch the weights and class names are
// saved when validation accuracy is strictly above the best so far, starting from zero. Cancellation is checked between
// batches; on cancellation the best checkpoint already on disk is kept.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	log := getLogger()
	cfg := t.Config

	trainIdx, valIdx, err := RandomSplit(t.Data.Len(), cfg.ValSplit, cfg.Seed)
	if err != nil {
		return nil, err
	}
	train, val := t.Data.Subset(trainIdx), t.Data.Subset(valIdx)

	var sampler *BalancedSampler
	var lossWeights []float64
	switch {
	case cfg.BalancedSampler:
		labels := make([]int, train.Len())
		for i, s := range train.Samples {
			labels[i] = s.Label
		}
		if sampler, err = NewBalancedSampler(labels, len(t.Data.ClassNames), cfg.Seed); err != nil {
			return nil, err
		}
		log.Info("using balanced sampler")
	case cfg.ClassWeights:
		lossWeights = ClassWeights(t.Data.Counts(), cfg.ClassWeightAlpha)
		log.Info("using class-weighted loss", logger.Any("weights", lossWeights))
	}

	log.Info("training started",
		logger.Int("train_samples", train.Len()),
		logger.Int("val_samples", val.Len()),
		logger.Int("epochs", cfg.Epochs),
		logger.Int("batch_size", cfg.BatchSize),
		logger.Any("classes", t.Data.ClassNames),
		logger.Any("class_counts", t.Data.Counts()))

	params := t.Model.TrainableParams()
	stop := t.Model.BackwardStop()
	opt := NewAdam(cfg.LearningRate)
	sched := CosineAnnealing{Base: cfg.LearningRate, TMax: cfg.Epochs}
	shuffle := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))

	res := &Result{ClassCounts: t.Data.Counts()}
	for epoch := range cfg.Epochs {
		start := time.Now()
		lr := sched.LR(epoch)
		opt.LR = lr

		var order []int
		if sampler != nil {
			order = sampler.Draw(train.Len())
		} else {
			order = shuffle.Perm(train.Len())
		}

		var lossSum float64
		for b := 0; b < len(order); b += cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return res, errors.New(err).Component("training").Category(errors.CategoryCancellation).Build()
			}
			batch := order[b:min(b+cfg.BatchSize, len(order))]
			loss, grads, err := t.batchGradients(train, batch, lossWeights, stop, epoch)
			if err != nil {
				return res, err
			}
			opt.Step(params, grads)
			lossSum += loss * float64(len(batch))
		}
		trainLoss := lossSum / float64(len(order))

		valLoss, valAcc, err := t.validate(ctx, val, lossWeights)
		if err != nil {
			return res, err
		}

		er := EpochResult{
			Epoch:        epoch + 1,
			TrainLoss:    trainLoss,
			ValLoss:      valLoss,
			ValAccuracy:  valAcc,
			LearningRate: lr,
		}
		if valAcc > res.BestAccuracy {
			if err := t.save(); err != nil {
				return res, err
			}
			res.BestAccuracy, res.BestEpoch = valAcc, epoch+1
			er.Saved = true
		}
		er.Duration = time.Since(start)
		res.Epochs = append(res.Epochs, er)

		t.Metrics.RecordEpoch(er.Epoch, trainLoss, valLoss, valAcc, res.BestAccuracy, lr)
		log.Info("epoch finished",
			logger.Int("epoch", er.Epoch),
			logger.Int("epochs", cfg.Epochs),
			logger.Float64("train_loss", trainLoss),
			logger.Float64("val_loss", valLoss),
			logger.Float64("val_acc", valAcc),
			logger.Float64("lr", lr),
			logger.Bool("saved", er.Saved),
			logger.Duration("duration", er.Duration))
	}
	if res.BestEpoch == 0 {
		log.Warn("validation accuracy never rose above zero, no checkpoint written")
	}
	return res, nil
}

// batchGradients runs forward and backward for every sample of a batch in parallel and
// returns the mean (or class-weighted mean) loss with the summed parameter gradients.
func (t *Trainer) batchGradients(ds *Dataset, batch []int, weights []float64, stop string, epoch int) (float64, classifier.Gradients, error) {
	weightSum := 0.0
	for _, idx := range batch {
		weightSum += sampleWeight(weights, ds.Samples[idx].Label)
	}

	var (
		mu      sync.Mutex
		total   = make(classifier.Gradients)
		lossSum float64
	)
	var g errgroup.Group
	g.SetLimit(t.Config.Workers)
	for pos, idx := range batch {
		g.Go(func() error {
			s := ds.Samples[idx]
			var aug *imaging.Augmenter
			if t.Config.Augment {
				aug = imaging.NewAugmenter(t.Config.Seed ^ uint64(epoch)<<32 ^ uint64(pos)<<16 ^ uint64(idx))
			}
			x, err := loadTensor(s.Path, t.Config.ImageSize, aug)
			if err != nil {
				return err
			}
			out, err := t.Model.Forward(x)
			if err != nil {
				return err
			}
			w := sampleWeight(weights, s.Label)
			loss, dLogits := crossEntropy(out.Logits, s.Label, w/weightSum)

			grads := make(classifier.Gradients)
			if _, err := t.Model.Backward(out.Trace, dLogits, stop, grads); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			lossSum += w * loss
			return mergeGradients(total, grads)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	return lossSum / weightSum, total, nil
}

// validate returns the loss and accuracy on ds without augmentation.
func (t *Trainer) validate(ctx context.Context, ds *Dataset, weights []float64) (loss, acc float64, err error) {
	var (
		mu        sync.Mutex
		lossSum   float64
		weightSum float64
		correct   int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.Config.Workers)
	for _, s := range ds.Samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			x, err := loadTensor(s.Path, t.Config.ImageSize, nil)
			if err != nil {
				return err
			}
			logits, err := t.Model.Logits(x)
			if err != nil {
				return err
			}
			w := sampleWeight(weights, s.Label)
			l, _ := crossEntropy(logits, s.Label, 1)

			mu.Lock()
			defer mu.Unlock()
			lossSum += w * l
			weightSum += w
			if tensor.Argmax(logits) == s.Label {
				correct++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return lossSum / weightSum, float64(correct) / float64(ds.Len()), nil
}

func (t *Trainer) save() error {
	if err := t.Model.SaveWeights(t.Config.WeightsPath); err != nil {
		return err
	}
	if err := classifier.SaveClassNames(t.Config.ClassNamesPath, t.Data.ClassNames); err != nil {
		return err
	}
	getLogger().Info("checkpoint saved",
		logger.String("weights", t.Config.WeightsPath),
		logger.String("class_names", t.Config.ClassNamesPath))
	return nil
}

func sampleWeight(weights []float64, label int) float64 {
	if weights == nil {
		return 1
	}
	return weights[label]
}

func mergeGradients(dst, src classifier.Gradients) error {
	for name, g := range src {
		if cur, ok := dst[name]; ok {
			if err := tensor.AddInPlace(cur, g); err != nil {
				return err
			}
			continue
		}
		dst[name] = g
	}
	return nil
}

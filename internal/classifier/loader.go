package classifier

import (
	"sync"
	"sync/atomic"

	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// LoaderConfig tells a Loader where the model lives.
type LoaderConfig struct {
	WeightsPath    string
	ClassNamesPath string
	Fallback       []string
	ImageSize      int
	Version        string
	Seed           uint64
}

// LoaderConfigFromSettings maps the model section of the settings onto a LoaderConfig.
// The untrained head is seeded from the training seed so runs without weights repeat.
func LoaderConfigFromSettings(s *conf.Settings) LoaderConfig {
	return LoaderConfig{
		WeightsPath:    s.Model.Path,
		ClassNamesPath: s.ClassNamesPath(),
		Fallback:       s.Model.Classes,
		ImageSize:      s.Model.ImageSize,
		Version:        s.Model.Version,
		Seed:           s.Train.Seed,
	}
}

// Loader is the process-wide cached classifier. Get initialises it lazily once;
// Reload rebuilds it from disk and swaps it atomically. There is no eviction.
type Loader struct {
	cfg     LoaderConfig
	mu      sync.Mutex
	current atomic.Pointer[Classifier]
}

// NewLoader returns a Loader that builds nothing until first use.
func NewLoader(cfg LoaderConfig) *Loader {
	return &Loader{cfg: cfg}
}

// Get returns the cached classifier, building it on first call. A failed build is not
// cached, so the next call retries.
func (l *Loader) Get() (*Classifier, error) {
	if c := l.current.Load(); c != nil {
		return c, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c := l.current.Load(); c != nil {
		return c, nil
	}
	c, err := Build(l.cfg)
	if err != nil {
		return nil, err
	}
	l.current.Store(c)
	return c, nil
}

// Reload rebuilds the classifier and replaces the cached one. On failure the previous
// classifier stays in place.
func (l *Loader) Reload() (*Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := Build(l.cfg)
	if err != nil {
		return nil, err
	}
	l.current.Store(c)
	logger.Global().Module("classifier").Info("model reloaded",
		logger.String("path", l.cfg.WeightsPath),
		logger.Bool("weights_found", c.WeightsFound))
	return c, nil
}

// Set installs an already built classifier, mainly for tests and the train command.
func (l *Loader) Set(c *Classifier) {
	l.current.Store(c)
}

// Loaded reports whether a classifier is cached.
func (l *Loader) Loaded() bool {
	return l.current.Load() != nil
}

// Build loads class names, builds the network with a matching head and loads its weights.
func Build(cfg LoaderConfig) (*Classifier, error) {
	names, err := LoadClassNames(cfg.ClassNamesPath, cfg.Fallback)
	if err != nil {
		return nil, err
	}
	m, err := ResNet18(len(names), cfg.Seed)
	if err != nil {
		return nil, err
	}
	found, err := m.LoadWeights(cfg.WeightsPath, LoadOptions{})
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(m, names, cfg.ImageSize, cfg.Version)
	if err != nil {
		return nil, err
	}
	c.WeightsFound = found
	return c, nil
}

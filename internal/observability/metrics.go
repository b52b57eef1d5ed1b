package observability

import (
	"fmt"
	stdlog "log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry   *prometheus.Registry
	Datastore  *metrics.DatastoreMetrics
	Classifier *metrics.ClassifierMetrics
	HTTP       *metrics.HTTPMetrics
	Training   *metrics.TrainingMetrics
}

// NewMetrics creates a new instance of Metrics on its own registry, together with the
// Go runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Datastore metrics: %w", err)
	}

	classifierMetrics, err := metrics.NewClassifierMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Classifier metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	trainingMetrics, err := metrics.NewTrainingMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create Training metrics: %w", err)
	}

	log.Debug("metrics registry initialised")

	return &Metrics{
		registry:   registry,
		Datastore:  datastoreMetrics,
		Classifier: classifierMetrics,
		HTTP:       httpMetrics,
		Training:   trainingMetrics,
	}, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      stdlog.New(logWriter{}, "metrics handler: ", 0),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// logWriter adapts promhttp's error log to the structured logger.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Warn("metrics handler error", logger.String("message", string(p)))
	return len(p), nil
}

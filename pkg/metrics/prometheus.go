package metrics

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// dimensionLabels is the fixed label set attached to every exported series.
// It mirrors the dimensions the recorder stamps on each point.
var dimensionLabels = []string{"feature", "os", "instance", "region", "test_name"}

// prometheusSink exports metric points as Prometheus gauges so a local
// scrape endpoint can observe a run in progress.
type prometheusSink struct {
	log      logrus.FieldLogger
	registry *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec
}

// Ensure interface compliance.
var _ Sink = (*prometheusSink)(nil)

// NewPrometheusSink creates a Prometheus sink registered against the given
// registry.
func NewPrometheusSink(log logrus.FieldLogger, registry *prometheus.Registry) Sink {
	return &prometheusSink{
		log:      log.WithField("component", "prometheus-sink"),
		registry: registry,
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

// Publish records each point on a gauge vector keyed by the metric name.
func (s *prometheusSink) Publish(_ context.Context, namespace string, points []Point) error {
	for _, p := range points {
		gauge, err := s.gaugeFor(namespace, p.Name)
		if err != nil {
			return err
		}

		gauge.With(labelsFor(p.Dimensions)).Set(p.Value)
	}

	return nil
}

// gaugeFor returns the gauge vector for a metric name, registering it on
// first use.
func (s *prometheusSink) gaugeFor(namespace, name string) (*prometheus.GaugeVec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gauge, ok := s.gauges[name]; ok {
		return gauge, nil
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: sanitizeName(namespace),
		Name:      sanitizeName(name),
	}, dimensionLabels)

	if err := s.registry.Register(gauge); err != nil {
		return nil, err
	}

	s.gauges[name] = gauge

	return gauge, nil
}

// labelsFor converts dimensions to Prometheus labels. Missing dimensions
// are exported as empty strings to keep the label set fixed.
func labelsFor(dims []Dimension) prometheus.Labels {
	labels := make(prometheus.Labels, len(dimensionLabels))
	for _, name := range dimensionLabels {
		labels[name] = ""
	}

	for _, d := range dims {
		if _, ok := labels[d.Name]; ok {
			labels[d.Name] = d.Value
		}
	}

	return labels
}

// sanitizeName rewrites a metric or namespace name into the character set
// Prometheus accepts.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

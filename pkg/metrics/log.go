package metrics

import (
	"context"

	"github.com/sirupsen/logrus"
)

// logSink writes metric points to the log. Used when no remote backend is
// configured, typically for local runs.
type logSink struct {
	log logrus.FieldLogger
}

// Ensure interface compliance.
var _ Sink = (*logSink)(nil)

// NewLogSink creates a sink that only logs points.
func NewLogSink(log logrus.FieldLogger) Sink {
	return &logSink{log: log.WithField("component", "log-sink")}
}

// Publish logs each point at debug level.
func (s *logSink) Publish(_ context.Context, namespace string, points []Point) error {
	for _, p := range points {
		fields := logrus.Fields{
			"namespace": namespace,
			"metric":    p.Name,
			"value":     p.Value,
			"unit":      p.Unit,
		}

		for _, d := range p.Dimensions {
			fields["dim_"+d.Name] = d.Value
		}

		s.log.WithFields(fields).Debug("Metric point")
	}

	return nil
}

package metrics

import "context"

// Standard units for metric points.
const (
	UnitNone         = "None"
	UnitMicroseconds = "Microseconds"
)

// Dimension is a named tag attached to a metric point for later filtering
// and aggregation.
type Dimension struct {
	Name  string
	Value string
}

// Point is a single metric data point. Points are produced, never mutated,
// and handed to a Sink for transmission.
type Point struct {
	Name       string
	Value      float64
	Unit       string
	Dimensions []Dimension
}

// Sink publishes a batch of metric points under a product namespace.
type Sink interface {
	// Publish sends all points as a single logical batch. Implementations
	// may split the batch to satisfy backend limits.
	Publish(ctx context.Context, namespace string, points []Point) error
}

// multiSink fans a batch out to several sinks. The first error is returned
// after all sinks have been attempted.
type multiSink struct {
	sinks []Sink
}

// NewMultiSink returns a Sink that publishes to all given sinks.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

// Publish sends the batch to every sink.
func (m *multiSink) Publish(ctx context.Context, namespace string, points []Point) error {
	var firstErr error

	for _, s := range m.sinks {
		if err := s.Publish(ctx, namespace, points); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

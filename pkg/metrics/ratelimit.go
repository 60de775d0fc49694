package metrics

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimitedSink wraps a Sink with a publish rate limit so many concurrent
// workers cannot overwhelm the backend.
type rateLimitedSink struct {
	next    Sink
	limiter *rate.Limiter
}

// Ensure interface compliance.
var _ Sink = (*rateLimitedSink)(nil)

// NewRateLimitedSink wraps next so that at most publishesPerSecond Publish
// calls go through per second. A non-positive rate returns next unchanged.
func NewRateLimitedSink(next Sink, publishesPerSecond float64) Sink {
	if publishesPerSecond <= 0 {
		return next
	}

	burst := int(publishesPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &rateLimitedSink{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(publishesPerSecond), burst),
	}
}

// Publish waits for limiter clearance, then delegates.
func (s *rateLimitedSink) Publish(ctx context.Context, namespace string, points []Point) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	return s.next.Publish(ctx, namespace, points)
}

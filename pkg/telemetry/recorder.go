package telemetry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clusterops/telemetoor/pkg/metrics"
)

// Recorder observes the three phases of a test case's execution. The host
// engine invokes the four hooks in order; the middle two mark both the end
// of one phase and the start of the next. The recorder is a passive
// observer: it tolerates skipped phases and no failure inside it may
// affect the outcome of the test run.
type Recorder interface {
	BeforeSetup(ctx context.Context, tc *TestContext)
	AfterSetup(ctx context.Context, tc *TestContext, status Status)
	AfterCall(ctx context.Context, tc *TestContext, status Status)
	AfterTeardown(ctx context.Context, tc *TestContext, status Status)
}

// MetadataStore publishes accumulated metadata records to an external
// store.
type MetadataStore interface {
	PublishMetadata(ctx context.Context, records []*TestMetadata) error
}

// Config for the recorder.
type Config struct {
	// Namespace is the product namespace all metrics are published under.
	Namespace string

	// Build provenance stamped on every metadata record.
	BuildNumber  int
	ClientCommit string
	ConfigCommit string
	AgentCommit  string
}

// NewRecorder creates a recorder publishing to the given sink and store.
// Either may be nil, in which case the corresponding publication is
// skipped.
func NewRecorder(
	log logrus.FieldLogger,
	cfg *Config,
	sink metrics.Sink,
	store MetadataStore,
) Recorder {
	return &recorder{
		log:   log.WithField("component", "recorder"),
		cfg:   cfg,
		sink:  sink,
		store: store,
		now:   time.Now,
	}
}

type recorder struct {
	log   logrus.FieldLogger
	cfg   *Config
	sink  metrics.Sink
	store MetadataStore
	now   func() time.Time
}

// Ensure interface compliance.
var _ Recorder = (*recorder)(nil)

// BeforeSetup stamps the setup start time.
func (r *recorder) BeforeSetup(_ context.Context, tc *TestContext) {
	defer r.recoverHook(tc, PhaseSetup)

	r.log.WithField("test", tc.TestName).Info("Starting setup")
	tc.markStart(PhaseSetup, r.now())
}

// AfterSetup stamps the setup end and call start times, creates the
// metadata record and publishes the setup snapshot.
func (r *recorder) AfterSetup(ctx context.Context, tc *TestContext, status Status) {
	defer r.recoverHook(tc, PhaseSetup)

	end := r.now()
	tc.markEnd(PhaseSetup, end)
	tc.markStart(PhaseCall, end)

	tc.metadata = &TestMetadata{
		TestName:         tc.TestName,
		Feature:          tc.Feature,
		Region:           tc.Region,
		OS:               tc.OS,
		InstanceType:     tc.InstanceType,
		BuildNumber:      r.cfg.BuildNumber,
		ClientCommit:     r.cfg.ClientCommit,
		ConfigCommit:     r.cfg.ConfigCommit,
		AgentCommit:      r.cfg.AgentCommit,
		ClusterStackName: tc.ClusterStackName,
		LogGroupName:     tc.LogGroupName,
		Setup:            r.phaseRecord(tc, PhaseSetup, status),
	}

	r.publishPhase(ctx, tc, PhaseSetup, status)
}

// AfterCall stamps the call end and teardown start times, attaches the call
// record, overwrites the now-known cluster identity and publishes the
// updated snapshot.
func (r *recorder) AfterCall(ctx context.Context, tc *TestContext, status Status) {
	defer r.recoverHook(tc, PhaseCall)

	end := r.now()
	tc.markEnd(PhaseCall, end)
	tc.markStart(PhaseTeardown, end)

	md := r.ensureMetadata(tc, PhaseCall)
	md.Call = r.phaseRecord(tc, PhaseCall, status)
	md.ClusterStackName = tc.ClusterStackName
	md.LogGroupName = tc.LogGroupName

	r.publishPhase(ctx, tc, PhaseCall, status)
}

// AfterTeardown stamps the teardown end time, attaches the teardown record
// and publishes the final snapshot, including the whole-case total_time
// metric.
func (r *recorder) AfterTeardown(ctx context.Context, tc *TestContext, status Status) {
	defer r.recoverHook(tc, PhaseTeardown)

	tc.markEnd(PhaseTeardown, r.now())

	md := r.ensureMetadata(tc, PhaseTeardown)
	md.Teardown = r.phaseRecord(tc, PhaseTeardown, status)

	r.publishPhase(ctx, tc, PhaseTeardown, status)
}

// recoverHook keeps a recorder failure from escaping into the test run.
// Observability is strictly lower priority than the test itself.
func (r *recorder) recoverHook(tc *TestContext, phase Phase) {
	if rec := recover(); rec != nil {
		r.log.WithFields(logrus.Fields{
			"test":  tc.TestName,
			"phase": phase,
			"panic": rec,
		}).Error("Recorder hook panicked")
	}
}

// phaseRecord builds the immutable record for a completed phase.
func (r *recorder) phaseRecord(tc *TestContext, phase Phase, status Status) *PhaseRecord {
	start, end, _ := tc.PhaseWindow(phase)

	return &PhaseRecord{
		Phase:     phase,
		Status:    status,
		StartTime: start,
		EndTime:   end,
	}
}

// ensureMetadata returns the accumulated record, synthesizing a minimal one
// when setup never completed. Publication degrades to partial reporting
// rather than aborting.
func (r *recorder) ensureMetadata(tc *TestContext, phase Phase) *TestMetadata {
	if tc.metadata != nil {
		return tc.metadata
	}

	r.log.WithFields(logrus.Fields{
		"test":  tc.TestName,
		"phase": phase,
	}).Warn("Metadata record missing, synthesizing minimal record")

	tc.metadata = &TestMetadata{
		TestName:         tc.TestName,
		Feature:          tc.Feature,
		Region:           tc.Region,
		OS:               tc.OS,
		InstanceType:     tc.InstanceType,
		BuildNumber:      r.cfg.BuildNumber,
		ClientCommit:     r.cfg.ClientCommit,
		ConfigCommit:     r.cfg.ConfigCommit,
		AgentCommit:      r.cfg.AgentCommit,
		ClusterStackName: tc.ClusterStackName,
		LogGroupName:     tc.LogGroupName,
	}

	return tc.metadata
}

// publishPhase sends the phase metrics and the full current metadata
// record. Failures are logged and swallowed.
func (r *recorder) publishPhase(ctx context.Context, tc *TestContext, phase Phase, status Status) {
	if r.sink != nil {
		points := r.buildPhaseMetrics(tc, phase, status)
		if len(points) > 0 {
			if err := r.sink.Publish(ctx, r.cfg.Namespace, points); err != nil {
				r.log.WithFields(logrus.Fields{
					"test":  tc.TestName,
					"phase": phase,
				}).WithError(err).Warn("Failed to publish metrics")
			}
		}
	}

	if r.store != nil && tc.metadata != nil {
		if err := r.store.PublishMetadata(ctx, []*TestMetadata{tc.metadata}); err != nil {
			r.log.WithFields(logrus.Fields{
				"test":  tc.TestName,
				"phase": phase,
			}).WithError(err).Warn("Failed to publish metadata")
		}
	}
}

// buildPhaseMetrics translates one completed phase into metric points.
// Phases with an incomplete timing window contribute no time metric, and
// total_time is only emitted when both ends of the whole-case span exist.
func (r *recorder) buildPhaseMetrics(tc *TestContext, phase Phase, status Status) []metrics.Point {
	dims := []metrics.Dimension{
		{Name: "feature", Value: tc.Feature},
		{Name: "os", Value: tc.OS},
		{Name: "instance", Value: tc.InstanceType},
		{Name: "region", Value: tc.Region},
		{Name: "test_name", Value: tc.TestName},
	}

	result := 0.0
	if status == StatusPassed {
		result = 1.0
	}

	points := []metrics.Point{
		{
			Name:       string(phase) + "_result",
			Value:      result,
			Unit:       metrics.UnitNone,
			Dimensions: dims,
		},
	}

	if start, end, ok := tc.PhaseWindow(phase); ok {
		points = append(points, metrics.Point{
			Name:       string(phase) + "_time",
			Value:      float64(end.Sub(start).Microseconds()),
			Unit:       metrics.UnitMicroseconds,
			Dimensions: dims,
		})
	}

	if phase == PhaseTeardown {
		// A test whose setup never completed has no meaningful whole-case
		// span.
		setupStart, _, setupOK := tc.PhaseWindow(PhaseSetup)
		teardownEnd, endOK := tc.EndedAt(PhaseTeardown)

		if setupOK && endOK {
			points = append(points, metrics.Point{
				Name:       "total_time",
				Value:      float64(teardownEnd.Sub(setupStart).Microseconds()),
				Unit:       metrics.UnitMicroseconds,
				Dimensions: dims,
			})
		}
	}

	return points
}

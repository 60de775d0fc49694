package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterops/telemetoor/pkg/metrics"
	"github.com/clusterops/telemetoor/pkg/telemetry"
)

// captureSink records every published batch.
type captureSink struct {
	namespaces []string
	batches    [][]metrics.Point
	err        error
}

func (s *captureSink) Publish(_ context.Context, namespace string, points []metrics.Point) error {
	s.namespaces = append(s.namespaces, namespace)
	s.batches = append(s.batches, points)

	return s.err
}

// captureStore records every published metadata snapshot.
type captureStore struct {
	records []*telemetry.TestMetadata
	err     error
}

func (s *captureStore) PublishMetadata(_ context.Context, records []*telemetry.TestMetadata) error {
	s.records = append(s.records, records...)

	return s.err
}

func newTestRecorder(sink metrics.Sink, store telemetry.MetadataStore) telemetry.Recorder {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return telemetry.NewRecorder(log, &telemetry.Config{
		Namespace:    "Telemetoor/IntegrationTests",
		BuildNumber:  42,
		ClientCommit: "abc123",
		ConfigCommit: "def456",
		AgentCommit:  "789fed",
	}, sink, store)
}

func findPoint(points []metrics.Point, name string) (metrics.Point, bool) {
	for _, p := range points {
		if p.Name == name {
			return p, true
		}
	}

	return metrics.Point{}, false
}

func TestRecorder_FullLifecycle(t *testing.T) {
	sink := &captureSink{}
	store := &captureStore{}
	rec := newTestRecorder(sink, store)
	ctx := context.Background()

	tc := telemetry.NewTestContext("test_scaling", "scaling", "eu-west-1", "alinux2023", "c5.xlarge")

	rec.BeforeSetup(ctx, tc)
	rec.AfterSetup(ctx, tc, telemetry.StatusPassed)

	// The test body discovers cluster identity during the call phase.
	tc.SetClusterInfo("integ-stack-7", "/cluster/integ-stack-7")

	rec.AfterCall(ctx, tc, telemetry.StatusPassed)
	rec.AfterTeardown(ctx, tc, telemetry.StatusPassed)

	// One metric batch and one metadata snapshot per phase.
	require.Len(t, sink.batches, 3)
	require.Len(t, store.records, 3)

	for _, ns := range sink.namespaces {
		assert.Equal(t, "Telemetoor/IntegrationTests", ns)
	}

	// Each completed phase emits result and time.
	for i, phase := range []telemetry.Phase{
		telemetry.PhaseSetup, telemetry.PhaseCall, telemetry.PhaseTeardown,
	} {
		result, ok := findPoint(sink.batches[i], string(phase)+"_result")
		require.True(t, ok)
		assert.Equal(t, 1.0, result.Value)
		assert.Equal(t, metrics.UnitNone, result.Unit)

		elapsed, ok := findPoint(sink.batches[i], string(phase)+"_time")
		require.True(t, ok)
		assert.Equal(t, metrics.UnitMicroseconds, elapsed.Unit)

		start, end, windowOK := tc.PhaseWindow(phase)
		require.True(t, windowOK)
		assert.Equal(t, float64(end.Sub(start).Microseconds()), elapsed.Value)
	}

	// total_time equals the whole-case span exactly, in microseconds.
	total, ok := findPoint(sink.batches[2], "total_time")
	require.True(t, ok)

	setupStart, _, windowOK := tc.PhaseWindow(telemetry.PhaseSetup)
	require.True(t, windowOK)
	teardownEnd, endOK := tc.EndedAt(telemetry.PhaseTeardown)
	require.True(t, endOK)
	assert.Equal(t, float64(teardownEnd.Sub(setupStart).Microseconds()), total.Value)

	// Dimensions are stamped on every point, in order.
	wantDims := []metrics.Dimension{
		{Name: "feature", Value: "scaling"},
		{Name: "os", Value: "alinux2023"},
		{Name: "instance", Value: "c5.xlarge"},
		{Name: "region", Value: "eu-west-1"},
		{Name: "test_name", Value: "test_scaling"},
	}
	assert.Equal(t, wantDims, total.Dimensions)
}

func TestRecorder_MetadataAccumulatedInPlace(t *testing.T) {
	store := &captureStore{}
	rec := newTestRecorder(&captureSink{}, store)
	ctx := context.Background()

	tc := telemetry.NewTestContext("test_dcv", "dcv", "us-west-2", "ubuntu2204", "t3.large")

	rec.BeforeSetup(ctx, tc)
	rec.AfterSetup(ctx, tc, telemetry.StatusPassed)
	tc.SetClusterInfo("dcv-stack", "/cluster/dcv-stack")
	rec.AfterCall(ctx, tc, telemetry.StatusFailed)
	rec.AfterTeardown(ctx, tc, telemetry.StatusPassed)

	require.Len(t, store.records, 3)

	// The same logical record is mutated across phases, never recreated.
	assert.Same(t, store.records[0], store.records[1])
	assert.Same(t, store.records[1], store.records[2])

	md := store.records[2]

	// Identity and provenance are set once at setup and never change.
	assert.Equal(t, "test_dcv", md.TestName)
	assert.Equal(t, "dcv", md.Feature)
	assert.Equal(t, "us-west-2", md.Region)
	assert.Equal(t, "ubuntu2204", md.OS)
	assert.Equal(t, "t3.large", md.InstanceType)
	assert.Equal(t, 42, md.BuildNumber)
	assert.Equal(t, "abc123", md.ClientCommit)

	// Cluster identity discovered during call survives into teardown.
	assert.Equal(t, "dcv-stack", md.ClusterStackName)
	assert.Equal(t, "/cluster/dcv-stack", md.LogGroupName)

	require.NotNil(t, md.Setup)
	require.NotNil(t, md.Call)
	require.NotNil(t, md.Teardown)
	assert.Equal(t, telemetry.StatusPassed, md.Setup.Status)
	assert.Equal(t, telemetry.StatusFailed, md.Call.Status)
	assert.Equal(t, telemetry.StatusPassed, md.Teardown.Status)

	for _, record := range []*telemetry.PhaseRecord{md.Setup, md.Call, md.Teardown} {
		elapsed, ok := record.Elapsed()
		require.True(t, ok)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	}
}

func TestRecorder_FailedPhaseEmitsZeroResult(t *testing.T) {
	sink := &captureSink{}
	rec := newTestRecorder(sink, &captureStore{})
	ctx := context.Background()

	tc := telemetry.NewTestContext("test_slurm", "slurm", "eu-central-1", "rhel9", "c5n.18xlarge")

	rec.BeforeSetup(ctx, tc)
	rec.AfterSetup(ctx, tc, telemetry.StatusFailed)

	result, ok := findPoint(sink.batches[0], "setup_result")
	require.True(t, ok)
	assert.Equal(t, 0.0, result.Value)
}

func TestRecorder_SetupNeverCompleted(t *testing.T) {
	sink := &captureSink{}
	store := &captureStore{}
	rec := newTestRecorder(sink, store)
	ctx := context.Background()

	tc := telemetry.NewTestContext("test_efs", "efs", "us-gov-east-1", "alinux2", "m5.large")

	// Setup raised before completion: only the start stamp and the final
	// teardown hook ever happen.
	rec.BeforeSetup(ctx, tc)
	rec.AfterTeardown(ctx, tc, telemetry.StatusFailed)

	require.Len(t, sink.batches, 1)

	// teardown_result is still reported.
	result, ok := findPoint(sink.batches[0], "teardown_result")
	require.True(t, ok)
	assert.Equal(t, 0.0, result.Value)

	// No setup end time means no total_time and no teardown_time.
	_, ok = findPoint(sink.batches[0], "total_time")
	assert.False(t, ok)
	_, ok = findPoint(sink.batches[0], "teardown_time")
	assert.False(t, ok)

	// A minimal record is synthesized so metadata publication degrades
	// instead of aborting.
	require.Len(t, store.records, 1)
	assert.Equal(t, "test_efs", store.records[0].TestName)
	assert.Equal(t, telemetry.NoneSentinel, store.records[0].ClusterStackName)
	assert.Nil(t, store.records[0].Setup)
	require.NotNil(t, store.records[0].Teardown)
}

func TestRecorder_SinkAndStoreFailuresAreSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("throttled")}
	store := &captureStore{err: errors.New("table missing")}
	rec := newTestRecorder(sink, store)
	ctx := context.Background()

	tc := telemetry.NewTestContext("test_fsx", "fsx", "ap-northeast-1", "alinux2023", "c6i.large")

	assert.NotPanics(t, func() {
		rec.BeforeSetup(ctx, tc)
		rec.AfterSetup(ctx, tc, telemetry.StatusPassed)
		rec.AfterCall(ctx, tc, telemetry.StatusPassed)
		rec.AfterTeardown(ctx, tc, telemetry.StatusPassed)
	})

	// Publication kept being attempted despite failures.
	assert.Len(t, sink.batches, 3)
	assert.Len(t, store.records, 3)
}

func TestRecorder_NilSinkAndStore(t *testing.T) {
	rec := newTestRecorder(nil, nil)
	ctx := context.Background()

	tc := telemetry.NewTestContext("test_pcluster", "pcluster", "sa-east-1", "ubuntu2404", "t3.micro")

	assert.NotPanics(t, func() {
		rec.BeforeSetup(ctx, tc)
		rec.AfterSetup(ctx, tc, telemetry.StatusPassed)
		rec.AfterCall(ctx, tc, telemetry.StatusPassed)
		rec.AfterTeardown(ctx, tc, telemetry.StatusPassed)
	})
}

package metastore

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterops/telemetoor/pkg/config"
	"github.com/clusterops/telemetoor/pkg/telemetry"
)

func setupTestStore(t *testing.T) *gormStore {
	t.Helper()

	cfg := &config.MetadataConfig{
		Driver: "sqlite",
		Table:  "integration-tests-metadata",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s, ok := NewGormStore(log, cfg).(*gormStore)
	require.True(t, ok)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func sampleMetadata(testName string) *telemetry.TestMetadata {
	start := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

	return &telemetry.TestMetadata{
		TestName:         testName,
		Feature:          "scaling",
		Region:           "eu-west-1",
		OS:               "alinux2023",
		InstanceType:     "c5.xlarge",
		BuildNumber:      7,
		ClientCommit:     "abc123",
		ClusterStackName: telemetry.NoneSentinel,
		LogGroupName:     telemetry.NoneSentinel,
		Setup: &telemetry.PhaseRecord{
			Phase:     telemetry.PhaseSetup,
			Status:    telemetry.StatusPassed,
			StartTime: start,
			EndTime:   start.Add(90 * time.Second),
		},
	}
}

func TestGormStore_PublishAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.PublishMetadata(ctx, []*telemetry.TestMetadata{
		sampleMetadata("test_scaling_up"),
		sampleMetadata("test_scaling_down"),
	}))

	rows, err := s.ListByFeature(ctx, "scaling")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "passed", rows[0].SetupStatus)
	assert.Empty(t, rows[0].CallStatus)
	assert.Contains(t, rows[0].RecordJSON, "setup_metadata")

	rows, err = s.ListByFeature(ctx, "dcv")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGormStore_PublishIsOverwrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	md := sampleMetadata("test_scaling_up")
	require.NoError(t, s.PublishMetadata(ctx, []*telemetry.TestMetadata{md}))

	// Re-publishing after a later phase overwrites the same row.
	md.ClusterStackName = "integ-stack-9"
	md.Call = &telemetry.PhaseRecord{
		Phase:     telemetry.PhaseCall,
		Status:    telemetry.StatusFailed,
		StartTime: md.Setup.EndTime,
		EndTime:   md.Setup.EndTime.Add(5 * time.Minute),
	}
	require.NoError(t, s.PublishMetadata(ctx, []*telemetry.TestMetadata{md}))

	rows, err := s.ListByFeature(ctx, "scaling")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "integ-stack-9", rows[0].ClusterStackName)
	assert.Equal(t, "failed", rows[0].CallStatus)
}

func TestRecordKey(t *testing.T) {
	md := sampleMetadata("test_scaling_up")
	assert.Equal(t, "test_scaling_up#eu-west-1#alinux2023#c5.xlarge#7", RecordKey(md))

	// Same identity always yields the same key.
	assert.Equal(t, RecordKey(md), RecordKey(sampleMetadata("test_scaling_up")))
}

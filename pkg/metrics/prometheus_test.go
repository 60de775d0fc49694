package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrometheusSink(t *testing.T) (Sink, *prometheus.Registry) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	registry := prometheus.NewRegistry()

	return NewPrometheusSink(log, registry), registry
}

func TestPrometheusSinkExportsGauges(t *testing.T) {
	sink, registry := newTestPrometheusSink(t)

	dims := []Dimension{
		{Name: "feature", Value: "scaling"},
		{Name: "os", Value: "alinux2"},
		{Name: "instance", Value: "c5.xlarge"},
		{Name: "region", Value: "us-east-1"},
		{Name: "test_name", Value: "test_scaling"},
	}

	points := []Point{
		{Name: "setup_result", Value: 1, Unit: UnitNone, Dimensions: dims},
		{Name: "setup_time", Value: 123456, Unit: UnitMicroseconds, Dimensions: dims},
	}

	require.NoError(t, sink.Publish(context.Background(), "Telemetoor/IntegrationTests", points))

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 2)

	gauge := testutil.ToFloat64(
		sink.(*prometheusSink).gauges["setup_time"].With(labelsFor(dims)),
	)
	assert.Equal(t, float64(123456), gauge)
}

func TestPrometheusSinkOverwritesOnRepublish(t *testing.T) {
	sink, _ := newTestPrometheusSink(t)

	dims := []Dimension{{Name: "test_name", Value: "test_x"}}
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, "ns", []Point{{Name: "call_result", Value: 0, Dimensions: dims}}))
	require.NoError(t, sink.Publish(ctx, "ns", []Point{{Name: "call_result", Value: 1, Dimensions: dims}}))

	gauge := testutil.ToFloat64(
		sink.(*prometheusSink).gauges["call_result"].With(labelsFor(dims)),
	)
	assert.Equal(t, float64(1), gauge)
}

func TestLabelsForFillsMissingDimensions(t *testing.T) {
	labels := labelsFor([]Dimension{
		{Name: "region", Value: "eu-west-1"},
		{Name: "unknown", Value: "dropped"},
	})

	require.Len(t, labels, len(dimensionLabels))
	assert.Equal(t, "eu-west-1", labels["region"])
	assert.Equal(t, "", labels["feature"])
	assert.NotContains(t, labels, "unknown")
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"setup_time", "setup_time"},
		{"Telemetoor/IntegrationTests", "Telemetoor_IntegrationTests"},
		{"weird-name.v2", "weird_name_v2"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in))
	}
}

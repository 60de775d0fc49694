package region_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clusterops/telemetoor/pkg/region"
)

func TestReporting(t *testing.T) {
	tests := []struct {
		name   string
		region string
		want   string
	}{
		{
			name:   "commercial region",
			region: "eu-west-1",
			want:   "us-east-1",
		},
		{
			name:   "govcloud east maps to fixed govcloud reporting region",
			region: "us-gov-east-1",
			want:   "us-gov-west-1",
		},
		{
			name:   "govcloud west maps to itself",
			region: "us-gov-west-1",
			want:   "us-gov-west-1",
		},
		{
			name:   "china region",
			region: "cn-northwest-1",
			want:   "cn-north-1",
		},
		{
			name:   "unknown region falls back to default partition",
			region: "mars-central-7",
			want:   "us-east-1",
		},
		{
			name:   "empty region falls back to default partition",
			region: "",
			want:   "us-east-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, region.Reporting(tt.region))
		})
	}
}

func TestPartition(t *testing.T) {
	assert.Equal(t, "govcloud", region.Partition("us-gov-east-1"))
	assert.Equal(t, "china", region.Partition("cn-north-1"))
	assert.Equal(t, "commercial", region.Partition("ap-southeast-2"))
}

func TestReporting_Idempotent(t *testing.T) {
	// Resolution is a pure function: repeated calls with the same input
	// always return the same output.
	first := region.Reporting("us-gov-east-1")
	second := region.Reporting("us-gov-east-1")
	assert.Equal(t, first, second)
}

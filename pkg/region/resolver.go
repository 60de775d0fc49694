package region

import "strings"

const (
	// DefaultPartition is used when no prefix in PartitionMap matches.
	DefaultPartition = "commercial"

	// DefaultReportingRegion is used when a partition has no entry in
	// ReportingRegionMap.
	DefaultReportingRegion = "us-east-1"
)

// partitionEntry maps a region-name prefix to a partition.
type partitionEntry struct {
	Prefix    string
	Partition string
}

// partitionMap maps region prefixes to partitions. Entries are checked in
// order and the first prefix match wins.
var partitionMap = []partitionEntry{
	{Prefix: "cn-", Partition: "china"},
	{Prefix: "us-gov-", Partition: "govcloud"},
}

// reportingRegionMap maps a partition to the fixed region where telemetry
// for that partition is centralized.
var reportingRegionMap = map[string]string{
	"commercial": "us-east-1",
	"govcloud":   "us-gov-west-1",
	"china":      "cn-north-1",
}

// Partition returns the partition for the given region. Regions matching no
// known prefix fall into DefaultPartition.
func Partition(region string) string {
	for _, entry := range partitionMap {
		if strings.HasPrefix(region, entry.Prefix) {
			return entry.Partition
		}
	}

	return DefaultPartition
}

// Reporting returns the reporting region for the given region. Metrics and
// metadata always land in one of a small fixed set of reporting regions
// regardless of which operational region a test ran in.
func Reporting(region string) string {
	if reporting, ok := reportingRegionMap[Partition(region)]; ok {
		return reporting
	}

	return DefaultReportingRegion
}

package metastore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clusterops/telemetoor/pkg/config"
	"github.com/clusterops/telemetoor/pkg/telemetry"
)

// Store persists test metadata records. Publication is idempotent
// overwrite keyed on record identity, so re-publishing after each phase
// always leaves the latest snapshot in place.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	PublishMetadata(ctx context.Context, records []*telemetry.TestMetadata) error
}

// NewStore creates a metadata store for the configured driver. Driver
// "none" returns a nil store; callers skip metadata publication in that
// case.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.MetadataConfig,
	reportingRegion string,
) (Store, error) {
	switch cfg.Driver {
	case "none":
		return nil, nil
	case "dynamodb":
		return NewDynamoDBStore(log, cfg, reportingRegion), nil
	case "sqlite", "postgres":
		return NewGormStore(log, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported metadata driver: %s", cfg.Driver)
	}
}

// RecordKey builds the deterministic identity a record is stored under.
// Publishing the same test case again overwrites the previous snapshot.
func RecordKey(md *telemetry.TestMetadata) string {
	return fmt.Sprintf("%s#%s#%s#%s#%d",
		md.TestName, md.Region, md.OS, md.InstanceType, md.BuildNumber)
}

package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clusterops/telemetoor/pkg/config"
	"github.com/clusterops/telemetoor/pkg/telemetry"
)

// MetadataRow is one persisted metadata snapshot, keyed by the
// deterministic record identity.
type MetadataRow struct {
	ID        uint   `gorm:"primaryKey"`
	RecordKey string `gorm:"not null;uniqueIndex"`

	TestName     string `gorm:"index"`
	Feature      string `gorm:"index"`
	Region       string
	OS           string
	InstanceType string
	BuildNumber  int

	ClusterStackName string
	LogGroupName     string

	SetupStatus    string
	CallStatus     string
	TeardownStatus string

	// Full record serialized as JSON, including phase timings.
	RecordJSON string `gorm:"type:text"`

	PublishedAt time.Time
}

// TableName stores rows under the configured table identity.
func (MetadataRow) TableName() string {
	return "test_metadata"
}

// gormStore implements Store backed by sqlite or postgres.
type gormStore struct {
	log logrus.FieldLogger
	cfg *config.MetadataConfig
	db  *gorm.DB
	now func() time.Time
}

// Ensure interface compliance.
var _ Store = (*gormStore)(nil)

// NewGormStore creates a metadata store backed by the configured database
// driver.
func NewGormStore(log logrus.FieldLogger, cfg *config.MetadataConfig) Store {
	return &gormStore{
		log: log.WithField("component", "gorm-metastore"),
		cfg: cfg,
		now: time.Now,
	}
}

// Start opens the database connection and runs migrations.
func (s *gormStore) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening metadata database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(&MetadataRow{}); err != nil {
		return fmt.Errorf("running metadata migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Metadata database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *gormStore) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// PublishMetadata upserts each record keyed by its deterministic identity.
func (s *gormStore) PublishMetadata(
	ctx context.Context, records []*telemetry.TestMetadata,
) error {
	for _, md := range records {
		row, err := s.buildRow(md)
		if err != nil {
			return err
		}

		result := s.db.WithContext(ctx).
			Where("record_key = ?", row.RecordKey).
			Assign(row).
			FirstOrCreate(row)
		if result.Error != nil {
			return fmt.Errorf("upserting metadata record: %w", result.Error)
		}
	}

	return nil
}

// ListByFeature returns all snapshots for a feature, newest first.
func (s *gormStore) ListByFeature(ctx context.Context, feature string) ([]MetadataRow, error) {
	var rows []MetadataRow
	if err := s.db.WithContext(ctx).
		Where("feature = ?", feature).
		Order("published_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing metadata records: %w", err)
	}

	return rows, nil
}

// buildRow flattens a metadata record into a row.
func (s *gormStore) buildRow(md *telemetry.TestMetadata) (*MetadataRow, error) {
	recordJSON, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata record: %w", err)
	}

	row := &MetadataRow{
		RecordKey:        RecordKey(md),
		TestName:         md.TestName,
		Feature:          md.Feature,
		Region:           md.Region,
		OS:               md.OS,
		InstanceType:     md.InstanceType,
		BuildNumber:      md.BuildNumber,
		ClusterStackName: md.ClusterStackName,
		LogGroupName:     md.LogGroupName,
		RecordJSON:       string(recordJSON),
		PublishedAt:      s.now(),
	}

	if md.Setup != nil {
		row.SetupStatus = string(md.Setup.Status)
	}

	if md.Call != nil {
		row.CallStatus = string(md.Call.Status)
	}

	if md.Teardown != nil {
		row.TeardownStatus = string(md.Teardown.Status)
	}

	return row, nil
}

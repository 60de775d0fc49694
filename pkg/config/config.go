package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultNamespace is the metric namespace used when none is configured.
	DefaultNamespace = "Telemetoor/IntegrationTests"

	// DefaultMetadataTable is the metadata table used when none is configured.
	DefaultMetadataTable = "integration-tests-metadata"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultResultsDir is the default directory for run results.
	DefaultResultsDir = "./results"

	// DefaultWorkers is the default worker pool size.
	DefaultWorkers = 4

	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "TELEMETOOR"
)

// Config is the root configuration for telemetoor.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Metadata  MetadataConfig  `yaml:"metadata" mapstructure:"metadata"`
	Server    ServerConfig    `yaml:"server,omitempty" mapstructure:"server"`
	Upload    UploadConfig    `yaml:"upload,omitempty" mapstructure:"upload"`
	Runner    RunnerConfig    `yaml:"runner" mapstructure:"runner"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// TelemetryConfig contains the metric namespace and the build provenance
// stamped on every metadata record.
type TelemetryConfig struct {
	Namespace    string `yaml:"namespace" mapstructure:"namespace"`
	BuildNumber  int    `yaml:"build_number,omitempty" mapstructure:"build_number"`
	ClientCommit string `yaml:"client_commit,omitempty" mapstructure:"client_commit"`
	ConfigCommit string `yaml:"config_commit,omitempty" mapstructure:"config_commit"`
	AgentCommit  string `yaml:"agent_commit,omitempty" mapstructure:"agent_commit"`
}

// MetricsConfig contains metric sink settings.
type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch,omitempty" mapstructure:"cloudwatch"`
	Prometheus PrometheusConfig `yaml:"prometheus,omitempty" mapstructure:"prometheus"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// CloudWatchConfig contains CloudWatch sink settings. The publish region is
// always derived from the test region via the partition tables, not
// configured here.
type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
}

// PrometheusConfig enables the local Prometheus exposition endpoint.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// RateLimitConfig limits how many metric batches are published per second.
// Zero disables the limit.
type RateLimitConfig struct {
	PublishesPerSecond float64 `yaml:"publishes_per_second,omitempty" mapstructure:"publishes_per_second"`
}

// MetadataConfig contains metadata store settings.
type MetadataConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	Table    string               `yaml:"table,omitempty" mapstructure:"table"`
	DynamoDB DynamoDBConfig       `yaml:"dynamodb,omitempty" mapstructure:"dynamodb"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// DynamoDBConfig contains DynamoDB-specific settings.
type DynamoDBConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// ServerConfig contains settings for the local status HTTP server.
type ServerConfig struct {
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	Listen      string   `yaml:"listen,omitempty" mapstructure:"listen"`
	CORSOrigins []string `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
}

// UploadConfig contains result upload settings.
type UploadConfig struct {
	S3 S3UploadConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3UploadConfig contains S3 upload settings for shipping the results
// directory after a run.
type S3UploadConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Bucket          string `yaml:"bucket,omitempty" mapstructure:"bucket"`
	Prefix          string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style,omitempty" mapstructure:"force_path_style"`
	StorageClass    string `yaml:"storage_class,omitempty" mapstructure:"storage_class"`
	ACL             string `yaml:"acl,omitempty" mapstructure:"acl"`
}

// RunnerConfig contains test run engine settings.
type RunnerConfig struct {
	Workers      int              `yaml:"workers,omitempty" mapstructure:"workers"`
	ResultsDir   string           `yaml:"results_dir,omitempty" mapstructure:"results_dir"`
	ResultsOwner string           `yaml:"results_owner,omitempty" mapstructure:"results_owner"`
	Tests        []TestCaseConfig `yaml:"tests" mapstructure:"tests"`
}

// TestCaseConfig defines a single test case and its per-phase commands.
// Commands are run through the shell; setup and teardown may be empty.
type TestCaseConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	Feature      string `yaml:"feature,omitempty" mapstructure:"feature"`
	Region       string `yaml:"region" mapstructure:"region"`
	OS           string `yaml:"os" mapstructure:"os"`
	InstanceType string `yaml:"instance_type" mapstructure:"instance_type"`
	Setup        string `yaml:"setup,omitempty" mapstructure:"setup"`
	Call         string `yaml:"call,omitempty" mapstructure:"call"`
	Teardown     string `yaml:"teardown,omitempty" mapstructure:"teardown"`
}

// Load reads a configuration file and applies TELEMETOOR_* environment
// variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Telemetry.Namespace == "" {
		c.Telemetry.Namespace = DefaultNamespace
	}

	if c.Metadata.Driver == "" {
		c.Metadata.Driver = "none"
	}

	if c.Metadata.Table == "" {
		c.Metadata.Table = DefaultMetadataTable
	}

	if c.Runner.Workers <= 0 {
		c.Runner.Workers = DefaultWorkers
	}

	if c.Runner.ResultsDir == "" {
		c.Runner.ResultsDir = DefaultResultsDir
	}

	if c.Server.Enabled && c.Server.Listen == "" {
		c.Server.Listen = ":9190"
	}
}

// validDrivers is the set of supported metadata store drivers.
var validDrivers = map[string]struct{}{
	"none":     {},
	"dynamodb": {},
	"sqlite":   {},
	"postgres": {},
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, ok := validDrivers[c.Metadata.Driver]; !ok {
		return fmt.Errorf("unsupported metadata driver: %s", c.Metadata.Driver)
	}

	if c.Metadata.Driver == "sqlite" && c.Metadata.SQLite.Path == "" {
		return fmt.Errorf("metadata driver sqlite requires a path")
	}

	if c.Upload.S3.Enabled && c.Upload.S3.Bucket == "" {
		return fmt.Errorf("upload.s3.bucket is required when s3 upload is enabled")
	}

	if len(c.Runner.Tests) == 0 {
		return fmt.Errorf("at least one test case must be configured")
	}

	seenNames := make(map[string]struct{}, len(c.Runner.Tests))

	for i, test := range c.Runner.Tests {
		if test.Name == "" {
			return fmt.Errorf("test %d: name is required", i)
		}

		if _, exists := seenNames[test.Name]; exists {
			return fmt.Errorf("test %d: duplicate name %q", i, test.Name)
		}

		seenNames[test.Name] = struct{}{}

		if test.Region == "" {
			return fmt.Errorf("test %q: region is required", test.Name)
		}

		if test.Call == "" {
			return fmt.Errorf("test %q: call command is required", test.Name)
		}
	}

	if c.Runner.ResultsDir != "" {
		dir := filepath.Dir(c.Runner.ResultsDir)
		if dir != "." && dir != ".." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("results directory parent %q does not exist", dir)
			}
		}
	}

	return nil
}

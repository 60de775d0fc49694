package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

const minimalConfig = `
global:
  log_level: info
telemetry:
  namespace: Telemetoor/IntegrationTests
runner:
  tests:
    - name: test_scaling
      region: us-east-1
      os: alinux2
      instance_type: c5.xlarge
      call: ./run-test.sh scaling
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Global.LogLevel)
	assert.Equal(t, DefaultNamespace, cfg.Telemetry.Namespace)
	require.Len(t, cfg.Runner.Tests, 1)
	assert.Equal(t, "test_scaling", cfg.Runner.Tests[0].Name)
	assert.Equal(t, "us-east-1", cfg.Runner.Tests[0].Region)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
runner:
  tests:
    - name: test_x
      region: eu-west-1
      call: "true"
server:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, DefaultNamespace, cfg.Telemetry.Namespace)
	assert.Equal(t, DefaultMetadataTable, cfg.Metadata.Table)
	assert.Equal(t, "none", cfg.Metadata.Driver)
	assert.Equal(t, DefaultWorkers, cfg.Runner.Workers)
	assert.Equal(t, DefaultResultsDir, cfg.Runner.ResultsDir)
	assert.Equal(t, ":9190", cfg.Server.Listen)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	t.Setenv("TELEMETOOR_GLOBAL_LOG_LEVEL", "debug")
	t.Setenv("TELEMETOOR_TELEMETRY_NAMESPACE", "Custom/Namespace")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "Custom/Namespace", cfg.Telemetry.Namespace)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDumpRedactsCredentials(t *testing.T) {
	cfg := &Config{}
	cfg.Upload.S3.SecretAccessKey = "hunter2"
	cfg.Metadata.Postgres.Password = "hunter2"

	out, err := cfg.Dump()
	require.NoError(t, err)

	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "<redacted>")
}

func TestValidateErrors(t *testing.T) {
	base := func() *Config {
		return &Config{
			Metadata: MetadataConfig{Driver: "none"},
			Runner: RunnerConfig{
				Tests: []TestCaseConfig{
					{Name: "test_a", Region: "us-east-1", Call: "true"},
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(_ *Config) {},
			wantErr: "",
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Metadata.Driver = "cassandra"
			},
			wantErr: "unsupported metadata driver",
		},
		{
			name: "sqlite requires path",
			mutate: func(c *Config) {
				c.Metadata.Driver = "sqlite"
			},
			wantErr: "requires a path",
		},
		{
			name: "s3 upload requires bucket",
			mutate: func(c *Config) {
				c.Upload.S3.Enabled = true
			},
			wantErr: "upload.s3.bucket is required",
		},
		{
			name: "no tests",
			mutate: func(c *Config) {
				c.Runner.Tests = nil
			},
			wantErr: "at least one test case",
		},
		{
			name: "duplicate test name",
			mutate: func(c *Config) {
				c.Runner.Tests = append(c.Runner.Tests, c.Runner.Tests[0])
			},
			wantErr: "duplicate name",
		},
		{
			name: "missing region",
			mutate: func(c *Config) {
				c.Runner.Tests[0].Region = ""
			},
			wantErr: "region is required",
		},
		{
			name: "missing call",
			mutate: func(c *Config) {
				c.Runner.Tests[0].Call = ""
			},
			wantErr: "call command is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

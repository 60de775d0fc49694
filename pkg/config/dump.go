package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Dump renders the effective configuration as YAML with credentials
// redacted.
func (c *Config) Dump() (string, error) {
	out := *c

	redact := func(s *string) {
		if *s != "" {
			*s = "<redacted>"
		}
	}

	redact(&out.Metrics.CloudWatch.SecretAccessKey)
	redact(&out.Metadata.DynamoDB.SecretAccessKey)
	redact(&out.Metadata.Postgres.Password)
	redact(&out.Upload.S3.SecretAccessKey)

	data, err := yaml.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	return string(data), nil
}

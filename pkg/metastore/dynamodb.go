package metastore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/clusterops/telemetoor/pkg/config"
	"github.com/clusterops/telemetoor/pkg/telemetry"
)

// dynamoDBStore implements Store backed by a DynamoDB table in the
// reporting region.
type dynamoDBStore struct {
	log    logrus.FieldLogger
	cfg    *config.MetadataConfig
	client *dynamodb.Client
	table  string
	now    func() time.Time
}

// Ensure interface compliance.
var _ Store = (*dynamoDBStore)(nil)

// NewDynamoDBStore creates a DynamoDB metadata store for the given
// reporting region and the configured table.
func NewDynamoDBStore(
	log logrus.FieldLogger,
	cfg *config.MetadataConfig,
	reportingRegion string,
) Store {
	opts := []func(*dynamodb.Options){
		func(o *dynamodb.Options) {
			o.Region = reportingRegion

			if cfg.DynamoDB.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoDB.EndpointURL)
			}

			if cfg.DynamoDB.AccessKeyID != "" && cfg.DynamoDB.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.DynamoDB.AccessKeyID, cfg.DynamoDB.SecretAccessKey, "",
				)
			}
		},
	}

	client := dynamodb.New(dynamodb.Options{}, opts...)

	return &dynamoDBStore{
		log: log.WithFields(logrus.Fields{
			"component": "dynamodb-metastore",
			"table":     cfg.Table,
			"region":    reportingRegion,
		}),
		cfg:    cfg,
		client: client,
		table:  cfg.Table,
		now:    time.Now,
	}
}

// Start is a no-op; the client is constructed up-front.
func (s *dynamoDBStore) Start(_ context.Context) error {
	return nil
}

// Stop is a no-op.
func (s *dynamoDBStore) Stop() error {
	return nil
}

// PublishMetadata writes each record as a full-item overwrite keyed on the
// deterministic record identity.
func (s *dynamoDBStore) PublishMetadata(
	ctx context.Context, records []*telemetry.TestMetadata,
) error {
	for _, md := range records {
		item, err := attributevalue.MarshalMap(md)
		if err != nil {
			return fmt.Errorf("marshaling metadata record: %w", err)
		}

		item["id"] = &ddbtypes.AttributeValueMemberS{Value: RecordKey(md)}
		item["published_at"] = &ddbtypes.AttributeValueMemberS{
			Value: s.now().UTC().Format(time.RFC3339Nano),
		}

		if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      item,
		}); err != nil {
			return fmt.Errorf("putting metadata record: %w", err)
		}

		s.log.WithField("test", md.TestName).Debug("Metadata record published")
	}

	return nil
}

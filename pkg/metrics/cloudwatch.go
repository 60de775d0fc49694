package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"

	"github.com/clusterops/telemetoor/pkg/config"
)

// maxDatumsPerCall is the maximum number of metric data points sent in a
// single PutMetricData call.
const maxDatumsPerCall = 20

// cloudWatchSink implements Sink backed by CloudWatch.
type cloudWatchSink struct {
	log    logrus.FieldLogger
	cfg    *config.CloudWatchConfig
	client *cloudwatch.Client
	now    func() time.Time
}

// Ensure interface compliance.
var _ Sink = (*cloudWatchSink)(nil)

// NewCloudWatchSink creates a CloudWatch metric sink for the given reporting
// region.
func NewCloudWatchSink(
	log logrus.FieldLogger,
	cfg *config.CloudWatchConfig,
	reportingRegion string,
) Sink {
	opts := []func(*cloudwatch.Options){
		func(o *cloudwatch.Options) {
			o.Region = reportingRegion

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	client := cloudwatch.New(cloudwatch.Options{}, opts...)

	return &cloudWatchSink{
		log:    log.WithField("component", "cloudwatch-sink"),
		cfg:    cfg,
		client: client,
		now:    time.Now,
	}
}

// Publish sends the points to CloudWatch, splitting the batch to honor the
// per-call datum limit.
func (s *cloudWatchSink) Publish(ctx context.Context, namespace string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	timestamp := s.now().UTC()

	for _, batch := range chunkPoints(points, maxDatumsPerCall) {
		data := make([]cwtypes.MetricDatum, 0, len(batch))

		for _, p := range batch {
			dims := make([]cwtypes.Dimension, 0, len(p.Dimensions))
			for _, d := range p.Dimensions {
				dims = append(dims, cwtypes.Dimension{
					Name:  aws.String(d.Name),
					Value: aws.String(d.Value),
				})
			}

			data = append(data, cwtypes.MetricDatum{
				MetricName: aws.String(p.Name),
				Value:      aws.Float64(p.Value),
				Unit:       cwtypes.StandardUnit(p.Unit),
				Timestamp:  aws.Time(timestamp),
				Dimensions: dims,
			})
		}

		if _, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(namespace),
			MetricData: data,
		}); err != nil {
			return fmt.Errorf("putting metric data: %w", err)
		}

		s.log.WithFields(logrus.Fields{
			"namespace": namespace,
			"datums":    len(batch),
		}).Debug("Published metric batch")
	}

	return nil
}

// chunkPoints splits points into slices of at most size entries.
func chunkPoints(points []Point, size int) [][]Point {
	if size <= 0 {
		return [][]Point{points}
	}

	chunks := make([][]Point, 0, (len(points)+size-1)/size)

	for start := 0; start < len(points); start += size {
		end := start + size
		if end > len(points) {
			end = len(points)
		}

		chunks = append(chunks, points[start:end])
	}

	return chunks
}

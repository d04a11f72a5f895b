// Package metrics emits service telemetry to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cashier/internal/types"
)

// putTimeout bounds a single PutMetricData call. Metrics never hold a
// request open past it.
const putTimeout = 2 * time.Second

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Recorder is the full set of metrics the service emits.
type Recorder interface {
	RecordVerification(ctx context.Context, accepted bool)
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
	RecordWebhookProcessed(ctx context.Context, eventType string, status types.WebhookEventStatus)
}

var (
	_ Recorder = (*CloudWatchRecorder)(nil)
	_ Recorder = NoopRecorder{}
)

// CloudWatchRecorder publishes each observation with PutMetricData.
// Failures are logged and dropped.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRecorder creates a recorder. An empty namespace falls back to
// types.MetricNamespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordVerification counts webhook signature checks by Result.
func (r *CloudWatchRecorder) RecordVerification(ctx context.Context, accepted bool) {
	result := types.ResultRejected
	if accepted {
		result = types.ResultAccepted
	}
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricWebhookVerification),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims(types.DimResult, result),
	})
}

// RecordRequest emits request count and latency for an endpoint.
func (r *CloudWatchRecorder) RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration) {
	d := dims(types.DimEndpoint, endpoint, types.DimMethod, method, types.DimStatus, status)
	r.put(ctx,
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequestCount),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: d,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: dims(types.DimEndpoint, endpoint, types.DimMethod, method),
		},
	)
}

// RecordWebhookProcessed counts ledger outcomes by event type.
func (r *CloudWatchRecorder) RecordWebhookProcessed(ctx context.Context, eventType string, status types.WebhookEventStatus) {
	r.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(types.MetricWebhookProcessed),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims(types.DimEventType, eventType, types.DimResult, string(status)),
	})
}

func (r *CloudWatchRecorder) put(ctx context.Context, data ...cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), putTimeout)
	defer cancel()

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to put metric data",
			"error", err.Error(),
			"metric", aws.ToString(data[0].MetricName),
			"count", len(data),
		)
	}
}

// dims builds dimensions from name/value pairs.
func dims(kv ...string) []cwtypes.Dimension {
	out := make([]cwtypes.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, cwtypes.Dimension{Name: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return out
}

// NoopRecorder discards every observation. It is used when metrics are disabled.
type NoopRecorder struct{}

func (NoopRecorder) RecordVerification(context.Context, bool) {}

func (NoopRecorder) RecordRequest(context.Context, string, string, string, time.Duration) {}

func (NoopRecorder) RecordWebhookProcessed(context.Context, string, types.WebhookEventStatus) {}

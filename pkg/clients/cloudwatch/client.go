package cloudwatch

import (
	"context"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

const (
	ListMetricsCall         = "ListMetrics"
	ListMetricStreamsCall   = "ListMetricStreams"
	GetMetricDataCall       = "GetMetricData"
	GetMetricStatisticsCall = "GetMetricStatistics"
)

type Client interface {
	// ListMetrics returns a single page of the metrics matching params. Pass a nil
	// nextToken for the first page and the NextToken of the previous page for the
	// following ones.
	ListMetrics(ctx context.Context, params *model.ListMetricsParams, nextToken *string) (*model.MetricsPage, error)

	// ListMetricStreams returns every metric stream in the region.
	// Results pagination is handled automatically.
	ListMetricStreams(ctx context.Context) ([]*model.MetricStream, error)

	// GetMetricStatistics returns the datapoints of the GetMetricStatistics
	// CloudWatch API, sorted by timestamp.
	GetMetricStatistics(ctx context.Context, query *model.StatisticsQuery) ([]*model.Datapoint, error)

	// GetMetricData returns one result per query id of the GetMetricData CloudWatch API.
	// Results pagination is handled automatically.
	GetMetricData(ctx context.Context, request *model.MetricDataRequest) ([]model.MetricDataResult, error)
}

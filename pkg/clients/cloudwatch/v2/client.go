package v2

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"

	cloudwatch_client "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/promutil"
)

// CloudWatchAPI is the subset of *cloudwatch.Client used by this package.
type CloudWatchAPI interface {
	ListMetrics(ctx context.Context, params *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
	ListMetricStreams(ctx context.Context, params *cloudwatch.ListMetricStreamsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricStreamsOutput, error)
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
	GetMetricData(ctx context.Context, params *cloudwatch.GetMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

type client struct {
	logger        logging.Logger
	cloudwatchAPI CloudWatchAPI
}

func NewClient(logger logging.Logger, cloudwatchAPI CloudWatchAPI) cloudwatch_client.Client {
	return &client{
		logger:        logger,
		cloudwatchAPI: cloudwatchAPI,
	}
}

func (c client) ListMetrics(ctx context.Context, params *model.ListMetricsParams, nextToken *string) (*model.MetricsPage, error) {
	filter := createListMetricsInput(params, nextToken)

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("ListMetrics", "input", filter)
	}

	promutil.CloudwatchAPICounter.WithLabelValues(cloudwatch_client.ListMetricsCall).Inc()
	page, err := c.cloudwatchAPI.ListMetrics(ctx, filter)
	if err != nil {
		c.logError(err, cloudwatch_client.ListMetricsCall)
		return nil, err
	}

	metricsPage := &model.MetricsPage{
		Metrics:   toModelMetrics(page.Metrics),
		NextToken: page.NextToken,
	}
	if c.logger.IsDebugEnabled() {
		c.logger.Debug("ListMetrics", "output", metricsPage.Metrics, "next_token", aws.ToString(page.NextToken))
	}

	return metricsPage, nil
}

func toModelMetrics(cloudwatchMetrics []types.Metric) []*model.Metric {
	modelMetrics := make([]*model.Metric, 0, len(cloudwatchMetrics))
	for _, cloudwatchMetric := range cloudwatchMetrics {
		modelMetrics = append(modelMetrics, &model.Metric{
			MetricName: aws.ToString(cloudwatchMetric.MetricName),
			Namespace:  aws.ToString(cloudwatchMetric.Namespace),
			Dimensions: toModelDimensions(cloudwatchMetric.Dimensions),
		})
	}
	return modelMetrics
}

func toModelDimensions(dimensions []types.Dimension) []model.Dimension {
	modelDimensions := make([]model.Dimension, 0, len(dimensions))
	for _, dimension := range dimensions {
		modelDimensions = append(modelDimensions, model.Dimension{
			Name:  aws.ToString(dimension.Name),
			Value: aws.ToString(dimension.Value),
		})
	}
	return modelDimensions
}

func (c client) ListMetricStreams(ctx context.Context) ([]*model.MetricStream, error) {
	var streams []*model.MetricStream

	paginator := cloudwatch.NewListMetricStreamsPaginator(c.cloudwatchAPI, &cloudwatch.ListMetricStreamsInput{}, func(options *cloudwatch.ListMetricStreamsPaginatorOptions) {
		options.StopOnDuplicateToken = true
	})
	for paginator.HasMorePages() {
		promutil.CloudwatchAPICounter.WithLabelValues(cloudwatch_client.ListMetricStreamsCall).Inc()
		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.logError(err, cloudwatch_client.ListMetricStreamsCall)
			return nil, err
		}
		streams = append(streams, toModelMetricStreams(page.Entries)...)
	}

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("ListMetricStreams", "output", streams)
	}

	return streams, nil
}

func toModelMetricStreams(entries []types.MetricStreamEntry) []*model.MetricStream {
	streams := make([]*model.MetricStream, 0, len(entries))
	for _, entry := range entries {
		streams = append(streams, &model.MetricStream{
			Name:           aws.ToString(entry.Name),
			Arn:            aws.ToString(entry.Arn),
			State:          aws.ToString(entry.State),
			OutputFormat:   string(entry.OutputFormat),
			FirehoseArn:    aws.ToString(entry.FirehoseArn),
			CreationDate:   entry.CreationDate,
			LastUpdateDate: entry.LastUpdateDate,
		})
	}
	return streams
}

func (c client) GetMetricStatistics(ctx context.Context, query *model.StatisticsQuery) ([]*model.Datapoint, error) {
	filter := createGetMetricStatisticsInput(c.logger, query)
	if c.logger.IsDebugEnabled() {
		c.logger.Debug("GetMetricStatistics", "input", filter)
	}

	promutil.CloudwatchAPICounter.WithLabelValues(cloudwatch_client.GetMetricStatisticsCall).Inc()
	resp, err := c.cloudwatchAPI.GetMetricStatistics(ctx, filter)
	if err != nil {
		c.logError(err, cloudwatch_client.GetMetricStatisticsCall)
		return nil, err
	}

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("GetMetricStatistics", "output", resp)
	}

	datapoints := toModelDatapoints(resp.Datapoints)
	cloudwatch_client.SortDatapoints(datapoints)
	return datapoints, nil
}

func toModelDatapoints(cwDatapoints []types.Datapoint) []*model.Datapoint {
	modelDataPoints := make([]*model.Datapoint, 0, len(cwDatapoints))

	for _, cwDatapoint := range cwDatapoints {
		var extendedStats map[string]*float64
		if len(cwDatapoint.ExtendedStatistics) > 0 {
			extendedStats = make(map[string]*float64, len(cwDatapoint.ExtendedStatistics))
			for name, value := range cwDatapoint.ExtendedStatistics {
				extendedStats[name] = aws.Float64(value)
			}
		}
		modelDataPoints = append(modelDataPoints, &model.Datapoint{
			Average:            cwDatapoint.Average,
			ExtendedStatistics: extendedStats,
			Maximum:            cwDatapoint.Maximum,
			Minimum:            cwDatapoint.Minimum,
			SampleCount:        cwDatapoint.SampleCount,
			Sum:                cwDatapoint.Sum,
			Timestamp:          cwDatapoint.Timestamp,
			Unit:               string(cwDatapoint.Unit),
		})
	}
	return modelDataPoints
}

func (c client) GetMetricData(ctx context.Context, request *model.MetricDataRequest) ([]model.MetricDataResult, error) {
	filter := createGetMetricDataInput(c.logger, request)
	promutil.CloudwatchGetMetricDataAPIMetricsCounter.Add(float64(len(filter.MetricDataQueries)))

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("GetMetricData", "input", filter)
	}

	var results []types.MetricDataResult
	paginator := cloudwatch.NewGetMetricDataPaginator(c.cloudwatchAPI, filter, func(options *cloudwatch.GetMetricDataPaginatorOptions) {
		options.StopOnDuplicateToken = true
	})
	for paginator.HasMorePages() {
		promutil.CloudwatchAPICounter.WithLabelValues(cloudwatch_client.GetMetricDataCall).Inc()

		page, err := paginator.NextPage(ctx)
		if err != nil {
			c.logError(err, cloudwatch_client.GetMetricDataCall)
			return nil, err
		}
		results = append(results, page.MetricDataResults...)
	}

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("GetMetricData", "output", results)
	}

	return cloudwatch_client.MergeMetricDataResults(toMetricDataResults(results)), nil
}

func toMetricDataResults(results []types.MetricDataResult) []model.MetricDataResult {
	output := make([]model.MetricDataResult, 0, len(results))
	for _, result := range results {
		output = append(output, model.MetricDataResult{
			ID:         aws.ToString(result.Id),
			Label:      aws.ToString(result.Label),
			StatusCode: string(result.StatusCode),
			Timestamps: result.Timestamps,
			Values:     result.Values,
		})
	}
	return output
}

func (c client) logError(err error, apiName string) {
	promutil.CloudwatchAPIErrorCounter.WithLabelValues(apiName).Inc()

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error(err, apiName+" error", "error_code", apiErr.ErrorCode())
		return
	}
	c.logger.Error(err, apiName+" error")
}

package v1

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"

	cloudwatch_client "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/promutil"
)

type client struct {
	logger        logging.Logger
	cloudwatchAPI cloudwatchiface.CloudWatchAPI
}

func NewClient(logger logging.Logger, cloudwatchAPI cloudwatchiface.CloudWatchAPI) cloudwatch_client.Client {
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
	page, err := c.cloudwatchAPI.ListMetricsWithContext(ctx, filter)
	if err != nil {
		c.logError(err, cloudwatch_client.ListMetricsCall)
		return nil, err
	}

	metricsPage := &model.MetricsPage{
		Metrics:   toModelMetrics(page.Metrics),
		NextToken: page.NextToken,
	}
	if c.logger.IsDebugEnabled() {
		c.logger.Debug("ListMetrics", "output", metricsPage.Metrics, "next_token", aws.StringValue(page.NextToken))
	}

	return metricsPage, nil
}

func toModelMetrics(cloudwatchMetrics []*cloudwatch.Metric) []*model.Metric {
	modelMetrics := make([]*model.Metric, 0, len(cloudwatchMetrics))
	for _, cloudwatchMetric := range cloudwatchMetrics {
		modelMetrics = append(modelMetrics, &model.Metric{
			MetricName: aws.StringValue(cloudwatchMetric.MetricName),
			Namespace:  aws.StringValue(cloudwatchMetric.Namespace),
			Dimensions: toModelDimensions(cloudwatchMetric.Dimensions),
		})
	}
	return modelMetrics
}

func toModelDimensions(dimensions []*cloudwatch.Dimension) []model.Dimension {
	modelDimensions := make([]model.Dimension, 0, len(dimensions))
	for _, dimension := range dimensions {
		modelDimensions = append(modelDimensions, model.Dimension{
			Name:  aws.StringValue(dimension.Name),
			Value: aws.StringValue(dimension.Value),
		})
	}
	return modelDimensions
}

func (c client) ListMetricStreams(ctx context.Context) ([]*model.MetricStream, error) {
	var streams []*model.MetricStream

	err := c.cloudwatchAPI.ListMetricStreamsPagesWithContext(ctx, &cloudwatch.ListMetricStreamsInput{},
		func(page *cloudwatch.ListMetricStreamsOutput, lastPage bool) bool {
			promutil.CloudwatchAPICounter.WithLabelValues(cloudwatch_client.ListMetricStreamsCall).Inc()
			streams = append(streams, toModelMetricStreams(page.Entries)...)
			return !lastPage
		})
	if err != nil {
		c.logError(err, cloudwatch_client.ListMetricStreamsCall)
		return nil, err
	}

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("ListMetricStreams", "output", streams)
	}

	return streams, nil
}

func toModelMetricStreams(entries []*cloudwatch.MetricStreamEntry) []*model.MetricStream {
	streams := make([]*model.MetricStream, 0, len(entries))
	for _, entry := range entries {
		streams = append(streams, &model.MetricStream{
			Name:           aws.StringValue(entry.Name),
			Arn:            aws.StringValue(entry.Arn),
			State:          aws.StringValue(entry.State),
			OutputFormat:   aws.StringValue(entry.OutputFormat),
			FirehoseArn:    aws.StringValue(entry.FirehoseArn),
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
	resp, err := c.cloudwatchAPI.GetMetricStatisticsWithContext(ctx, filter)
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

func toModelDatapoints(cwDatapoints []*cloudwatch.Datapoint) []*model.Datapoint {
	modelDataPoints := make([]*model.Datapoint, 0, len(cwDatapoints))

	for _, cwDatapoint := range cwDatapoints {
		var extendedStats map[string]*float64
		if len(cwDatapoint.ExtendedStatistics) > 0 {
			extendedStats = cwDatapoint.ExtendedStatistics
		}
		modelDataPoints = append(modelDataPoints, &model.Datapoint{
			Average:            cwDatapoint.Average,
			ExtendedStatistics: extendedStats,
			Maximum:            cwDatapoint.Maximum,
			Minimum:            cwDatapoint.Minimum,
			SampleCount:        cwDatapoint.SampleCount,
			Sum:                cwDatapoint.Sum,
			Timestamp:          cwDatapoint.Timestamp,
			Unit:               aws.StringValue(cwDatapoint.Unit),
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

	var results []*cloudwatch.MetricDataResult
	// Using the paged version of the function
	err := c.cloudwatchAPI.GetMetricDataPagesWithContext(ctx, filter,
		func(page *cloudwatch.GetMetricDataOutput, lastPage bool) bool {
			promutil.CloudwatchAPICounter.WithLabelValues(cloudwatch_client.GetMetricDataCall).Inc()
			results = append(results, page.MetricDataResults...)
			return !lastPage
		})
	if err != nil {
		c.logError(err, cloudwatch_client.GetMetricDataCall)
		return nil, err
	}

	if c.logger.IsDebugEnabled() {
		c.logger.Debug("GetMetricData", "output", results)
	}

	return cloudwatch_client.MergeMetricDataResults(toMetricDataResults(results)), nil
}

func toMetricDataResults(results []*cloudwatch.MetricDataResult) []model.MetricDataResult {
	output := make([]model.MetricDataResult, 0, len(results))
	for _, result := range results {
		mapped := model.MetricDataResult{
			ID:         aws.StringValue(result.Id),
			Label:      aws.StringValue(result.Label),
			StatusCode: aws.StringValue(result.StatusCode),
			Timestamps: aws.TimeValueSlice(result.Timestamps),
			Values:     aws.Float64ValueSlice(result.Values),
		}
		output = append(output, mapped)
	}
	return output
}

func (c client) logError(err error, apiName string) {
	promutil.CloudwatchAPIErrorCounter.WithLabelValues(apiName).Inc()

	if awsErr, ok := err.(awserr.Error); ok {
		c.logger.Error(err, apiName+" error", "error_code", awsErr.Code())
		return
	}
	c.logger.Error(err, apiName+" error")
}

package v2

import (
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	cloudwatch_client "github.com/nerdswords/cloudwatch-metrics-filter/pkg/clients/cloudwatch"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/logging"
	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

func createListMetricsInput(params *model.ListMetricsParams, nextToken *string) *cloudwatch.ListMetricsInput {
	input := &cloudwatch.ListMetricsInput{NextToken: nextToken}
	if params == nil {
		return input
	}

	if params.Namespace != "" {
		input.Namespace = aws.String(params.Namespace)
	}
	if params.MetricName != "" {
		input.MetricName = aws.String(params.MetricName)
	}
	if params.RecentlyActive {
		input.RecentlyActive = types.RecentlyActivePt3h
	}
	for _, dimension := range params.Dimensions {
		input.Dimensions = append(input.Dimensions, types.DimensionFilter{
			Name:  aws.String(dimension.Name),
			Value: dimension.Value,
		})
	}
	return input
}

func createGetMetricDataInput(logger logging.Logger, request *model.MetricDataRequest) *cloudwatch.GetMetricDataInput {
	metricsDataQuery := make([]types.MetricDataQuery, 0, len(request.Queries))
	for _, query := range request.Queries {
		metricsDataQuery = append(metricsDataQuery, types.MetricDataQuery{
			Id: aws.String(query.ID),
			MetricStat: &types.MetricStat{
				Metric: &types.Metric{
					Dimensions: toCloudWatchDimensions(query.Metric.Dimensions),
					MetricName: aws.String(query.Metric.MetricName),
					Namespace:  aws.String(query.Metric.Namespace),
				},
				Period: aws.Int32(query.Period),
				Stat:   aws.String(query.Stat),
			},
			ReturnData: aws.Bool(query.ReturnData),
		})
	}

	scanBy := types.ScanByTimestampAscending
	if request.ScanBy == model.ScanByTimestampDescending {
		scanBy = types.ScanByTimestampDescending
	}

	if logger.IsDebugEnabled() {
		logger.Debug("GetMetricData Window", "start_time", request.StartTime.Format(cloudwatch_client.TimeFormat), "end_time", request.EndTime.Format(cloudwatch_client.TimeFormat))
	}

	return &cloudwatch.GetMetricDataInput{
		EndTime:           aws.Time(request.EndTime),
		StartTime:         aws.Time(request.StartTime),
		MetricDataQueries: metricsDataQuery,
		ScanBy:            scanBy,
	}
}

func toCloudWatchDimensions(dimensions []model.Dimension) []types.Dimension {
	cwDim := make([]types.Dimension, 0, len(dimensions))
	for _, dim := range dimensions {
		cwDim = append(cwDim, types.Dimension{
			Name:  aws.String(dim.Name),
			Value: aws.String(dim.Value),
		})
	}
	return cwDim
}

func createGetMetricStatisticsInput(logger logging.Logger, query *model.StatisticsQuery) *cloudwatch.GetMetricStatisticsInput {
	standard, extended := cloudwatch_client.SplitStatistics(query.Statistics)
	var statistics []types.Statistic
	for _, statistic := range standard {
		statistics = append(statistics, types.Statistic(statistic))
	}

	output := &cloudwatch.GetMetricStatisticsInput{
		Dimensions:         toCloudWatchDimensions(query.Dimensions),
		Namespace:          aws.String(query.Namespace),
		StartTime:          aws.Time(query.StartTime),
		EndTime:            aws.Time(query.EndTime),
		Period:             aws.Int32(query.Period),
		MetricName:         aws.String(query.MetricName),
		Statistics:         statistics,
		ExtendedStatistics: extended,
	}

	if logger.IsDebugEnabled() {
		logger.Debug("CLI helper - " +
			"aws cloudwatch get-metric-statistics" +
			" --metric-name " + query.MetricName +
			" --dimensions " + dimensionsToCliString(query.Dimensions) +
			" --namespace " + query.Namespace +
			" --statistics " + strings.Join(query.Statistics, " ") +
			" --period " + strconv.FormatInt(int64(query.Period), 10) +
			" --start-time " + query.StartTime.Format(time.RFC3339) +
			" --end-time " + query.EndTime.Format(time.RFC3339))
	}

	return output
}

func dimensionsToCliString(dimensions []model.Dimension) string {
	out := strings.Builder{}
	for _, dim := range dimensions {
		out.WriteString("Name=")
		out.WriteString(dim.Name)
		out.WriteString(",Value=")
		out.WriteString(dim.Value)
		out.WriteString(" ")
	}
	return out.String()
}

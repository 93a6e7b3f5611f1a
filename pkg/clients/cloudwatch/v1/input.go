package v1

import (
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"

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
		input.RecentlyActive = aws.String(model.RecentlyActiveWindow)
	}
	for _, dimension := range params.Dimensions {
		input.Dimensions = append(input.Dimensions, &cloudwatch.DimensionFilter{
			Name:  aws.String(dimension.Name),
			Value: dimension.Value,
		})
	}
	return input
}

func createGetMetricDataInput(logger logging.Logger, request *model.MetricDataRequest) *cloudwatch.GetMetricDataInput {
	metricsDataQuery := make([]*cloudwatch.MetricDataQuery, 0, len(request.Queries))
	for _, query := range request.Queries {
		metricsDataQuery = append(metricsDataQuery, &cloudwatch.MetricDataQuery{
			Id: aws.String(query.ID),
			MetricStat: &cloudwatch.MetricStat{
				Metric: &cloudwatch.Metric{
					Dimensions: toCloudWatchDimensions(query.Metric.Dimensions),
					MetricName: aws.String(query.Metric.MetricName),
					Namespace:  aws.String(query.Metric.Namespace),
				},
				Period: aws.Int64(int64(query.Period)),
				Stat:   aws.String(query.Stat),
			},
			ReturnData: aws.Bool(query.ReturnData),
		})
	}

	scanBy := cloudwatch.ScanByTimestampAscending
	if request.ScanBy == model.ScanByTimestampDescending {
		scanBy = cloudwatch.ScanByTimestampDescending
	}

	if logger.IsDebugEnabled() {
		logger.Debug("GetMetricData Window", "start_time", request.StartTime.Format(cloudwatch_client.TimeFormat), "end_time", request.EndTime.Format(cloudwatch_client.TimeFormat))
	}

	return &cloudwatch.GetMetricDataInput{
		EndTime:           aws.Time(request.EndTime),
		StartTime:         aws.Time(request.StartTime),
		MetricDataQueries: metricsDataQuery,
		ScanBy:            aws.String(scanBy),
	}
}

func toCloudWatchDimensions(dimensions []model.Dimension) []*cloudwatch.Dimension {
	cwDim := make([]*cloudwatch.Dimension, 0, len(dimensions))
	for _, dim := range dimensions {
		cwDim = append(cwDim, &cloudwatch.Dimension{
			Name:  aws.String(dim.Name),
			Value: aws.String(dim.Value),
		})
	}
	return cwDim
}

func createGetMetricStatisticsInput(logger logging.Logger, query *model.StatisticsQuery) *cloudwatch.GetMetricStatisticsInput {
	statistics, extendedStatistics := cloudwatch_client.SplitStatistics(query.Statistics)

	output := &cloudwatch.GetMetricStatisticsInput{
		Dimensions: toCloudWatchDimensions(query.Dimensions),
		Namespace:  aws.String(query.Namespace),
		StartTime:  aws.Time(query.StartTime),
		EndTime:    aws.Time(query.EndTime),
		Period:     aws.Int64(int64(query.Period)),
		MetricName: aws.String(query.MetricName),
	}
	if len(statistics) > 0 {
		output.Statistics = aws.StringSlice(statistics)
	}
	if len(extendedStatistics) > 0 {
		output.ExtendedStatistics = aws.StringSlice(extendedStatistics)
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

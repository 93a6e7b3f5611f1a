package query

import (
	"strings"
	"time"

	"github.com/nerdswords/cloudwatch-metrics-filter/pkg/model"
)

const (
	SageMakerNamespace             = "AWS/SageMaker"
	SageMakerTrainingJobsNamespace = "/aws/sagemaker/TrainingJobs"
	LogsNamespace                  = "AWS/Logs"

	DefaultVariant = "AllTraffic"

	EndpointLookback    = 3 * 24 * time.Hour
	TrainingJobLookback = 7 * 24 * time.Hour

	endpointPeriod    = int32(3600)
	trainingJobPeriod = int32(60)
	presetStat        = "Sum"
)

var (
	endpointMetricNames    = []string{"ModelLatency", "OverheadLatency", "ModelSetupTime", "Invocations"}
	trainingJobMetricNames = []string{"MemoryUtilization", "CPUUtilization", "DiskUtilization"}
	endpointStatistics     = []string{"Average", "Sum", "Minimum", "Maximum"}
)

func endpointDimensions(endpoint, variant string) []model.Dimension {
	if variant == "" {
		variant = DefaultVariant
	}
	return []model.Dimension{
		{Name: "EndpointName", Value: endpoint},
		{Name: "VariantName", Value: variant},
	}
}

// sumQueries builds one Sum query per metric name, identified by the lower-cased name.
func sumQueries(namespace string, names []string, dimensions []model.Dimension, period int32) []model.MetricDataQuery {
	queries := make([]model.MetricDataQuery, 0, len(names))
	for _, name := range names {
		queries = append(queries, model.MetricDataQuery{
			ID: strings.ToLower(name),
			Metric: model.Metric{
				Namespace:  namespace,
				MetricName: name,
				Dimensions: dimensions,
			},
			Period:     period,
			Stat:       presetStat,
			ReturnData: true,
		})
	}
	return queries
}

// SageMakerEndpointMetrics requests hourly sums of the latency, setup time and
// invocation metrics of one endpoint variant. An empty variant means AllTraffic.
func SageMakerEndpointMetrics(endpoint, variant string, start, end time.Time) *model.MetricDataRequest {
	return &model.MetricDataRequest{
		Queries:   sumQueries(SageMakerNamespace, endpointMetricNames, endpointDimensions(endpoint, variant), endpointPeriod),
		StartTime: start,
		EndTime:   end,
		ScanBy:    model.ScanByTimestampAscending,
	}
}

// SageMakerTrainingJobMetrics requests per minute sums of the resource
// utilization of a training job host.
func SageMakerTrainingJobMetrics(host string, start, end time.Time) *model.MetricDataRequest {
	dimensions := []model.Dimension{{Name: "Host", Value: host}}
	return &model.MetricDataRequest{
		Queries:   sumQueries(SageMakerTrainingJobsNamespace, trainingJobMetricNames, dimensions, trainingJobPeriod),
		StartTime: start,
		EndTime:   end,
		ScanBy:    model.ScanByTimestampAscending,
	}
}

func SageMakerEndpointStatistics(endpoint, variant string, start, end time.Time) *model.StatisticsQuery {
	return &model.StatisticsQuery{
		Namespace:  SageMakerNamespace,
		MetricName: "ModelLatency",
		Dimensions: endpointDimensions(endpoint, variant),
		StartTime:  start,
		EndTime:    end,
		Period:     endpointPeriod,
		Statistics: append([]string(nil), endpointStatistics...),
	}
}

// LogGroupListing lists the IncomingLogEvents metric of every log group.
func LogGroupListing() *model.ListMetricsParams {
	return &model.ListMetricsParams{
		Namespace:  LogsNamespace,
		MetricName: "IncomingLogEvents",
		Dimensions: []model.DimensionFilter{{Name: "LogGroupName"}},
	}
}

// TrainingJobListing lists training job metrics. CloudWatch only supports a
// three hour window for recently active metrics.
func TrainingJobListing(recentlyActive bool) *model.ListMetricsParams {
	return &model.ListMetricsParams{
		Namespace:      SageMakerTrainingJobsNamespace,
		RecentlyActive: recentlyActive,
	}
}
